package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/jirevwe/threadpool/config"
	"github.com/jirevwe/threadpool/metrics"
	"github.com/jirevwe/threadpool/pool"
	"github.com/jirevwe/threadpool/server"
	"github.com/jirevwe/threadpool/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	addr := flag.String("addr", "", "listen address, overrides the config file")
	workers := flag.Int("workers", 0, "number of pool workers, overrides the config file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *workers != 0 {
		cfg.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if err := run(cfg, slogger); err != nil {
		slogger.Error(err.Error())
		os.Exit(1)
	}
}

func run(cfg config.Config, slogger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []pool.Option{
		pool.WithLogger(slogger),
		pool.WithObserver(metrics.New(registry, "threadpool")),
		pool.WithPanicHandler(func(info pool.JobInfo) {
			slogger.Error(fmt.Sprintf("job %s panicked: %v", info.ID, info.Panic), "name", info.Name)
		}),
	}

	var recorder server.RequestRecorder
	if cfg.DBPath != "" {
		sqlite, err := store.NewSqlite(cfg.DBPath, slogger)
		if err != nil {
			return fmt.Errorf("cannot open %s: %w", cfg.DBPath, err)
		}
		defer sqlite.Close()

		opts = append(opts, pool.WithObserver(store.NewJournal(sqlite, slogger)))
		recorder = sqlite
	}

	// stopping the pool drains every accepted connection, it has to run
	// before the store is closed
	p := pool.New(cfg.Workers, opts...)
	defer func() { _ = p.Stop() }()

	srv := server.New(server.Config{
		Addr:        cfg.Addr,
		ReadTimeout: cfg.ReadTimeout.Std(),
		MaxRequests: cfg.MaxRequests,
	}, p, server.Routes(cfg.Root, cfg.SleepDelay.Std()), recorder, slogger)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer stop()
		return srv.Serve(gCtx)
	})

	if cfg.MetricsAddr != "" {
		metricsSrv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			slogger.Info(fmt.Sprintf("serving metrics on %s", cfg.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
