// Package server is a small TCP server that answers HTTP/1.1 request lines
// with static files, handing every connection to a thread pool.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jirevwe/threadpool/pool"
	"github.com/jirevwe/threadpool/store"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

type Config struct {
	Addr        string
	ReadTimeout time.Duration

	// MaxRequests stops accepting after that many connections, 0 means no limit
	MaxRequests int
}

// RequestRecorder stores served requests
type RequestRecorder interface {
	RecordRequest(context.Context, *store.RequestRecord) error
}

type Server struct {
	cfg      Config
	pool     pool.Pool
	handler  Handler
	recorder RequestRecorder
	log      *slog.Logger

	mu       sync.Mutex
	listener net.Listener

	accepted atomic.Int64
}

func New(cfg Config, p pool.Pool, h Handler, recorder RequestRecorder, log *slog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		pool:     p,
		handler:  h,
		recorder: recorder,
		log:      log,
	}
}

// Routes builds the mux the server answers with: "/" serves hello.html,
// "/sleep" does the same after sleepDelay and everything else gets 404.html.
func Routes(root string, sleepDelay time.Duration) *Mux {
	hello := FileHandler(root, "hello.html", StatusOK)

	mux := NewMux(FileHandler(root, "404.html", StatusNotFound))
	mux.Handle("GET / HTTP/1.1", hello)
	mux.Handle("GET /sleep HTTP/1.1", SleepHandler(sleepDelay, hello))
	return mux
}

// Listen binds the configured address. Serve calls it when needed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("cannot listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	return nil
}

// Addr is the bound address, nil before Listen
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is done or MaxRequests is reached and
// submits each one to the pool. It doesn't wait for submitted connections,
// stopping the pool does that.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	stop := make(chan struct{})
	defer func() {
		close(stop)
		_ = ln.Close()
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()

	// connections already handed to the pool finish even if ctx is cancelled
	jobCtx := context.WithoutCancel(ctx)

	// how long to sleep on repeated accept failures
	var tempDelay time.Duration

	s.log.Info(fmt.Sprintf("listening on %s", ln.Addr()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.log.Info("listener closed")
				return nil
			}

			tempDelay = nextAcceptDelay(tempDelay)
			s.log.Error("conn fetch error", "error", err, "retry_in", tempDelay)

			t := time.NewTimer(tempDelay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
			}
			continue
		}
		tempDelay = 0

		remote := conn.RemoteAddr().String()
		err = s.pool.AddNamedWork("conn "+remote, func() {
			s.handleConnection(jobCtx, conn)
		})
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("cannot hand off connection from %s: %w", remote, err)
		}

		n := s.accepted.Add(1)
		if s.cfg.MaxRequests > 0 && n >= int64(s.cfg.MaxRequests) {
			s.log.Info(fmt.Sprintf("served %d connections, shutting down", n))
			return nil
		}
	}
}

// nextAcceptDelay doubles the previous delay, starting at 5ms and capped at 1s
func nextAcceptDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptDelay
	}
	if next := prev * 2; next < maxAcceptDelay {
		return next
	}
	return maxAcceptDelay
}

// Accepted is the number of connections handed to the pool so far
func (s *Server) Accepted() int64 { return s.accepted.Load() }

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	start := time.Now()

	if s.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(start.Add(s.cfg.ReadTimeout))
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		s.log.Error("cannot read request line", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}

	req := ParseRequestLine(strings.TrimRight(line, "\r\n"))
	req.RemoteAddr = conn.RemoteAddr().String()

	resp, err := s.handler.Respond(ctx, req)
	if err == nil && resp == nil {
		err = errors.New("handler returned no response")
	}
	if err != nil {
		s.log.Error(err.Error(), "request", req.Line)
		resp = &Response{StatusLine: StatusError}
	}

	n, err := conn.Write(resp.Bytes())
	if err != nil {
		s.log.Error("cannot write response", "remote", req.RemoteAddr, "error", err)
	}

	if s.recorder == nil {
		return
	}

	err = s.recorder.RecordRequest(ctx, &store.RequestRecord{
		RemoteAddr:  req.RemoteAddr,
		RequestLine: req.Line,
		Method:      req.Method,
		Path:        req.Path,
		StatusLine:  resp.StatusLine,
		StatusCode:  resp.StatusCode(),
		Bytes:       n,
		Duration:    time.Since(start),
		At:          start,
	})
	if err != nil {
		s.log.Error(err.Error(), "source", "request log")
	}
}
