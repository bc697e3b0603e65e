package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

var (
	ErrPoolClosed  = errors.New("thread pool is not active")
	ErrInvalidSize = errors.New("thread pool size must be greater than zero")
	ErrNilJob      = errors.New("job is nil")
)

type ThreadPool struct {
	workers []*Worker

	// mu guards sender. A nil sender means shutdown has started.
	mu     sync.RWMutex
	sender *sender

	jobs *receiver

	// ensure the pool can only be stopped once
	stop sync.Once

	running atomic.Int64

	log       *slog.Logger
	observers []Observer
	onPanic   PanicHandler
}

// New creates a pool with size workers, all of them already waiting for
// jobs when it returns. A size below one is a configuration error and
// panics before any worker is spawned.
func New(size int, opts ...Option) *ThreadPool {
	if size < 1 {
		panic(fmt.Errorf("%w: got %d", ErrInvalidSize, size))
	}

	tx, rx := newJobChannel()
	p := &ThreadPool{
		workers: make([]*Worker, size),
		sender:  tx,
		jobs:    rx,
		log:     slog.New(slog.NewTextHandler(os.Stdout, nil)),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.log.Info(fmt.Sprintf("starting thread pool with %d workers", size))
	for i := range p.workers {
		w := newWorker(i, p.jobs, p.log, p.observers, p.onPanic)
		p.workers[i] = w
		w.spawn(p.trackRunning)
	}

	return p
}

func (p *ThreadPool) trackRunning(delta int64) { p.running.Add(delta) }

// Execute adds a job to the pool. Submitting to a stopped pool is a
// programming error and panics.
func (p *ThreadPool) Execute(job Job) {
	if err := p.AddWork(job); err != nil {
		panic(fmt.Errorf("execute: %w", err))
	}
}

// AddWork adds a job to the pool and returns immediately, the queue is
// unbounded. It returns ErrPoolClosed once Stop has been called.
func (p *ThreadPool) AddWork(job Job) error {
	return p.AddNamedWork("", job)
}

// AddNamedWork is AddWork with a name attached to the job's info.
func (p *ThreadPool) AddNamedWork(name string, job Job) error {
	if job == nil {
		return ErrNilJob
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.sender == nil {
		return ErrPoolClosed
	}

	e := newEnvelope(name, job)
	for _, o := range p.observers {
		o.JobSubmitted(e.info)
	}

	// the sender is only closed after being detached under the write lock,
	// so this can't observe a closed channel
	if err := p.sender.send(e); err != nil {
		panic(fmt.Errorf("job channel closed while pool is active: %w", err))
	}

	return nil
}

// Stop detaches and closes the sender, then joins every worker in order.
// Queued jobs are still delivered before the workers see the closed channel,
// so nothing submitted before Stop is dropped.
//
// Stop blocks until every worker returns, so calling it from one of the
// pool's own jobs deadlocks. Use `go p.Stop()` there instead.
func (p *ThreadPool) Stop() error {
	p.stop.Do(func() {
		p.log.Info("stopping thread pool")

		p.mu.Lock()
		tx := p.sender
		p.sender = nil
		p.mu.Unlock()

		tx.close()

		for _, w := range p.workers {
			p.log.Info(fmt.Sprintf("shutting down worker %d", w.id))
			w.join()
		}

		p.log.Info("thread pool has been stopped")
	})
	return nil
}

func (p *ThreadPool) Size() int { return len(p.workers) }

// Running is the number of worker goroutines currently alive.
func (p *ThreadPool) Running() int { return int(p.running.Load()) }

// Queued is the number of jobs waiting for a worker.
func (p *ThreadPool) Queued() int { return p.jobs.len() }

// Closed reports whether Stop has been called.
func (p *ThreadPool) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sender == nil
}

var _ Pool = (*ThreadPool)(nil)
