package pool

import (
	"fmt"
	"log/slog"
	"time"
)

type Worker struct {
	// the worker id
	id int

	// handle to the running goroutine, nil once it has been joined
	thread *thread

	// shared receive side of the job channel
	jobs *receiver

	log *slog.Logger

	observers []Observer

	// when nil a panicking job is not recovered
	onPanic PanicHandler
}

// thread is the join handle of a worker goroutine
type thread struct {
	ready chan struct{}
	done  chan struct{}
}

func newWorker(id int, jobs *receiver, log *slog.Logger, observers []Observer, onPanic PanicHandler) *Worker {
	return &Worker{
		id:        id,
		jobs:      jobs,
		log:       log,
		observers: observers,
		onPanic:   onPanic,
	}
}

// spawn starts the worker goroutine and blocks until it has entered its
// receive loop.
func (w *Worker) spawn(running func(delta int64)) {
	w.thread = &thread{ready: make(chan struct{}), done: make(chan struct{})}
	go w.start(w.thread, running)
	<-w.thread.ready
}

func (w *Worker) start(t *thread, running func(delta int64)) {
	w.log.Info(fmt.Sprintf("starting worker %d", w.id))
	running(1)

	defer func() {
		running(-1)
		w.log.Info(fmt.Sprintf("worker %d has been stopped", w.id))
		close(t.done)
	}()

	close(t.ready)

	for {
		e, ok := w.jobs.recv()
		if !ok {
			w.log.Info(fmt.Sprintf("worker %d disconnected; shutting down.", w.id))
			return
		}

		w.log.Info(fmt.Sprintf("worker %d got a job; executing.", w.id), "job_id", e.info.ID, "name", e.info.Name)
		w.execute(e)
	}
}

// execute runs the job synchronously. The queue lock is not held here, so
// other workers keep dequeuing while this one is busy.
func (w *Worker) execute(e envelope) {
	e.info.WorkerID = w.id
	e.info.StartedAt = time.Now()
	for _, o := range w.observers {
		o.JobStarted(e.info)
	}

	e.info.Panic = w.run(e.job)
	e.info.FinishedAt = time.Now()

	if e.info.Panic != nil {
		w.log.Error(fmt.Sprintf("worker %d recovered from panic: %v", w.id, e.info.Panic), "job_id", e.info.ID)
		w.onPanic(e.info)
	}

	for _, o := range w.observers {
		o.JobFinished(e.info)
	}
}

func (w *Worker) run(job Job) (panicked any) {
	if w.onPanic == nil {
		job()
		return nil
	}

	defer func() {
		panicked = recover()
	}()

	job()
	return nil
}

// join blocks until the worker goroutine has returned. It reports false if
// the worker had already been joined.
func (w *Worker) join() bool {
	if w.thread == nil {
		return false
	}
	<-w.thread.done
	w.thread = nil
	return true
}

func (w *Worker) ID() int { return w.id }
