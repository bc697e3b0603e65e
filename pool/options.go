package pool

import "log/slog"

// Option configures a ThreadPool
type Option func(*ThreadPool)

// PanicHandler is called with the info of a job that panicked.
type PanicHandler func(JobInfo)

// WithLogger sets the logger used by the pool and its workers.
// Default: text logger on stdout
func WithLogger(log *slog.Logger) Option {
	return func(p *ThreadPool) {
		if log != nil {
			p.log = log
		}
	}
}

// WithObserver registers an observer. Observers are called in the order
// they were added.
func WithObserver(o Observer) Option {
	return func(p *ThreadPool) {
		if o != nil {
			p.observers = append(p.observers, o)
		}
	}
}

// WithPanicHandler makes workers recover from panicking jobs. The handler
// gets the job info with Panic set and the worker goes back to waiting.
// Without it a panicking job crashes the process.
func WithPanicHandler(fn PanicHandler) Option {
	return func(p *ThreadPool) {
		p.onPanic = fn
	}
}
