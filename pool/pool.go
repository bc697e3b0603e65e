// Package pool is a fixed-size pool of worker goroutines fed by a single
// unbounded job queue. Workers are started by New and joined by Stop, which
// lets every queued job run first.
package pool

type Pool interface {
	// Execute adds a job for the pool to run. It panics with ErrPoolClosed
	// when called after Stop, since that is a caller bug.
	Execute(Job)

	// AddWork adds a job for the pool to run. It is only valid before
	// Stop() has been called, afterwards it returns ErrPoolClosed.
	AddWork(Job) error

	// AddNamedWork is AddWork with a name that observers and logs can see.
	AddNamedWork(string, Job) error

	// Stop closes the job channel, lets every queued job finish and waits
	// for all workers to return. It is safe to call more than once. It must
	// not be called from a job running on the same pool, the worker would
	// wait for itself; a job that needs to stop the pool does it from a new
	// goroutine.
	Stop() error

	// Size is the fixed number of workers in the pool
	Size() int
}
