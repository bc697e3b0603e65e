package pool

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Job is a one-shot unit of work. It runs exactly once on some worker.
type Job func()

// JobInfo describes a submitted job as it moves through the pool.
type JobInfo struct {
	ID          string
	Name        string
	WorkerID    int
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time

	// Panic holds the recovered value when the job panicked and the pool
	// was configured with a panic handler
	Panic any
}

// Duration is how long the job took to run, zero if it hasn't finished.
func (i JobInfo) Duration() time.Duration {
	if i.FinishedAt.IsZero() {
		return 0
	}
	return i.FinishedAt.Sub(i.StartedAt)
}

// Failed reports whether the job panicked.
func (i JobInfo) Failed() bool { return i.Panic != nil }

// envelope is what travels through the job channel
type envelope struct {
	job  Job
	info JobInfo
}

func newEnvelope(name string, job Job) envelope {
	return envelope{
		job: job,
		info: JobInfo{
			ID:          ulid.Make().String(),
			Name:        name,
			WorkerID:    -1,
			SubmittedAt: time.Now(),
		},
	}
}
