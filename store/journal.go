package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jirevwe/threadpool/pool"
)

// Journal persists the lifecycle of every pool job. Write failures are
// logged and never reach the pool.
type Journal struct {
	store   *Sqlite
	log     *slog.Logger
	retry   *Retry
	timeout time.Duration
}

func NewJournal(s *Sqlite, log *slog.Logger) *Journal {
	return &Journal{
		store:   s,
		log:     log,
		retry:   NewRetry(3, 50*time.Millisecond, isBusy),
		timeout: 5 * time.Second,
	}
}

func (j *Journal) JobSubmitted(info pool.JobInfo) {
	j.write("submitted", info, func(ctx context.Context) error {
		return j.store.InsertJob(ctx, info.ID, info.Name, info.SubmittedAt)
	})
}

func (j *Journal) JobStarted(info pool.JobInfo) {
	j.write("started", info, func(ctx context.Context) error {
		_, err := j.store.MarkJobStarted(ctx, info.ID, info.WorkerID, info.StartedAt)
		return err
	})
}

func (j *Journal) JobFinished(info pool.JobInfo) {
	var errMsg string
	if info.Failed() {
		errMsg = fmt.Sprintf("panic: %v", info.Panic)
	}

	j.write("finished", info, func(ctx context.Context) error {
		_, err := j.store.MarkJobFinished(ctx, info.ID, errMsg, info.FinishedAt)
		return err
	})
}

func (j *Journal) write(event string, info pool.JobInfo, fn func(context.Context) error) {
	err := j.retry.Do(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()
		return fn(ctx)
	})
	if err != nil {
		j.log.Error(err.Error(), "source", "journal", "event", event, "job_id", info.ID)
	}
}

var _ pool.Observer = (*Journal)(nil)
