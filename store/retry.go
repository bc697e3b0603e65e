package store

import (
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
)

type Retry struct {
	sleepDuration time.Duration
	numTries      int
	retryable     func(error) bool
}

func NewRetry(numTries int, sleepDuration time.Duration, retryable func(error) bool) *Retry {
	if numTries < 1 {
		numTries = 1
	}
	return &Retry{
		sleepDuration: sleepDuration,
		numTries:      numTries,
		retryable:     retryable,
	}
}

// Do calls fn until it succeeds, returns a non retryable error or runs out
// of tries. The last error is returned.
func (r *Retry) Do(fn func() error) (err error) {
	for i := 0; i < r.numTries; i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if r.retryable != nil && !r.retryable(err) {
			return err
		}

		if i < r.numTries-1 {
			time.Sleep(r.sleepDuration)
		}
	}

	return err
}

// isBusy reports whether err is sqlite telling us the database is locked
func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
