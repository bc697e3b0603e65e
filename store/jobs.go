package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrJobNotFound = errors.New("job not found")

type JobStatus string

const (
	JobScheduled JobStatus = "scheduled"
	JobActive    JobStatus = "active"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// level orders statuses, a job never moves to a lower or equal level
func (s JobStatus) level() int {
	switch s {
	case JobScheduled:
		return 1
	case JobActive:
		return 2
	case JobCompleted, JobFailed:
		return 3
	default:
		return 0
	}
}

type JobRecord struct {
	Id          string    `db:"id"`
	Name        string    `db:"name"`
	Status      JobStatus `db:"status"`
	WorkerId    int       `db:"worker_id"`
	Error       string    `db:"error"`
	SubmittedAt string    `db:"submitted_at"`
	StartedAt   string    `db:"started_at"`
	FinishedAt  string    `db:"finished_at"`
	CreatedAt   string    `db:"created_at"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(rfc3339Milli)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(rfc3339Milli, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Submitted is the parsed submission time
func (j *JobRecord) Submitted() time.Time { return parseTime(j.SubmittedAt) }

// Started is the parsed start time, zero if the job hasn't started
func (j *JobRecord) Started() time.Time { return parseTime(j.StartedAt) }

// Finished is the parsed finish time, zero if the job hasn't finished
func (j *JobRecord) Finished() time.Time { return parseTime(j.FinishedAt) }

// InsertJob records a newly scheduled job
func (s *Sqlite) InsertJob(ctx context.Context, id, name string, submittedAt time.Time) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `insert into jobs (id, name, status, submitted_at) values ($1, $2, $3, $4)`,
			id, name, string(JobScheduled), formatTime(submittedAt))
		return err
	})
}

// MarkJobStarted moves a job to the active state
func (s *Sqlite) MarkJobStarted(ctx context.Context, id string, workerId int, startedAt time.Time) (JobRecord, error) {
	return s.transitionJob(ctx, id, JobActive,
		`update jobs set status = $1, worker_id = $2, started_at = $3 where id = $4 returning *;`,
		string(JobActive), workerId, formatTime(startedAt), id)
}

// MarkJobFinished moves a job to completed, or failed when errMsg is set
func (s *Sqlite) MarkJobFinished(ctx context.Context, id string, errMsg string, finishedAt time.Time) (JobRecord, error) {
	status := JobCompleted
	if errMsg != "" {
		status = JobFailed
	}

	return s.transitionJob(ctx, id, status,
		`update jobs set status = $1, error = $2, finished_at = $3 where id = $4 returning *;`,
		string(status), errMsg, formatTime(finishedAt), id)
}

func (s *Sqlite) transitionJob(ctx context.Context, id string, next JobStatus, query string, args ...any) (job JobRecord, err error) {
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		row := tx.QueryRowxContext(ctx, `select * from jobs where id = $1`, id)
		if row.Err() != nil {
			return row.Err()
		}

		var current JobRecord
		if scanErr := row.StructScan(&current); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", ErrJobNotFound, id)
			}
			return scanErr
		}

		if current.Status.level() >= next.level() {
			return fmt.Errorf("job is already in the %s state", current.Status)
		}

		row = tx.QueryRowxContext(ctx, query, args...)
		if row.Err() != nil {
			return row.Err()
		}

		return row.StructScan(&job)
	})

	return job, err
}

// GetJob fetches a single job
func (s *Sqlite) GetJob(ctx context.Context, id string) (job JobRecord, err error) {
	err = s.db.QueryRowxContext(ctx, `select * from jobs where id = $1`, id).StructScan(&job)
	if errors.Is(err, sql.ErrNoRows) {
		return job, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, err
}

// CountJobs returns the number of jobs in each status
func (s *Sqlite) CountJobs(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryxContext(ctx, `select status, count(*) from jobs group by status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err = rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[JobStatus(status)] = n
	}

	return counts, rows.Err()
}

// PruneJobs deletes finished jobs that completed before the given time
func (s *Sqlite) PruneJobs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from jobs where status in ($1, $2) and finished_at != '' and finished_at < $3`,
		string(JobCompleted), string(JobFailed), formatTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
