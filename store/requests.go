package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// RequestRecord is one request served by the example server. It is stored
// msgpack encoded in the payload column.
type RequestRecord struct {
	Id          string        `msgpack:"id"`
	RemoteAddr  string        `msgpack:"remote_addr"`
	RequestLine string        `msgpack:"request_line"`
	Method      string        `msgpack:"method"`
	Path        string        `msgpack:"path"`
	StatusLine  string        `msgpack:"status_line"`
	StatusCode  int           `msgpack:"status_code"`
	Bytes       int           `msgpack:"bytes"`
	Duration    time.Duration `msgpack:"duration"`
	At          time.Time     `msgpack:"at"`
}

func (r *RequestRecord) Marshal() ([]byte, error) {
	return msgpack.Marshal(r)
}

func UnmarshalRequestRecord(raw []byte) (*RequestRecord, error) {
	r := &RequestRecord{}
	if err := msgpack.Unmarshal(raw, r); err != nil {
		return nil, err
	}
	return r, nil
}

// RecordRequest stores a served request, assigning it an id if it has none
func (s *Sqlite) RecordRequest(ctx context.Context, r *RequestRecord) error {
	if r.Id == "" {
		r.Id = ulid.Make().String()
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}

	raw, err := r.Marshal()
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, innerErr := tx.ExecContext(ctx,
			`insert into requests (id, request_line, status_code, payload, created_at) values ($1, $2, $3, $4, $5)`,
			r.Id, r.RequestLine, r.StatusCode, raw, formatTime(r.At))
		return innerErr
	})
}

// ListRequests returns the most recent requests, newest first
func (s *Sqlite) ListRequests(ctx context.Context, limit int) (records []*RequestRecord, err error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryxContext(ctx, `select payload from requests order by id desc limit $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err = rows.Scan(&raw); err != nil {
			return nil, err
		}

		r, decodeErr := UnmarshalRequestRecord(raw)
		if decodeErr != nil {
			return nil, decodeErr
		}
		records = append(records, r)
	}

	return records, rows.Err()
}
