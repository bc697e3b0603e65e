package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	StatusOK       = "HTTP/1.1 200 OK"
	StatusNotFound = "HTTP/1.1 404 NOT FOUND"
	StatusError    = "HTTP/1.1 500 INTERNAL SERVER ERROR"
)

// Request is the parsed first line of a connection
type Request struct {
	Line       string
	Method     string
	Path       string
	Proto      string
	RemoteAddr string
}

// ParseRequestLine splits a request line like "GET / HTTP/1.1". Malformed
// lines are kept as is with empty fields.
func ParseRequestLine(line string) *Request {
	r := &Request{Line: line}
	parts := strings.Fields(line)
	if len(parts) == 3 {
		r.Method, r.Path, r.Proto = parts[0], parts[1], parts[2]
	}
	return r
}

// Response is written back as "{status}\r\nContent-Length: {n}\r\n\r\n{body}"
type Response struct {
	StatusLine string
	Body       []byte
}

func (r *Response) Bytes() []byte {
	head := fmt.Sprintf("%s\r\nContent-Length: %d\r\n\r\n", r.StatusLine, len(r.Body))
	return append([]byte(head), r.Body...)
}

// StatusCode is the numeric code of the status line, 0 if it has none
func (r *Response) StatusCode() int {
	var code int
	parts := strings.Fields(r.StatusLine)
	if len(parts) > 1 {
		_, _ = fmt.Sscanf(parts[1], "%d", &code)
	}
	return code
}

// A Handler answers a request.
//
// Respond should return a non-nil error only if it could not produce a
// response at all, the server then answers with a 500.
type Handler interface {
	Respond(context.Context, *Request) (*Response, error)
}

// The HandlerFunc type is an adapter to allow the use of
// ordinary functions as a Handler. If f is a function
// with the appropriate signature, HandlerFunc(f) is a
// Handler that calls f.
type HandlerFunc func(context.Context, *Request) (*Response, error)

// Respond calls fn(ctx, req)
func (fn HandlerFunc) Respond(ctx context.Context, req *Request) (*Response, error) {
	return fn(ctx, req)
}

// FileHandler serves the named file under root with the given status line.
// The file is read on every request.
func FileHandler(root, name, statusLine string) Handler {
	path := filepath.Join(root, filepath.Clean("/"+name))
	return HandlerFunc(func(ctx context.Context, _ *Request) (*Response, error) {
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", name, err)
		}
		return &Response{StatusLine: statusLine, Body: body}, nil
	})
}

// SleepHandler waits for delay, or until ctx is done, then calls next. It
// makes a slow request that keeps a worker busy.
func SleepHandler(delay time.Duration, next Handler) Handler {
	return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
		t := time.NewTimer(delay)
		defer t.Stop()

		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return next.Respond(ctx, req)
	})
}
