package server

import (
	"context"
	"sync"
)

type Mux struct {
	entries  map[string]muxEntry
	notFound Handler
	mu       *sync.RWMutex
}

type muxEntry struct {
	h    Handler
	line string
}

// NewMux creates a mux that answers unmatched requests with notFound.
// A nil notFound falls back to an empty 404 response.
func NewMux(notFound Handler) *Mux {
	if notFound == nil {
		notFound = NotFoundHandler()
	}
	return &Mux{
		entries:  make(map[string]muxEntry),
		notFound: notFound,
		mu:       &sync.RWMutex{},
	}
}

// Handle is used to register a handler for an exact request line
func (m *Mux) Handle(line string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[line] = muxEntry{
		h:    h,
		line: line,
	}
}

// match finds a handler in entries given a request line.
func (m *Mux) match(line string) (h Handler) {
	// only exact matches, the request line includes the protocol
	v, ok := m.entries[line]
	if ok {
		return v.h
	}

	return nil
}

// Respond dispatches the request to the handler registered for its
// request line.
func (m *Mux) Respond(ctx context.Context, req *Request) (*Response, error) {
	h := m.Handler(req)
	return h.Respond(ctx, req)
}

// Handler returns the handler to use for the given request.
// It always returns a non-nil handler.
func (m *Mux) Handler(req *Request) (h Handler) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h = m.match(req.Line)
	if h == nil {
		h = m.notFound
	}

	return h
}

// NotFound answers with an empty 404 response.
func NotFound(ctx context.Context, req *Request) (*Response, error) {
	return &Response{StatusLine: StatusNotFound}, nil
}

// NotFoundHandler returns a simple handler that answers with an empty 404.
func NotFoundHandler() Handler { return HandlerFunc(NotFound) }

var _ Handler = (*Mux)(nil)
