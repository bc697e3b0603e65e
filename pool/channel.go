package pool

import "sync"

// jobQueue is an unbounded FIFO shared by one sender and many receivers.
// Closing it is the only shutdown signal the workers get.
type jobQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []envelope
	closed bool
}

// sender is the submit side of the job channel, owned by the pool
type sender struct {
	q *jobQueue
}

// receiver is the receive side of the job channel. A single receiver is
// shared by every worker; the queue lock makes sure only one of them
// dequeues at a time.
type receiver struct {
	q *jobQueue
}

func newJobChannel() (*sender, *receiver) {
	q := &jobQueue{}
	q.cond = sync.NewCond(&q.mu)
	return &sender{q: q}, &receiver{q: q}
}

func (s *sender) send(e envelope) error {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()

	if s.q.closed {
		return ErrPoolClosed
	}

	s.q.items = append(s.q.items, e)
	s.q.cond.Signal()
	return nil
}

// close marks the channel closed and wakes every blocked receiver. Items
// already queued are still delivered.
func (s *sender) close() {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()

	s.q.closed = true
	s.q.cond.Broadcast()
}

// recv blocks until a job is available or the channel is closed and
// drained, in which case ok is false.
func (r *receiver) recv() (e envelope, ok bool) {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()

	for len(r.q.items) == 0 {
		if r.q.closed {
			return envelope{}, false
		}
		r.q.cond.Wait()
	}

	e = r.q.items[0]
	r.q.items[0] = envelope{}
	r.q.items = r.q.items[1:]
	return e, true
}

func (r *receiver) len() int {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	return len(r.q.items)
}
