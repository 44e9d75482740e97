package storage

import (
	"sync"
	"sync/atomic"
)

// recordQueue is the FIFO between AppendAsync callers and the flusher.
//
// It is unbounded so admission never blocks on I/O. The signal channel has a
// buffer of one: any number of enqueues between two flusher wakeups coalesce
// into a single wakeup. Close closes the channel, which wakes the flusher for
// good.
type recordQueue struct {
	mu     sync.Mutex
	acks   []*Ack
	closed bool
	signal chan struct{}

	// admitted counts every ack Enqueue accepted. It only grows, and only
	// under mu while the queue is open.
	admitted atomic.Uint64
}

func newRecordQueue() *recordQueue {
	return &recordQueue{
		acks:   make([]*Ack, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends an ack. Returns false once the queue is closed.
func (q *recordQueue) Enqueue(a *Ack) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.admitted.Add(1)
	q.acks = append(q.acks, a)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Take removes up to max acks from the front. closed reports whether the
// queue was closed at the time of the call; closed with an empty batch means
// nothing will ever arrive again.
func (q *recordQueue) Take(max int) (batch []*Ack, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.acks)
	if n > max {
		n = max
	}
	if n == 0 {
		return nil, q.closed
	}

	batch = make([]*Ack, n)
	copy(batch, q.acks[:n])

	// Clear the taken slots so the backing array does not pin resolved acks.
	for i := 0; i < n; i++ {
		q.acks[i] = nil
	}
	if n == len(q.acks) {
		q.acks = q.acks[:0]
	} else {
		q.acks = q.acks[n:]
	}
	return batch, q.closed
}

// Wait returns the wakeup channel for use in a select.
func (q *recordQueue) Wait() <-chan struct{} {
	return q.signal
}

// Admitted returns how many acks Enqueue has accepted.
func (q *recordQueue) Admitted() uint64 {
	return q.admitted.Load()
}

// Len returns the number of queued acks.
func (q *recordQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.acks)
}

// Close stops admission. Acks already queued stay queued for the flusher.
func (q *recordQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
