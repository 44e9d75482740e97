package eventlog

import "sync/atomic"

// Clock is the monotonic logical clock that stamps events.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations), but
// the Log only advances it while holding its append mutex.
type Clock struct {
	seq atomic.Uint64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock positioned at start, so the next seq is start+1.
// Open uses it to resume after the last durable event.
func NewClockAt(start uint64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() uint64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() uint64 {
	return c.seq.Load()
}

// rewind undoes the last Next. Caller holds the Log mutex.
func (c *Clock) rewind() {
	c.seq.Add(^uint64(0))
}
