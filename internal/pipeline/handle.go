package pipeline

import (
	"context"

	"github.com/roach88/evstore/internal/ir"
)

// Handle is the caller's view of one commit. It resolves exactly once, after
// the event is durable (or its write failed).
type Handle struct {
	event ir.Event
	done  chan struct{}
	err   error
}

func newHandle(ev ir.Event) *Handle {
	return &Handle{event: ev, done: make(chan struct{})}
}

// Seq returns the seq assigned to the commit.
func (h *Handle) Seq() uint64 {
	return h.event.Seq
}

// Event returns the committed event.
func (h *Handle) Event() ir.Event {
	return h.event.Clone()
}

// Done is closed once the commit has resolved.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the write error, or nil while pending or after success.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the commit resolves or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) resolve(err error) {
	h.err = err
	close(h.done)
}
