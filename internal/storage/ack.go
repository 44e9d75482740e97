package storage

import (
	"context"

	"github.com/roach88/evstore/internal/ir"
)

// Ack is the future of one AppendAsync call. It resolves exactly once, on
// the flusher goroutine, when its record is durable or has failed.
type Ack struct {
	event  ir.Event
	onDone func(ir.Event, error)
	done   chan struct{}
	err    error
}

func newAck(ev ir.Event, onDone func(ir.Event, error)) *Ack {
	return &Ack{event: ev, onDone: onDone, done: make(chan struct{})}
}

// Seq returns the seq of the record this ack tracks.
func (a *Ack) Seq() uint64 {
	return a.event.Seq
}

// Done is closed once the ack has resolved.
func (a *Ack) Done() <-chan struct{} {
	return a.done
}

// Err returns the write error, or nil while pending or after success.
func (a *Ack) Err() error {
	select {
	case <-a.done:
		return a.err
	default:
		return nil
	}
}

// Wait blocks until the ack resolves or ctx is done.
func (a *Ack) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolve runs the completion callback before closing done, so a caller
// woken by Done observes the callback's effects.
func (a *Ack) resolve(err error) {
	a.err = err
	if a.onDone != nil {
		a.onDone(a.event, err)
	}
	close(a.done)
}
