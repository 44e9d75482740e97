package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roach88/evstore/internal/ir"
	"github.com/roach88/evstore/internal/storage"
)

// ErrInjected is the write error Backend returns when told to fail.
var ErrInjected = errors.New("injected write failure")

// Backend is an in-memory storage.Backend.
//
// A test can make it fail the batch containing a given seq, fail Close, or
// hold every Append until Release is called.
type Backend struct {
	mu       sync.Mutex
	events   []ir.Event
	batches  [][]uint64
	failAt   uint64
	closeErr error
	closed   bool

	gate     chan struct{}
	gateOnce sync.Once
	entered  chan struct{}
}

// NewBackend creates an empty in-memory backend.
func NewBackend() *Backend {
	return &Backend{entered: make(chan struct{}, 1)}
}

// FailAt makes the batch that contains seq fail, along with every later one.
func (b *Backend) FailAt(seq uint64) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAt = seq
	return b
}

// FailClose makes Close return err.
func (b *Backend) FailClose(err error) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeErr = err
	return b
}

// Hold makes every Append block until Release.
func (b *Backend) Hold() *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gate = make(chan struct{})
	return b
}

// Release unblocks held Appends. Safe to call more than once.
func (b *Backend) Release() {
	b.mu.Lock()
	gate := b.gate
	b.mu.Unlock()
	if gate != nil {
		b.gateOnce.Do(func() { close(gate) })
	}
}

// Entered receives a value each time Append starts.
func (b *Backend) Entered() <-chan struct{} {
	return b.entered
}

// Append implements storage.Backend.
func (b *Backend) Append(ctx context.Context, events []ir.Event) error {
	select {
	case b.entered <- struct{}{}:
	default:
	}

	b.mu.Lock()
	gate := b.gate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	seqs := make([]uint64, len(events))
	for i, ev := range events {
		seqs[i] = ev.Seq
		if b.failAt != 0 && ev.Seq >= b.failAt {
			return fmt.Errorf("seq %d: %w", ev.Seq, ErrInjected)
		}
	}
	for _, ev := range events {
		b.events = append(b.events, ev.Clone())
	}
	b.batches = append(b.batches, seqs)
	return nil
}

// ReadAll implements storage.Backend.
func (b *Backend) ReadAll(ctx context.Context) ([]ir.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]ir.Event, len(b.events))
	for i, ev := range b.events {
		out[i] = ev.Clone()
	}
	return out, nil
}

// Close implements storage.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return b.closeErr
}

// Closed reports whether Close was called.
func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Batches returns the seqs of each successful Append, in call order.
func (b *Backend) Batches() [][]uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([][]uint64, len(b.batches))
	for i, batch := range b.batches {
		out[i] = append([]uint64(nil), batch...)
	}
	return out
}

var kindCounter atomic.Uint64

// RegisterBackend registers a storage kind whose factory always returns b,
// and returns the kind name. Each call registers a fresh kind.
func RegisterBackend(b storage.Backend) string {
	kind := fmt.Sprintf("testutil-%d", kindCounter.Add(1))
	storage.Register(kind, func(context.Context, storage.Config, string) (storage.Backend, error) {
		return b, nil
	})
	return kind
}
