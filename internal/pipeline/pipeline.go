package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/evstore/internal/ir"
	"github.com/roach88/evstore/internal/materialize"
)

var (
	// ErrNotAccepting is returned by Commit once Drain has started.
	ErrNotAccepting = errors.New("store is not accepting commits")

	// ErrInvalidEvent wraps schema validation failures.
	ErrInvalidEvent = errors.New("invalid event")
)

// Appender assigns a seq to an event and persists it asynchronously.
//
// onDone must be called exactly once per successful Append, and never from
// inside Append itself. If Append returns an error, onDone is never called.
type Appender interface {
	Append(name string, args ir.Object, onDone func(ir.Event, error)) (ir.Event, error)
}

// Stats instruments the drain-gate boundary. At rest,
// Applied + Buffered == Durable and Durable + Failed + Pending == Admitted.
type Stats struct {
	Admitted    uint64 `json:"admitted"`
	Durable     uint64 `json:"durable"`
	Applied     uint64 `json:"applied"`
	Failed      uint64 `json:"failed"`
	Pending     uint64 `json:"pending"`
	Buffered    uint64 `json:"buffered"`
	LastApplied uint64 `json:"last_applied"`
}

// Pipeline is the commit path of one open store.
//
// Thread-safety model:
//   - Commit, Query, Drain, Stats, Err: safe from any goroutine
//   - completions run on whatever goroutine the Appender resolves on
//   - mu guards every field below it; Query takes the read side
type Pipeline struct {
	log    Appender
	mat    *materialize.Materializer
	logger *slog.Logger

	mu        sync.RWMutex
	accepting bool
	pending   map[uint64]*Handle
	buffer    map[uint64]ir.Event
	nextApply uint64
	doc       ir.Object
	firstErr  error
	draining  bool
	drained   chan struct{}

	admitted uint64
	durable  uint64
	applied  uint64
	failed   uint64
}

// New creates a pipeline whose document is seedDoc with seqs up to seedSeq
// already applied. A nil seedDoc starts from the schema defaults.
func New(log Appender, mat *materialize.Materializer, seedDoc ir.Object, seedSeq uint64, logger *slog.Logger) *Pipeline {
	if mat == nil {
		mat = materialize.New(nil)
	}
	if seedDoc == nil {
		seedDoc = mat.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		log:       log,
		mat:       mat,
		logger:    logger.With("component", "pipeline"),
		accepting: true,
		pending:   make(map[uint64]*Handle),
		buffer:    make(map[uint64]ir.Event),
		nextApply: seedSeq + 1,
		doc:       seedDoc.Clone(),
		drained:   make(chan struct{}),
	}
}

// Commit admits one event. It returns as soon as the event has a seq and is
// queued; the Handle resolves once it is durable.
func (p *Pipeline) Commit(name string, args ir.Object) (*Handle, error) {
	if err := p.mat.Schema().Validate(name, args); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	// mu is held across Append so the completion, which also takes mu,
	// always finds the handle registered.
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.accepting {
		return nil, ErrNotAccepting
	}

	ev, err := p.log.Append(name, args, p.complete)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", name, err)
	}

	h := newHandle(ev)
	p.pending[ev.Seq] = h
	p.admitted++
	return h, nil
}

// complete records the outcome of one write.
func (p *Pipeline) complete(ev ir.Event, err error) {
	p.mu.Lock()
	h, ok := p.pending[ev.Seq]
	if !ok {
		p.mu.Unlock()
		p.logger.Error("completion for unknown seq", "seq", ev.Seq)
		return
	}
	delete(p.pending, ev.Seq)

	if err != nil {
		p.failed++
		if p.firstErr == nil {
			p.firstErr = err
			p.logger.Error("write failed; materialization stops", "seq", ev.Seq, "error", err)
		}
	} else {
		p.durable++
		p.buffer[ev.Seq] = ev
		p.applyReady()
	}

	// Resolve before the drain gate can open, so every handle is settled by
	// the time Drain returns.
	h.resolve(err)

	if p.draining && len(p.pending) == 0 {
		p.closeDrained()
	}
	p.mu.Unlock()
}

// applyReady folds every buffered event contiguous with nextApply.
// Caller holds mu.
func (p *Pipeline) applyReady() {
	for {
		ev, ok := p.buffer[p.nextApply]
		if !ok {
			return
		}
		next, err := p.mat.Apply(p.doc, ev)
		if err != nil {
			if p.firstErr == nil {
				p.firstErr = err
			}
			p.logger.Error("apply failed; materialization stops", "seq", ev.Seq, "error", err)
			return
		}
		delete(p.buffer, p.nextApply)
		p.doc = next
		p.applied++
		p.nextApply++
	}
}

func (p *Pipeline) closeDrained() {
	select {
	case <-p.drained:
	default:
		close(p.drained)
	}
}

// Query returns a deep copy of the live document.
func (p *Pipeline) Query() ir.Object {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.doc.Clone()
}

// Accepting reports whether Commit still admits events.
func (p *Pipeline) Accepting() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.accepting
}

// Pending returns how many admitted commits have not resolved.
func (p *Pipeline) Pending() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pending)
}

// Drain stops admission and waits until every admitted commit has resolved.
// Drain may be called more than once; ctx only bounds this call's wait.
func (p *Pipeline) Drain(ctx context.Context) error {
	p.mu.Lock()
	p.accepting = false
	if !p.draining {
		p.draining = true
		p.logger.Debug("drain started", "pending", len(p.pending))
		if len(p.pending) == 0 {
			p.closeDrained()
		}
	}
	drained := p.drained
	p.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the first write or apply failure, if any.
func (p *Pipeline) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.firstErr
}

// Stats returns a consistent snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Stats{
		Admitted:    p.admitted,
		Durable:     p.durable,
		Applied:     p.applied,
		Failed:      p.failed,
		Pending:     uint64(len(p.pending)),
		Buffered:    uint64(len(p.buffer)),
		LastApplied: p.nextApply - 1,
	}
}
