package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/roach88/evstore/internal/ir"
)

// Stats instruments the flush-confirmation boundary. At rest,
// Flushed + Failed == Enqueued.
type Stats struct {
	Enqueued uint64 `json:"enqueued"`
	Flushed  uint64 `json:"flushed"`
	Failed   uint64 `json:"failed"`
	Batches  uint64 `json:"batches"`
}

// Handle is an open store resource: backend, lock and flusher.
//
// Thread-safety model:
//   - AppendAsync, ReadAll, Stats: safe from any goroutine
//   - Backend.Append: only ever called from the flusher goroutine
//   - Close: safe from any goroutine, idempotent
type Handle struct {
	storeID string
	cfg     Config
	backend Backend
	release func() error
	logger  *slog.Logger

	queue       *recordQueue
	flusherDone chan struct{}

	// poison is the first write failure. Owned by the flusher goroutine.
	poison error

	flushed atomic.Uint64
	failed  atomic.Uint64
	batches atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// Open opens the store's backend and starts its flusher.
//
// Unless cfg.ReadOnly, Open first takes the store's lock file and fails fast
// with STORE_LOCKED if another process holds it.
func Open(ctx context.Context, cfg Config, storeID string) (*Handle, error) {
	if err := ValidateStoreID(storeID); err != nil {
		return nil, unavailable(storeID, "open", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, unavailable(storeID, "open", err)
	}
	cfg = cfg.withDefaults()

	factory, ok := lookup(cfg.Backend)
	if !ok {
		return nil, unavailable(storeID, "open", fmt.Errorf("unknown backend %q", cfg.Backend))
	}

	logger := cfg.Logger.With("component", "storage", "store", storeID, "backend", cfg.Backend)

	var release func() error
	if !cfg.ReadOnly {
		if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
			return nil, unavailable(storeID, "create base dir", err)
		}
		rel, err := acquireLock(cfg.LockPath(storeID), cfg.LockTimeout)
		if err != nil {
			if errors.Is(err, errLockHeld) {
				return nil, &Error{Code: CodeStoreLocked, StoreID: storeID, Op: "open", Err: err}
			}
			return nil, unavailable(storeID, "lock", err)
		}
		release = rel
	}

	backend, err := factory(ctx, cfg, storeID)
	if err != nil {
		if release != nil {
			_ = release()
		}
		var se *Error
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, unavailable(storeID, "open backend", err)
	}

	h := &Handle{
		storeID:     storeID,
		cfg:         cfg,
		backend:     backend,
		release:     release,
		logger:      logger,
		queue:       newRecordQueue(),
		flusherDone: make(chan struct{}),
	}
	go h.runFlusher()

	logger.Debug("storage opened", "read_only", cfg.ReadOnly, "sync", cfg.Sync)
	return h, nil
}

// StoreID returns the store this handle serves.
func (h *Handle) StoreID() string {
	return h.storeID
}

// Config returns the effective configuration, defaults applied.
func (h *Handle) Config() Config {
	return h.cfg
}

// AppendAsync queues ev for durable storage and returns its future.
//
// onDone, if non-nil, runs on the flusher goroutine just before the ack
// resolves. It must not call back into the handle synchronously.
//
// AppendAsync never blocks on I/O. It returns an error only when the record
// cannot be admitted at all (read-only or closed handle); in that case onDone
// is never called.
func (h *Handle) AppendAsync(ev ir.Event, onDone func(ir.Event, error)) (*Ack, error) {
	if h.cfg.ReadOnly {
		return nil, &Error{Code: CodeWriteFailed, StoreID: h.storeID, Op: "append", Seq: ev.Seq, Err: ErrReadOnly}
	}
	ack := newAck(ev, onDone)

	// The queue counts the ack under its lock, so Close never sees a
	// record that is counted but can no longer be flushed.
	if !h.queue.Enqueue(ack) {
		return nil, &Error{Code: CodeWriteFailed, StoreID: h.storeID, Op: "append", Seq: ev.Seq, Err: ErrHandleClosed}
	}
	return ack, nil
}

// ReadAll returns every durable event in seq order.
func (h *Handle) ReadAll(ctx context.Context) ([]ir.Event, error) {
	events, err := h.backend.ReadAll(ctx)
	if err != nil {
		return nil, unavailable(h.storeID, "read", err)
	}
	return events, nil
}

// Pending returns how many admitted records have not resolved yet.
func (h *Handle) Pending() uint64 {
	s := h.Stats()
	return s.Enqueued - s.Flushed - s.Failed
}

// Stats returns a snapshot of the handle's counters.
func (h *Handle) Stats() Stats {
	// Resolved counters load first: enqueued only grows, so each snapshot
	// keeps Flushed + Failed <= Enqueued.
	flushed := h.flushed.Load()
	failed := h.failed.Load()
	return Stats{
		Enqueued: h.queue.Admitted(),
		Flushed:  flushed,
		Failed:   failed,
		Batches:  h.batches.Load(),
	}
}

// Close stops admission, waits until the flusher has resolved every queued
// record, closes the backend and releases the lock.
//
// Close never returns while an ack is still pending. If the counters show a
// record that was admitted but never resolved, or the backend fails to
// close, Close returns CLOSE_FAILED. Calls after the first return nil.
func (h *Handle) Close() error {
	first := false
	h.closeOnce.Do(func() {
		first = true
		h.closeErr = h.close()
	})
	if !first {
		return nil
	}
	return h.closeErr
}

func (h *Handle) close() error {
	h.queue.Close()
	<-h.flusherDone

	var errs []error
	if s := h.Stats(); s.Flushed+s.Failed != s.Enqueued {
		errs = append(errs, fmt.Errorf("unresolved records after drain: enqueued=%d flushed=%d failed=%d",
			s.Enqueued, s.Flushed, s.Failed))
	}
	if err := h.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}
	if h.release != nil {
		if err := h.release(); err != nil {
			errs = append(errs, fmt.Errorf("release lock: %w", err))
		}
	}

	if len(errs) > 0 {
		err := &Error{Code: CodeCloseFailed, StoreID: h.storeID, Op: "close", Err: errors.Join(errs...)}
		h.logger.Error("storage close failed", "error", err)
		return err
	}

	s := h.Stats()
	h.logger.Debug("storage closed", "flushed", s.Flushed, "failed", s.Failed, "batches", s.Batches)
	return nil
}

// runFlusher is the only goroutine that writes to the backend.
func (h *Handle) runFlusher() {
	defer close(h.flusherDone)

	for {
		batch, closed := h.queue.Take(h.cfg.MaxBatch)
		if len(batch) > 0 {
			h.flush(batch)
			continue
		}
		if closed {
			return
		}
		<-h.queue.Wait()
	}
}

// flush group-commits one batch and resolves its acks in queue order.
func (h *Handle) flush(batch []*Ack) {
	err := h.poison
	if err == nil {
		events := make([]ir.Event, len(batch))
		for i, a := range batch {
			events[i] = a.event
		}

		if werr := h.backend.Append(context.Background(), events); werr != nil {
			err = &Error{Code: CodeWriteFailed, StoreID: h.storeID, Op: "append", Seq: batch[0].event.Seq, Err: werr}
			h.poison = err
			h.logger.Error("batch write failed; rejecting all later records",
				"first_seq", batch[0].event.Seq,
				"records", len(batch),
				"error", werr,
			)
		} else {
			h.batches.Add(1)
			h.logger.Debug("batch durable",
				"first_seq", batch[0].event.Seq,
				"last_seq", batch[len(batch)-1].event.Seq,
				"records", len(batch),
			)
		}
	}

	for _, a := range batch {
		if err != nil {
			h.failed.Add(1)
		} else {
			h.flushed.Add(1)
		}
		a.resolve(err)
	}
}
