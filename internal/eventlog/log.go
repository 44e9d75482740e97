package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/evstore/internal/ir"
	"github.com/roach88/evstore/internal/storage"
)

// ErrCorruptLog is returned by Open when the durable events are not exactly
// seqs 1..n.
var ErrCorruptLog = errors.New("event log is corrupt")

// Handle is the part of *storage.Handle the Log uses.
type Handle interface {
	StoreID() string
	AppendAsync(ir.Event, func(ir.Event, error)) (*storage.Ack, error)
	ReadAll(context.Context) ([]ir.Event, error)
}

// Log is the append-only event log of one store.
//
// Thread-safety: all methods are safe for concurrent use.
type Log struct {
	mu        sync.Mutex
	handle    Handle
	clock     *Clock
	sessionID string
	logger    *slog.Logger
}

// Open reads the durable events from handle, checks that they form the
// sequence 1..n, and positions the clock at n. It returns the events it read
// so the caller can seed its projection without a second read.
func Open(ctx context.Context, handle Handle, sessions SessionGenerator, logger *slog.Logger) (*Log, []ir.Event, error) {
	if sessions == nil {
		sessions = UUIDv7Generator{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	events, err := handle.ReadAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open event log: %w", err)
	}
	if err := Verify(events); err != nil {
		return nil, nil, err
	}

	var last uint64
	if n := len(events); n > 0 {
		last = events[n-1].Seq
	}

	l := &Log{
		handle:    handle,
		clock:     NewClockAt(last),
		sessionID: sessions.Generate(),
		logger:    logger.With("component", "eventlog", "store", handle.StoreID()),
	}
	l.logger.Debug("event log opened", "last_seq", last, "session", l.sessionID)
	return l, events, nil
}

// Verify checks that events carry seqs 1..n in order and that each ID
// matches its content.
func Verify(events []ir.Event) error {
	for i, ev := range events {
		want := uint64(i) + 1
		if ev.Seq != want {
			return fmt.Errorf("%w: position %d has seq %d, want %d", ErrCorruptLog, i, ev.Seq, want)
		}
		id, err := ir.EventID(ev.Name, ev.Args, ev.Seq)
		if err != nil {
			return fmt.Errorf("%w: seq %d: %v", ErrCorruptLog, ev.Seq, err)
		}
		if id != ev.ID {
			return fmt.Errorf("%w: seq %d: id mismatch", ErrCorruptLog, ev.Seq)
		}
	}
	return nil
}

// SessionID returns the session stamped on events appended through this Log.
func (l *Log) SessionID() string {
	return l.sessionID
}

// LastSeq returns the highest seq assigned so far (durable or not).
func (l *Log) LastSeq() uint64 {
	return l.clock.Current()
}

// Append assigns the next seq to a new event and enqueues it for storage.
//
// onDone runs once the event is durable or has failed; see
// storage.Handle.AppendAsync for the goroutine it runs on. On error the event
// was not enqueued, its seq is released, and onDone is never called.
func (l *Log) Append(name string, args ir.Object, onDone func(ir.Event, error)) (ir.Event, error) {
	if args == nil {
		args = ir.Object{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seq := l.clock.Next()
	id, err := ir.EventID(name, args, seq)
	if err != nil {
		l.clock.rewind()
		return ir.Event{}, fmt.Errorf("append %s: %w", name, err)
	}

	ev := ir.Event{
		Seq:       seq,
		ID:        id,
		Name:      name,
		Args:      args.Clone(),
		SessionID: l.sessionID,
	}
	if _, err := l.handle.AppendAsync(ev, onDone); err != nil {
		l.clock.rewind()
		return ir.Event{}, fmt.Errorf("append %s: %w", name, err)
	}

	l.logger.Debug("event appended", "seq", seq, "name", name)
	return ev, nil
}

// Replay re-reads the durable events from storage.
func (l *Log) Replay(ctx context.Context) ([]ir.Event, error) {
	events, err := l.handle.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if err := Verify(events); err != nil {
		return nil, err
	}
	return events, nil
}
