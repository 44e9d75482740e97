package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/evstore/internal/eventlog"
	"github.com/roach88/evstore/internal/ir"
	"github.com/roach88/evstore/internal/materialize"
	"github.com/roach88/evstore/internal/pipeline"
	"github.com/roach88/evstore/internal/schema"
	"github.com/roach88/evstore/internal/storage"

	// Backend kinds available to every store.
	_ "github.com/roach88/evstore/internal/storage/boltlog"
	_ "github.com/roach88/evstore/internal/storage/fslog"
	_ "github.com/roach88/evstore/internal/storage/sqlite"
)

// Stats combines the counters of both shutdown boundaries.
type Stats struct {
	State    string         `json:"state"`
	Pipeline pipeline.Stats `json:"pipeline"`
	Storage  storage.Stats  `json:"storage"`
}

// Store is one open event store.
//
// Thread-safety: every method is safe for concurrent use.
type Store struct {
	id       string
	readOnly bool
	handle   *storage.Handle
	log      *eventlog.Log
	pipe     *pipeline.Pipeline
	schema   *schema.Schema
	logger   *slog.Logger

	state        atomic.Int32
	shutdownOnce sync.Once
	done         chan struct{}
	shutdownErr  error
}

// Option configures Open.
type Option func(*options)

type options struct {
	schema   *schema.Schema
	logger   *slog.Logger
	sessions eventlog.SessionGenerator
}

// WithSchema sets the document schema. Default: schema.Default().
func WithSchema(s *schema.Schema) Option {
	return func(o *options) {
		o.schema = s
	}
}

// WithLogger sets the logger for the store and its components.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithSessionGenerator sets how the writer session ID is minted.
// Default: eventlog.UUIDv7Generator.
func WithSessionGenerator(g eventlog.SessionGenerator) Option {
	return func(o *options) {
		o.sessions = g
	}
}

// Open opens storeID, replays its durable events into the document, and
// readies it for commits. Unless cfg.ReadOnly, the store lock is held until
// Shutdown; a second writer gets STORE_LOCKED.
func Open(ctx context.Context, storeID string, cfg storage.Config, opts ...Option) (*Store, error) {
	o := options{sessions: eventlog.UUIDv7Generator{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = o.logger
	}

	handle, err := storage.Open(ctx, cfg, storeID)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", storeID, err)
	}

	log, events, err := eventlog.Open(ctx, handle, o.sessions, o.logger)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open store %s: %w", storeID, err), handle.Close())
	}

	mat := materialize.New(o.schema)
	doc, err := mat.Replay(events)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open store %s: replay: %w", storeID, err), handle.Close())
	}

	s := &Store{
		id:       storeID,
		readOnly: cfg.ReadOnly,
		handle:   handle,
		log:      log,
		pipe:     pipeline.New(log, mat, doc, log.LastSeq(), o.logger.With("store", storeID)),
		schema:   mat.Schema(),
		logger:   o.logger.With("component", "store", "store", storeID),
		done:     make(chan struct{}),
	}
	s.logger.Info("store opened",
		"backend", handle.Config().Backend,
		"read_only", cfg.ReadOnly,
		"events", len(events),
		"session", log.SessionID(),
	)
	return s, nil
}

// ID returns the store ID.
func (s *Store) ID() string {
	return s.id
}

// SessionID returns the session stamped on events this Store commits.
func (s *Store) SessionID() string {
	return s.log.SessionID()
}

// Schema returns the document schema commits are validated against.
func (s *Store) Schema() *schema.Schema {
	return s.schema
}

// Commit admits one event without waiting for it to be durable.
func (s *Store) Commit(name string, args ir.Object) (*pipeline.Handle, error) {
	if s.readOnly {
		return nil, ErrReadOnly
	}
	h, err := s.pipe.Commit(name, args)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("commit admitted", "seq", h.Seq(), "name", name)
	return h, nil
}

// Query returns a copy of the current document. It reflects a gap-free
// prefix of the durable events, never a partially applied one.
func (s *Store) Query() ir.Object {
	return s.pipe.Query()
}

// Replay re-reads every durable event from storage.
func (s *Store) Replay(ctx context.Context) ([]ir.Event, error) {
	return s.log.Replay(ctx)
}

// State returns the lifecycle state.
func (s *Store) State() State {
	return State(s.state.Load())
}

func (s *Store) setState(st State) {
	s.state.Store(int32(st))
	s.logger.Info("store state", "state", st.String())
}

// Stats returns the pipeline and storage counters.
func (s *Store) Stats() Stats {
	return Stats{
		State:    s.State().String(),
		Pipeline: s.pipe.Stats(),
		Storage:  s.handle.Stats(),
	}
}

// Done is closed when shutdown has finished.
func (s *Store) Done() <-chan struct{} {
	return s.done
}
