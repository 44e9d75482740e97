package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/evstore/internal/ir"
	"github.com/roach88/evstore/internal/materialize"
	"github.com/roach88/evstore/internal/pipeline"
	"github.com/roach88/evstore/internal/storage"
	"github.com/roach88/evstore/internal/store"
	"github.com/roach88/evstore/internal/testutil"
)

// ShutdownTimeout bounds each writer session's Shutdown.
const ShutdownTimeout = 30 * time.Second

// storeID is the store every scenario writes. Scenarios get their own
// base directory, so the ID never collides.
const storeID = "S-A"

// Harness is the scenario execution engine.
type Harness struct {
	scenario *Scenario
	cfg      storage.Config
	sessions *testutil.FixedSessionGenerator
	logger   *slog.Logger
}

// Run executes a scenario in baseDir and returns the result.
//
// Execution flow:
//  1. Run each writer session: open, commit, burst, shutdown
//  2. Open a read-only reader, replay, and materialize twice
//  3. Evaluate assertions against the reader's view
//
// An error is returned only when the run itself could not proceed (a store
// failed to open); failed expectations land in Result.Errors.
func Run(scenario *Scenario, baseDir string) (*Result, error) {
	h := &Harness{
		scenario: scenario,
		cfg: storage.Config{
			Backend: scenario.Backend,
			BaseDir: baseDir,
			Sync:    storage.SyncMode(scenario.Sync),
		},
		sessions: testutil.NewFixedSessionGenerator(scenario.SessionID),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	result := NewResult()
	for i, session := range scenario.Sessions {
		if err := h.runSession(i, session, result); err != nil {
			return nil, err
		}
	}

	if err := h.read(result); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) open(readOnly bool) (*store.Store, error) {
	cfg := h.cfg
	cfg.ReadOnly = readOnly
	return store.Open(context.Background(), storeID, cfg,
		store.WithSessionGenerator(h.sessions),
		store.WithLogger(h.logger),
	)
}

func (h *Harness) runSession(index int, session Session, result *Result) error {
	st, err := h.open(false)
	if err != nil {
		return fmt.Errorf("session %d: %w", index, err)
	}

	ctx := context.Background()
	for j, step := range session.Commits {
		args, err := convertArgs(step.Args)
		if err != nil {
			return fmt.Errorf("session %d commit %d: %w", index, j, err)
		}
		handle, err := st.Commit(step.Event, args)
		if msg := checkCommitError(step.ExpectError, err); msg != "" {
			result.AddError(fmt.Sprintf("sessions[%d].commits[%d]: %s", index, j, msg))
		}
		if handle != nil && session.Await {
			if err := handle.Wait(ctx); err != nil {
				result.AddError(fmt.Sprintf("sessions[%d].commits[%d]: not durable: %v", index, j, err))
			}
		}
	}

	if b := session.Burst; b != nil {
		for i := 0; i < b.Count; i++ {
			args := ir.Object{"draft": ir.String(testutil.Draft(b.Attempt, i, b.Padding))}
			if _, err := st.Commit("uiStateSet", args); err != nil {
				result.AddError(fmt.Sprintf("sessions[%d].burst[%d]: %v", index, i, err))
				break
			}
		}
	}

	sctx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()
	if err := st.Shutdown(sctx); err != nil {
		result.AddError(fmt.Sprintf("sessions[%d]: shutdown: %v", index, err))
	}
	result.States = append(result.States, st.State().String())
	return nil
}

// checkCommitError compares a Commit error with the expected kind and
// returns a message when they disagree.
func checkCommitError(expect string, err error) string {
	var want error
	switch expect {
	case "":
		if err != nil {
			return fmt.Sprintf("unexpected error: %v", err)
		}
		return ""
	case ExpectInvalidEvent:
		want = pipeline.ErrInvalidEvent
	case ExpectNotAccepting:
		want = pipeline.ErrNotAccepting
	case ExpectReadOnly:
		want = store.ErrReadOnly
	}
	if !errors.Is(err, want) {
		return fmt.Sprintf("expected %s error, got %v", expect, err)
	}
	return ""
}

// read opens the store as a fresh reader and fills the trace and document.
// It also checks that materializing the replay twice is bit-identical with
// the reader's own document.
func (h *Harness) read(result *Result) error {
	reader, err := h.open(true)
	if err != nil {
		return fmt.Errorf("reader: %w", err)
	}
	defer reader.Shutdown(context.Background())

	events, err := reader.Replay(context.Background())
	if err != nil {
		return fmt.Errorf("reader: %w", err)
	}
	for _, ev := range events {
		result.Trace = append(result.Trace, TraceEvent{Seq: ev.Seq, ID: ev.ID, Name: ev.Name, Args: ev.Args})
	}
	result.Document = reader.Query()

	m := materialize.New(nil)
	want := ir.MustMarshalCanonical(result.Document)
	for pass := 1; pass <= 2; pass++ {
		doc, err := m.Replay(events)
		if err != nil {
			result.AddError(fmt.Sprintf("replay pass %d: %v", pass, err))
			continue
		}
		if got := ir.MustMarshalCanonical(doc); string(got) != string(want) {
			result.AddError(fmt.Sprintf("replay pass %d: document %s differs from reader %s", pass, got, want))
		}
	}
	return nil
}

// convertArgs converts YAML args to an ir.Object.
func convertArgs(args map[string]interface{}) (ir.Object, error) {
	if args == nil {
		return ir.Object{}, nil
	}
	v, err := ir.FromAny(args)
	if err != nil {
		return nil, fmt.Errorf("convert args: %w", err)
	}
	return v.(ir.Object), nil
}
