package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evstore/internal/eventlog"
	"github.com/roach88/evstore/internal/ir"
	"github.com/roach88/evstore/internal/materialize"
	"github.com/roach88/evstore/internal/pipeline"
	"github.com/roach88/evstore/internal/storage"
	"github.com/roach88/evstore/internal/testutil"
)

var backends = []string{"sqlite", "fs", "bolt"}

func openStore(t *testing.T, cfg storage.Config) *Store {
	t.Helper()
	s, err := Open(context.Background(), "S-A", cfg, WithSessionGenerator(testutil.NewFixedSessionGenerator("")))
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func shutdown(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}

func draft(s string) ir.Object {
	return ir.Object{"draft": ir.String(s)}
}

// The reproduction scenario: a writer commits a burst without awaiting any
// handle, shuts down, and a fresh reader must see the last event.
func TestScenario_BurstThenShutdown(t *testing.T) {
	const count, padding = 200, 2000

	for _, kind := range backends {
		t.Run(kind, func(t *testing.T) {
			cfg := storage.Config{Backend: kind, BaseDir: t.TempDir()}

			w := openStore(t, cfg)
			for i := 0; i < count; i++ {
				_, err := w.Commit("uiStateSet", draft(testutil.Draft("A", i, padding)))
				require.NoError(t, err)
			}
			shutdown(t, w)
			assert.Equal(t, StateClosed, w.State())

			cfg.ReadOnly = true
			r := openStore(t, cfg)
			assert.Equal(t, ir.String(testutil.Draft("A", count-1, padding)), r.Query()["draft"])

			events, err := r.Replay(context.Background())
			require.NoError(t, err)
			require.Len(t, events, count)
			for i, ev := range events {
				assert.Equal(t, uint64(i+1), ev.Seq)
			}
		})
	}
}

func TestShutdown_LiveDocumentMatchesReplay(t *testing.T) {
	for _, kind := range backends {
		t.Run(kind, func(t *testing.T) {
			cfg := storage.Config{Backend: kind, BaseDir: t.TempDir()}

			w := openStore(t, cfg)
			for i := 0; i < 50; i++ {
				_, err := w.Commit("uiStateSet", draft(fmt.Sprintf("v%d", i)))
				require.NoError(t, err)
				if i == 20 {
					_, err = w.Commit("uiStateReset", nil)
					require.NoError(t, err)
				}
			}
			shutdown(t, w)
			live := ir.MustMarshalCanonical(w.Query())

			stats := w.Stats()
			assert.Equal(t, uint64(51), stats.Pipeline.Applied)
			assert.Equal(t, uint64(51), stats.Storage.Flushed)
			assert.Equal(t, "closed", stats.State)

			cfg.ReadOnly = true
			r := openStore(t, cfg)
			events, err := r.Replay(context.Background())
			require.NoError(t, err)

			m := materialize.New(nil)
			first, err := m.Replay(events)
			require.NoError(t, err)
			second, err := m.Replay(events)
			require.NoError(t, err)

			assert.Equal(t, string(live), string(ir.MustMarshalCanonical(first)))
			assert.Equal(t, string(live), string(ir.MustMarshalCanonical(second)))
			assert.Equal(t, string(live), string(ir.MustMarshalCanonical(r.Query())))
		})
	}
}

func TestOpen_ResumesSeqAfterReopen(t *testing.T) {
	cfg := storage.Config{BaseDir: t.TempDir()}

	w := openStore(t, cfg)
	_, err := w.Commit("uiStateSet", draft("one"))
	require.NoError(t, err)
	shutdown(t, w)

	w = openStore(t, cfg)
	assert.Equal(t, ir.String("one"), w.Query()["draft"])
	h, err := w.Commit("uiStateSet", draft("two"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), h.Seq())
	require.NoError(t, h.Wait(context.Background()))
	shutdown(t, w)
}

func TestOpen_SecondWriterLocked(t *testing.T) {
	for _, kind := range backends {
		t.Run(kind, func(t *testing.T) {
			cfg := storage.Config{Backend: kind, BaseDir: t.TempDir()}
			w := openStore(t, cfg)

			_, err := Open(context.Background(), "S-A", cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, storage.ErrStoreLocked)

			shutdown(t, w)
			again, err := Open(context.Background(), "S-A", cfg)
			require.NoError(t, err, "lock released by shutdown")
			shutdown(t, again)
		})
	}
}

func TestCommit_HandleResolvesWhenDurable(t *testing.T) {
	s := openStore(t, storage.Config{BaseDir: t.TempDir()})

	h, err := s.Commit("uiStateSet", draft("x"))
	require.NoError(t, err)
	require.NoError(t, h.Wait(context.Background()))

	events, err := s.Replay(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, h.Event(), events[0])
	assert.Equal(t, testutil.DefaultSessionID, events[0].SessionID)
}

func TestCommit_Invalid(t *testing.T) {
	s := openStore(t, storage.Config{BaseDir: t.TempDir()})

	_, err := s.Commit("uiStateSet", ir.Object{"draft": ir.Bool(true)})
	assert.Error(t, err)
	assert.Equal(t, uint64(0), s.Stats().Pipeline.Admitted)
}

func TestCommit_ReadOnly(t *testing.T) {
	s := openStore(t, storage.Config{BaseDir: t.TempDir(), ReadOnly: true})

	_, err := s.Commit("uiStateSet", draft("x"))
	assert.ErrorIs(t, err, ErrReadOnly)
	shutdown(t, s)
}

func TestCommit_AfterShutdownRejected(t *testing.T) {
	s := openStore(t, storage.Config{BaseDir: t.TempDir()})
	shutdown(t, s)

	_, err := s.Commit("uiStateSet", draft("late"))
	assert.Error(t, err)
}

func TestShutdown_ContextBoundsWaitNotDrain(t *testing.T) {
	b := testutil.NewBackend().Hold()
	s := openStore(t, storage.Config{Backend: testutil.RegisterBackend(b), BaseDir: t.TempDir()})

	var handles []*pipeline.Handle
	for i := 0; i < 10; i++ {
		h, err := s.Commit("uiStateSet", draft(fmt.Sprintf("%d", i)))
		require.NoError(t, err)
		handles = append(handles, h)
	}
	<-b.Entered()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Shutdown(ctx), context.DeadlineExceeded)
	assert.Equal(t, StateDraining, s.State())

	_, err := s.Commit("uiStateSet", draft("late"))
	assert.Error(t, err, "admission closed while draining")

	b.Release()
	<-s.Done()
	assert.NoError(t, s.Err())
	assert.Equal(t, StateClosed, s.State())
	assert.True(t, b.Closed())
	for _, h := range handles {
		select {
		case <-h.Done():
			assert.NoError(t, h.Err())
		default:
			t.Fatalf("handle %d unresolved after shutdown", h.Seq())
		}
	}
	assert.Equal(t, uint64(10), s.Stats().Storage.Flushed)
}

func TestShutdown_ConcurrentCallersShareResult(t *testing.T) {
	s := openStore(t, storage.Config{BaseDir: t.TempDir()})
	for i := 0; i < 20; i++ {
		_, err := s.Commit("uiStateSet", draft("x"))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.Shutdown(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range results {
		assert.NoError(t, err)
	}
	assert.NoError(t, s.Shutdown(context.Background()), "call after completion")
}

func TestShutdown_WriteFailure(t *testing.T) {
	b := testutil.NewBackend().FailAt(5)
	cfg := storage.Config{Backend: testutil.RegisterBackend(b), BaseDir: t.TempDir()}
	s := openStore(t, cfg)

	// Seqs 1-4 are made durable before the failing batch is queued.
	var last error
	for i := 0; i < 10; i++ {
		h, err := s.Commit("uiStateSet", draft(fmt.Sprintf("%d", i)))
		require.NoError(t, err)
		switch i {
		case 3:
			require.NoError(t, h.Wait(context.Background()))
		case 9:
			last = h.Wait(context.Background())
		}
	}
	assert.True(t, storage.IsWriteFailed(last))

	err := s.Shutdown(context.Background())
	require.Error(t, err)
	assert.True(t, IsShutdownError(err))
	assert.ErrorIs(t, err, storage.ErrWriteFailed)
	assert.ErrorIs(t, err, testutil.ErrInjected)
	assert.NotErrorIs(t, err, ErrDrainGateBypassed, "failed writes are accounted for")
	assert.Equal(t, StateFailed, s.State())

	// The document stops before the first failed seq.
	assert.Equal(t, ir.String("3"), s.Query()["draft"])

	assert.True(t, b.Closed())
	again, err := Open(context.Background(), "S-A", cfg)
	require.NoError(t, err, "lock released after failed shutdown")
	shutdown(t, again)
}

func TestShutdown_CloseFailure(t *testing.T) {
	boom := errors.New("close exploded")
	b := testutil.NewBackend().FailClose(boom)
	s := openStore(t, storage.Config{Backend: testutil.RegisterBackend(b), BaseDir: t.TempDir()})

	_, err := s.Commit("uiStateSet", draft("x"))
	require.NoError(t, err)

	err = s.Shutdown(context.Background())
	assert.ErrorIs(t, err, storage.ErrCloseFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateFailed, s.State())
}

func TestOpen_CorruptLogReportsCloseFailure(t *testing.T) {
	boom := errors.New("close exploded")
	b := testutil.NewBackend().FailClose(boom)
	require.NoError(t, b.Append(context.Background(), []ir.Event{testutil.NewEvent(2, "uiStateSet", draft("gap"))}))
	cfg := storage.Config{Backend: testutil.RegisterBackend(b), BaseDir: t.TempDir()}

	_, err := Open(context.Background(), "S-A", cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, eventlog.ErrCorruptLog)
	assert.ErrorIs(t, err, storage.ErrCloseFailed)
	assert.ErrorIs(t, err, boom)
	assert.True(t, b.Closed())
}

// Queries racing a burst of commits never see a torn document.
func TestQuery_ConcurrentWithCommits(t *testing.T) {
	s := openStore(t, storage.Config{Backend: "fs", BaseDir: t.TempDir(), Sync: storage.SyncOff})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var torn sync.Once
	var tornDoc string
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				d, _ := s.Query()["draft"].(ir.String)
				if d == "" {
					continue
				}
				parts := strings.Split(string(d), "|")
				if len(parts) != 2 || parts[0] != parts[1] {
					torn.Do(func() { tornDoc = string(d) })
				}
			}
		}()
	}

	for i := 0; i < 300; i++ {
		_, err := s.Commit("uiStateSet", draft(fmt.Sprintf("%d|%d", i, i)))
		require.NoError(t, err)
	}
	shutdown(t, s)
	close(stop)
	wg.Wait()

	assert.Empty(t, tornDoc)
	assert.Equal(t, ir.String("299|299"), s.Query()["draft"])
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.True(t, StateClosed.Terminal())
	assert.False(t, StateClosing.Terminal())
}
