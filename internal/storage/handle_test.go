package storage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evstore/internal/ir"
	"github.com/roach88/evstore/internal/storage"
	"github.com/roach88/evstore/internal/testutil"
)

func openMem(t *testing.T, b *testutil.Backend) (*storage.Handle, storage.Config) {
	t.Helper()
	cfg := storage.Config{Backend: testutil.RegisterBackend(b), BaseDir: t.TempDir()}
	h, err := storage.Open(context.Background(), cfg, "S-A")
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h, cfg
}

func appendAll(t *testing.T, h *storage.Handle, events []ir.Event) []*storage.Ack {
	t.Helper()
	acks := make([]*storage.Ack, len(events))
	for i, ev := range events {
		a, err := h.AppendAsync(ev, nil)
		require.NoError(t, err)
		acks[i] = a
	}
	return acks
}

func waitAll(t *testing.T, acks []*storage.Ack) []error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs := make([]error, len(acks))
	for i, a := range acks {
		errs[i] = a.Wait(ctx)
		require.NotErrorIs(t, errs[i], context.DeadlineExceeded)
	}
	return errs
}

func TestHandle_AppendIsDurableInOrder(t *testing.T) {
	b := testutil.NewBackend()
	h, _ := openMem(t, b)

	events := testutil.DraftEvents("A", 50, 8)
	for _, err := range waitAll(t, appendAll(t, h, events)) {
		require.NoError(t, err)
	}

	got, err := h.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, events, got)

	var flat []uint64
	for _, batch := range b.Batches() {
		flat = append(flat, batch...)
	}
	require.Len(t, flat, 50)
	for i, seq := range flat {
		assert.Equal(t, uint64(i+1), seq, "batches preserve queue order")
	}
}

func TestHandle_GroupCommit(t *testing.T) {
	b := testutil.NewBackend().Hold()
	h, _ := openMem(t, b)
	events := testutil.DraftEvents("A", 10, 0)

	// The first record occupies the flusher; the rest queue behind it.
	acks := appendAll(t, h, events[:1])
	<-b.Entered()
	acks = append(acks, appendAll(t, h, events[1:])...)
	b.Release()
	waitAll(t, acks)

	assert.Equal(t, [][]uint64{{1}, {2, 3, 4, 5, 6, 7, 8, 9, 10}}, b.Batches())
	assert.Equal(t, uint64(2), h.Stats().Batches)
}

func TestHandle_CallbackRunsBeforeDone(t *testing.T) {
	h, _ := openMem(t, testutil.NewBackend())

	var mu sync.Mutex
	var order []uint64
	var acks []*storage.Ack
	for _, ev := range testutil.DraftEvents("A", 20, 0) {
		a, err := h.AppendAsync(ev, func(ev ir.Event, err error) {
			mu.Lock()
			order = append(order, ev.Seq)
			mu.Unlock()
		})
		require.NoError(t, err)
		acks = append(acks, a)
	}
	waitAll(t, acks)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 20)
	for i, seq := range order {
		assert.Equal(t, uint64(i+1), seq)
	}
}

func TestHandle_PoisonedAfterFirstFailure(t *testing.T) {
	b := testutil.NewBackend().FailAt(3)
	h, _ := openMem(t, b)
	events := testutil.DraftEvents("A", 6, 0)

	errs := waitAll(t, appendAll(t, h, events[:2]))
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	errs = waitAll(t, appendAll(t, h, events[2:4]))
	for _, err := range errs {
		assert.True(t, storage.IsWriteFailed(err))
		assert.ErrorIs(t, err, testutil.ErrInjected)
	}

	// Later records fail with the first cause, even ones the backend would
	// have accepted.
	b.FailAt(0)
	errs = waitAll(t, appendAll(t, h, events[4:]))
	for _, err := range errs {
		var se *storage.Error
		require.ErrorAs(t, err, &se)
		assert.Equal(t, uint64(3), se.Seq)
	}

	got, err := h.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2, "no gap became durable")

	stats := h.Stats()
	assert.Equal(t, uint64(6), stats.Enqueued)
	assert.Equal(t, uint64(2), stats.Flushed)
	assert.Equal(t, uint64(4), stats.Failed)
}

func TestHandle_CloseDrainsQueue(t *testing.T) {
	b := testutil.NewBackend().Hold()
	h, _ := openMem(t, b)
	acks := appendAll(t, h, testutil.DraftEvents("A", 25, 0))
	<-b.Entered()

	closed := make(chan error, 1)
	go func() { closed <- h.Close() }()

	select {
	case <-closed:
		t.Fatal("Close returned while writes were held")
	case <-time.After(20 * time.Millisecond):
	}

	b.Release()
	require.NoError(t, <-closed)
	for _, a := range acks {
		select {
		case <-a.Done():
			assert.NoError(t, a.Err())
		default:
			t.Fatalf("ack %d unresolved after Close", a.Seq())
		}
	}
	assert.True(t, b.Closed())
	assert.Equal(t, uint64(0), h.Pending())
}

func TestHandle_CloseIdempotent(t *testing.T) {
	h, _ := openMem(t, testutil.NewBackend())

	require.NoError(t, h.Close())
	assert.NoError(t, h.Close())
}

func TestHandle_CloseFailed(t *testing.T) {
	boom := errors.New("fsync on close")
	h, _ := openMem(t, testutil.NewBackend().FailClose(boom))

	err := h.Close()
	assert.True(t, storage.IsCloseFailed(err))
	assert.ErrorIs(t, err, boom)
}

func TestHandle_AppendAfterClose(t *testing.T) {
	h, _ := openMem(t, testutil.NewBackend())
	require.NoError(t, h.Close())

	_, err := h.AppendAsync(testutil.NewEvent(1, "uiStateSet", nil), func(ir.Event, error) {
		t.Error("callback must not run for a rejected record")
	})
	assert.True(t, storage.IsWriteFailed(err))
	assert.ErrorIs(t, err, storage.ErrHandleClosed)
	assert.Equal(t, uint64(0), h.Stats().Enqueued)
}

func TestClose_RacingAppends(t *testing.T) {
	for round := 0; round < 50; round++ {
		h, _ := openMem(t, testutil.NewBackend())

		var wg sync.WaitGroup
		start := make(chan struct{})
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				<-start
				for i := 1; ; i++ {
					seq := uint64(w*1_000_000 + i)
					if _, err := h.AppendAsync(testutil.NewEvent(seq, "uiStateSet", nil), nil); err != nil {
						assert.ErrorIs(t, err, storage.ErrHandleClosed)
						return
					}
				}
			}(w)
		}

		close(start)
		require.NoError(t, h.Close(), "round %d", round)
		wg.Wait()

		s := h.Stats()
		assert.Equal(t, s.Enqueued, s.Flushed+s.Failed, "round %d", round)
	}
}

func TestOpen_StoreLocked(t *testing.T) {
	b := testutil.NewBackend()
	h, cfg := openMem(t, b)

	_, err := storage.Open(context.Background(), cfg, "S-A")
	require.Error(t, err)
	assert.True(t, storage.IsLocked(err))
	assert.ErrorIs(t, err, storage.ErrStoreLocked)

	// Another store in the same directory is unaffected.
	other, err := storage.Open(context.Background(), cfg, "S-B")
	require.NoError(t, err)
	require.NoError(t, other.Close())

	require.NoError(t, h.Close())
	again, err := storage.Open(context.Background(), cfg, "S-A")
	require.NoError(t, err, "lock is released by Close")
	require.NoError(t, again.Close())
}

func TestOpen_ReadOnlySkipsLock(t *testing.T) {
	_, cfg := openMem(t, testutil.NewBackend())

	cfg.ReadOnly = true
	ro, err := storage.Open(context.Background(), cfg, "S-A")
	require.NoError(t, err)
	defer ro.Close()

	_, err = ro.AppendAsync(testutil.NewEvent(1, "uiStateSet", nil), nil)
	assert.ErrorIs(t, err, storage.ErrReadOnly)
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := storage.Open(ctx, storage.Config{BaseDir: t.TempDir()}, "../escape")
	assert.ErrorIs(t, err, storage.ErrStorageUnavailable)

	_, err = storage.Open(ctx, storage.Config{Backend: "nope", BaseDir: t.TempDir()}, "S-A")
	assert.ErrorIs(t, err, storage.ErrStorageUnavailable)
}
