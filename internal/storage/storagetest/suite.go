// Package storagetest holds the behaviour shared by every storage kind.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evstore/internal/ir"
	"github.com/roach88/evstore/internal/storage"
	"github.com/roach88/evstore/internal/testutil"
)

// BackendSuite runs the behaviour every storage kind must share against kind.
func BackendSuite(t *testing.T, kind string) {
	t.Helper()

	open := func(t *testing.T, cfg storage.Config) *storage.Handle {
		t.Helper()
		h, err := storage.Open(context.Background(), cfg, "S-A")
		require.NoError(t, err)
		return h
	}
	write := func(t *testing.T, h *storage.Handle, events []ir.Event) {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var acks []*storage.Ack
		for _, ev := range events {
			a, err := h.AppendAsync(ev, nil)
			require.NoError(t, err)
			acks = append(acks, a)
		}
		for _, a := range acks {
			require.NoError(t, a.Wait(ctx))
		}
	}

	t.Run("empty store reads empty", func(t *testing.T) {
		h := open(t, storage.Config{Backend: kind, BaseDir: t.TempDir()})
		defer h.Close()

		got, err := h.ReadAll(context.Background())
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("durable across reopen", func(t *testing.T) {
		cfg := storage.Config{Backend: kind, BaseDir: t.TempDir()}
		events := testutil.DraftEvents("A", 200, 64)

		h := open(t, cfg)
		write(t, h, events)
		require.NoError(t, h.Close())

		h = open(t, cfg)
		defer h.Close()
		got, err := h.ReadAll(context.Background())
		require.NoError(t, err)
		assert.Equal(t, events, got)
	})

	t.Run("close flushes unawaited appends", func(t *testing.T) {
		cfg := storage.Config{Backend: kind, BaseDir: t.TempDir()}
		events := testutil.DraftEvents("A", 200, 2000)

		h := open(t, cfg)
		for _, ev := range events {
			_, err := h.AppendAsync(ev, nil)
			require.NoError(t, err)
		}
		require.NoError(t, h.Close())

		cfg.ReadOnly = true
		ro := open(t, cfg)
		defer ro.Close()
		got, err := ro.ReadAll(context.Background())
		require.NoError(t, err)
		require.Len(t, got, 200)
		assert.Equal(t, ir.String(testutil.Draft("A", 199, 2000)), got[199].Args["draft"])
	})

	t.Run("append continues after reopen", func(t *testing.T) {
		cfg := storage.Config{Backend: kind, BaseDir: t.TempDir()}
		events := testutil.DraftEvents("A", 10, 0)

		h := open(t, cfg)
		write(t, h, events[:4])
		require.NoError(t, h.Close())

		h = open(t, cfg)
		write(t, h, events[4:])
		require.NoError(t, h.Close())

		h = open(t, cfg)
		defer h.Close()
		got, err := h.ReadAll(context.Background())
		require.NoError(t, err)
		assert.Equal(t, events, got)
	})

	t.Run("read-only open of missing store", func(t *testing.T) {
		base := t.TempDir()
		h := open(t, storage.Config{Backend: kind, BaseDir: base, ReadOnly: true})
		defer h.Close()

		got, err := h.ReadAll(context.Background())
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("second writer is locked out", func(t *testing.T) {
		cfg := storage.Config{Backend: kind, BaseDir: t.TempDir()}
		h := open(t, cfg)
		defer h.Close()

		_, err := storage.Open(context.Background(), cfg, "S-A")
		assert.True(t, storage.IsLocked(err), "got %v", err)
	})

	for _, mode := range []storage.SyncMode{storage.SyncNormal, storage.SyncOff} {
		t.Run("sync "+string(mode), func(t *testing.T) {
			cfg := storage.Config{Backend: kind, BaseDir: t.TempDir(), Sync: mode}
			events := testutil.DraftEvents("A", 20, 0)

			h := open(t, cfg)
			write(t, h, events)
			require.NoError(t, h.Close())

			h = open(t, cfg)
			defer h.Close()
			got, err := h.ReadAll(context.Background())
			require.NoError(t, err)
			assert.Equal(t, events, got)
		})
	}
}
