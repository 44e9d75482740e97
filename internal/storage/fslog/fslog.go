// Package fslog implements the "fs" storage backend: one append-only NDJSON
// file per store, <base_dir>/<store_id>.ndjson.
//
// Each line is storage.MarshalRecord output, so every record carries its own
// checksum. A crash mid-write leaves at most one torn trailing line; readers
// stop before it and the next writable open truncates it away.
package fslog

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/roach88/evstore/internal/ir"
	"github.com/roach88/evstore/internal/storage"
)

// Kind is the registered backend name.
const Kind = "fs"

func init() {
	storage.Register(Kind, Open)
}

// Backend is an NDJSON event file.
type Backend struct {
	mu       sync.Mutex
	path     string
	file     *os.File // nil for read-only
	sync     bool
	lastSeq  uint64
	readOnly bool
}

// Open opens or creates the log file for storeID. A writable open drops any
// damaged tail so new records always follow the last valid one.
func Open(ctx context.Context, cfg storage.Config, storeID string) (storage.Backend, error) {
	path := cfg.Path(storeID, ".ndjson")

	if cfg.ReadOnly {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return storage.Empty(), nil
		}
		return &Backend{path: path, readOnly: true}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	events, valid, err := scan(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := truncateTail(f, valid); err != nil {
		f.Close()
		return nil, err
	}

	b := &Backend{
		path: path,
		file: f,
		sync: cfg.Sync != storage.SyncOff,
	}
	if n := len(events); n > 0 {
		b.lastSeq = events[n-1].Seq
	}
	return b, nil
}

func truncateTail(f *os.File, valid int64) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() != valid {
		if err := f.Truncate(valid); err != nil {
			return fmt.Errorf("truncate damaged tail: %w", err)
		}
		if err := f.Sync(); err != nil {
			return fmt.Errorf("sync after truncate: %w", err)
		}
	}
	if _, err := f.Seek(valid, io.SeekStart); err != nil {
		return fmt.Errorf("seek log file: %w", err)
	}
	return nil
}

// Append writes the batch with a single write call, then fsyncs.
func (b *Backend) Append(ctx context.Context, events []ir.Event) error {
	if b.readOnly {
		return storage.ErrReadOnly
	}
	if len(events) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var buf bytes.Buffer
	next := b.lastSeq + 1
	for _, ev := range events {
		if ev.Seq != next {
			return fmt.Errorf("append seq %d: expected %d", ev.Seq, next)
		}
		line, err := storage.MarshalRecord(ev)
		if err != nil {
			return fmt.Errorf("append seq %d: %w", ev.Seq, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
		next++
	}

	if _, err := b.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	if b.sync {
		if err := b.file.Sync(); err != nil {
			return fmt.Errorf("fsync batch: %w", err)
		}
	}
	b.lastSeq = next - 1
	return nil
}

// ReadAll reads the file from the start. It holds the append mutex, so a
// reader in this process never sees half a batch.
func (b *Backend) ReadAll(ctx context.Context) ([]ir.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.Open(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []ir.Event{}, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	events, _, err := scan(f)
	return events, err
}

// Close closes the file. Appended batches were already synced.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	return err
}

// scan decodes records from the start of r. It returns the valid prefix and
// its length in bytes. Scanning stops at the first line that is unterminated,
// fails its checksum, or breaks the seq sequence.
func scan(r io.Reader) ([]ir.Event, int64, error) {
	br := bufio.NewReader(r)
	events := []ir.Event{}
	var valid int64

	for {
		line, err := br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, 0, fmt.Errorf("read log file: %w", err)
		}
		if len(line) == 0 || line[len(line)-1] != '\n' {
			// EOF, or a torn final line without its terminator.
			return events, valid, nil
		}

		ev, derr := storage.UnmarshalRecord(line[:len(line)-1])
		if derr != nil || ev.Seq != uint64(len(events))+1 {
			return events, valid, nil
		}
		events = append(events, ev)
		valid += int64(len(line))
	}
}
