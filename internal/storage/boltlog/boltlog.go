// Package boltlog implements the "bolt" storage backend on bbolt.
//
// Records live in bucket "events" of <base_dir>/<store_id>.bolt under an
// 8-byte big-endian seq key, so a cursor walks them in seq order. Values are
// storage.MarshalRecord output.
package boltlog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.etcd.io/bbolt"

	"github.com/roach88/evstore/internal/ir"
	"github.com/roach88/evstore/internal/storage"
)

// Kind is the registered backend name.
const Kind = "bolt"

// minOpenTimeout bounds the wait on bbolt's own file lock.
const minOpenTimeout = 50 * time.Millisecond

var bucketEvents = []byte("events")

func init() {
	storage.Register(Kind, Open)
}

// Backend is a bbolt-backed event log.
type Backend struct {
	db *bbolt.DB
}

// Open opens the bolt file for storeID. bbolt takes its own flock on the
// file; if it cannot within the timeout the store is reported as locked.
func Open(ctx context.Context, cfg storage.Config, storeID string) (storage.Backend, error) {
	path := cfg.Path(storeID, ".bolt")

	if cfg.ReadOnly {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return storage.Empty(), nil
		}
	}

	timeout := cfg.LockTimeout
	if timeout < minOpenTimeout {
		timeout = minOpenTimeout
	}

	db, err := bbolt.Open(path, 0o644, &bbolt.Options{
		Timeout:  timeout,
		ReadOnly: cfg.ReadOnly,
		NoSync:   cfg.Sync == storage.SyncOff,
	})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, &storage.Error{Code: storage.CodeStoreLocked, StoreID: storeID, Op: "open bolt", Err: err}
		}
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if !cfg.ReadOnly {
		err = db.Update(func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucketEvents)
			return err
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Backend{db: db}, nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// Append writes the batch in one read-write transaction.
func (b *Backend) Append(ctx context.Context, events []ir.Event) error {
	if len(events) == 0 {
		return nil
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketEvents)
		if bucket == nil {
			return fmt.Errorf("bucket %q not found", bucketEvents)
		}
		for _, ev := range events {
			key := seqKey(ev.Seq)
			if bucket.Get(key) != nil {
				return fmt.Errorf("append seq %d: already stored", ev.Seq)
			}
			value, err := storage.MarshalRecord(ev)
			if err != nil {
				return fmt.Errorf("append seq %d: %w", ev.Seq, err)
			}
			if err := bucket.Put(key, value); err != nil {
				return fmt.Errorf("append seq %d: %w", ev.Seq, err)
			}
		}
		return nil
	})
}

// ReadAll walks the bucket in key order and stops at the first gap or
// damaged value.
func (b *Backend) ReadAll(ctx context.Context) ([]ir.Event, error) {
	events := []ir.Event{}
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketEvents)
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(k) != 8 || binary.BigEndian.Uint64(k) != uint64(len(events))+1 {
				return nil
			}
			ev, err := storage.UnmarshalRecord(v)
			if err != nil || ev.Seq != binary.BigEndian.Uint64(k) {
				return nil
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

// Close closes the database and releases bbolt's file lock.
func (b *Backend) Close() error {
	return b.db.Close()
}
