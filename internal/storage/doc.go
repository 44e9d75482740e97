// Package storage provides the durable append/read primitive under each
// evstore store.
//
// A Handle couples one Backend (the synchronous, kind-specific writer) with:
//   - an advisory lock file so only one process writes a store at a time
//   - a FIFO queue and a single flusher goroutine that group-commits queued
//     records and resolves their Acks in queue order
//   - Close, which refuses to return until every queued record has been
//     resolved, then closes the backend and releases the lock
//
// # Ordering
//
// Records become durable in exactly the order AppendAsync was called. After
// the first failed batch the handle is poisoned: every later record fails
// with WRITE_FAILED, so a record can never be durable while an earlier one
// is not.
//
// # Backend kinds
//
// Kinds register themselves with Register from their own package init:
//   - sqlite (internal/storage/sqlite): default, WAL journal
//   - fs     (internal/storage/fslog): NDJSON file with per-record checksums
//   - bolt   (internal/storage/boltlog): bbolt bucket keyed by seq
package storage
