// Package sqlite implements the "sqlite" storage backend.
//
// Each store is one SQLite database, <base_dir>/<store_id>.db, with a single
// append-only events table. Pragmas:
//   - journal_mode=WAL: readers in other processes never block the writer
//   - synchronous=FULL/NORMAL/OFF: from storage.Config.Sync
//   - busy_timeout=5000: wait out transient reader locks
//
// Every batch is one transaction, so a batch is durable all-or-nothing. Reads
// use ORDER BY seq ASC and stop at the first gap.
package sqlite
