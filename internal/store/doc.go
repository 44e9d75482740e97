// Package store is the public face of one event store: open, commit, query,
// replay and shut down.
//
// # Lifecycle
//
//	Open ──Shutdown──▶ Draining ──▶ Closing ──▶ Closed
//	                                      └───▶ Failed
//
//   - Draining: admission is closed; the coordinator waits until every
//     admitted commit has resolved.
//   - Closing: the storage handle flushes its queue, closes the backend and
//     releases the store lock.
//   - Closed/Failed: terminal. Failed means at least one commit did not
//     become durable, a boundary check did not hold, or the backend did not
//     close cleanly. The lock is released either way.
//
// Shutdown runs on its own goroutine once started and cannot be cancelled;
// the context passed to Shutdown bounds only how long that caller waits.
//
// # Cross-process contract
//
// After Shutdown returns nil, a fresh Open of the same store (in this or any
// other process) replays exactly the committed events.
package store
