// Package testutil provides deterministic doubles for store tests.
//
//   - ScriptedAppender assigns seqs like the event log but lets the test
//     decide when, and in which order, each write completes.
//   - Backend is an in-memory storage.Backend that can block or fail
//     writes on demand; RegisterBackend makes it openable through
//     storage.Open.
//   - FixedSessionGenerator stamps every event with one known session ID.
package testutil
