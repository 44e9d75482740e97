// Package eventlog assigns sequence numbers and identity to events and hands
// them to the storage handle.
//
// The Log is the only place seqs are minted. Minting and enqueueing happen
// under one mutex, so for any two events the one with the lower seq was
// enqueued first, and because the storage flusher writes in queue order it
// also becomes durable first. A seq whose enqueue fails is handed back to the
// clock and never appears in the log.
package eventlog
