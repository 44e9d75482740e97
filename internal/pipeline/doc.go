// Package pipeline admits commits, tracks them until durable, and applies
// them to the live document in seq order.
//
// Lifecycle of one commit:
//
//	Commit      validated, seq assigned, registered as pending
//	durable     removed from pending, parked in the reorder buffer
//	applied     folded into the document once every lower seq is applied
//
// Completions may arrive in any order. The reorder buffer holds durable events
// whose predecessors are still in flight, so the document only ever reflects
// a gap-free prefix of the log.
//
// Drain closes admission and waits until nothing is pending. Because a
// commit is registered before Commit returns, and before its completion can
// be processed, Drain never observes an empty pending set while an admitted
// write is still in flight.
package pipeline
