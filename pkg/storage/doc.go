// Package storage defines the persistence contract for notification
// records and provides memory, Redis, and Postgres implementations.
//
// All reads and writes are tenant-scoped. The contract's load-bearing
// guarantee is SaveTransition: a compare-and-swap on the record status so
// that two dispatchers racing to mark the same record as sending cannot
// both succeed. The in-package state-machine guards are necessary but not
// sufficient without this backing guarantee.
//
//	sending, _ := rec.MarkSending()
//	err := store.SaveTransition(ctx, sending, notification.StatusPending)
//	if errors.Is(err, storage.ErrConcurrentModification) {
//	    // another dispatcher claimed the record first
//	}
//
// The memory store backs tests and single-process deployments, the Redis
// store ephemeral high-churn queues, the Postgres store durable multi-node
// setups (schema migrations are embedded and applied with Migrate).
package storage
