// Package batch partitions pending notifications into dispatch-ordered
// batches.
//
// Optimize is a greedy priority-stable bin-pack, not a scheduler: urgent
// records come before high, high before normal, normal before low, with
// arrival order preserved inside each tier; every batch fills up to the
// size limit before the next one starts. It performs no I/O and is
// idempotent over the same input.
package batch
