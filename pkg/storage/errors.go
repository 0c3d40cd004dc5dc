package storage

import "errors"

var (
	// ErrNotFound is returned when no record matches the tenant/id pair.
	ErrNotFound = errors.New("notification record not found")

	// ErrConcurrentModification is returned by SaveTransition when the
	// stored status no longer matches the expected source status: another
	// writer transitioned the record first.
	ErrConcurrentModification = errors.New("record was modified concurrently")

	// ErrRecordPending is returned by Delete for pending records. A record
	// queued for its first send must be cancelled before it can be removed.
	ErrRecordPending = errors.New("pending records cannot be deleted")
)
