package batch

import (
	"slices"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Optimize partitions records into ordered batches of at most batchSize,
// higher priorities first and arrival order preserved within a tier.
// Empty input yields no batches. A non-positive batchSize packs everything
// into a single batch.
func Optimize(records []notification.Record, batchSize int) [][]notification.Record {
	if len(records) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = len(records)
	}

	ordered := append([]notification.Record(nil), records...)
	slices.SortStableFunc(ordered, func(a, b notification.Record) int {
		return b.Priority.Rank() - a.Priority.Rank()
	})

	batches := make([][]notification.Record, 0, (len(ordered)+batchSize-1)/batchSize)
	for start := 0; start < len(ordered); start += batchSize {
		end := min(start+batchSize, len(ordered))
		batches = append(batches, ordered[start:end:end])
	}
	return batches
}
