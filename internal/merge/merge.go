// Package merge produces the single, globally-ordered stream of
// NormalizedEvents the simulator consumes.
package merge

import (
	"sort"

	"src.d10.dev/taxcount/internal/normalize"
)

// Merge concatenates every source's events and stably sorts them by the
// merger's total ordering key: (timestamp, source_priority,
// source_row_index). A stable sort is enough to keep paired trade legs
// (which share a timestamp and source priority) in their original
// relative order without separate bookkeeping — the same trick the
// teacher's own sort.Interface-based LotQueue ordering relies on stability
// for, just applied to a cross-source merge instead of a single queue.
//
// Re-running Merge on the same event slices always yields the same
// sequence: the sort key never depends on map iteration or other
// non-deterministic Go runtime behavior.
func Merge(sources ...[]normalize.Event) []normalize.Event {
	var all []normalize.Event
	for _, s := range sources {
		all = append(all, s...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.SourcePriority != b.SourcePriority {
			return a.SourcePriority < b.SourcePriority
		}
		return a.Provenance.Row < b.Provenance.Row
	})
	return all
}
