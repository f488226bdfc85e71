// ABOUTME: Debug consistency checker for batch query results
// ABOUTME: Panics when a result overlaps none of the requested ranges

package query

import (
	"fmt"

	"github.com/nainya/spanindex/pkg/interval"
	"github.com/nainya/spanindex/pkg/version"
)

// Verify checks that every result overlaps at least one range of set. A
// violation is a defect in the engine, so it panics.
func Verify[T any](set Set, results []T, bounds interval.Bounds[T]) {
	for _, item := range results {
		start, length := bounds.Bounds(item)
		span := version.Span{Start: start, Length: length}
		if !overlapsAny(set, span) {
			panic(fmt.Sprintf("query: result %v overlaps none of %d requested ranges", span, len(set)))
		}
	}
}

func overlapsAny(set Set, span version.Span) bool {
	for _, r := range set {
		if r.IntersectsWith(span) {
			return true
		}
	}
	return false
}
