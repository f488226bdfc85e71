// ABOUTME: Batch query types: ranges, normalized query sets and dedup sets
// ABOUTME: Defines the strategies used to answer a batch intersection query

package query

import (
	"fmt"
	"slices"

	"github.com/nainya/spanindex/pkg/version"
)

// Range is one query range at the query version.
type Range = version.Span

// Set is a Normalized Query Set: ranges sorted ascending by start and
// pairwise non-overlapping, all at the same version.
//
// The index does not check this. A set that violates it still runs, and the
// Sweep strategy then returns an incomplete or wrong result instead of
// failing. Use Normalize or IsNormalized on the calling side.
type Set []Range

// IsNormalized reports whether the set satisfies the Set precondition.
func (s Set) IsNormalized() bool {
	for i := 1; i < len(s); i++ {
		if s[i].Start < s[i-1].End() || s[i].Start < s[i-1].Start {
			return false
		}
	}
	return true
}

// Bounding returns the smallest range covering the whole set. The set must
// be normalized and non-empty.
func (s Set) Bounding() Range {
	return version.NewSpanFromBounds(s[0].Start, s[len(s)-1].End())
}

// Normalize sorts ranges and merges the ones that overlap. Ranges that only
// touch stay separate so that half-open intersection results do not change.
func Normalize(ranges []Range) Set {
	sorted := slices.Clone(ranges)
	slices.SortFunc(sorted, func(a, b Range) int {
		if a.Start != b.Start {
			return a.Start - b.Start
		}
		return a.Length - b.Length
	})

	out := make(Set, 0, len(sorted))
	for _, r := range sorted {
		if n := len(out); n > 0 && r.Start < out[n-1].End() {
			if r.End() > out[n-1].End() {
				out[n-1] = version.NewSpanFromBounds(out[n-1].Start, r.End())
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// Strategy is the algorithm chosen for a batch query.
type Strategy int

const (
	// Single answers a one-range set with one tree query.
	Single Strategy = iota
	// Loop runs one tree query per range.
	Loop
	// Sweep runs one query over the bounding range and merges the
	// candidates against the set in a single linear pass.
	Sweep
)

func (s Strategy) String() string {
	switch s {
	case Single:
		return "single"
	case Loop:
		return "loop"
	case Sweep:
		return "sweep"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// DefaultThreshold is the set size at which Sweep replaces Loop.
const DefaultThreshold = 100

// Options tunes batch queries. The zero value is ready to use.
type Options struct {
	// Threshold is the set size at which Sweep is used. Zero means
	// DefaultThreshold.
	Threshold int

	// KeepEmpty keeps zero-length intervals in Single and Loop results.
	// Sweep drops them either way, so setting this makes the strategies
	// disagree on zero-length intervals.
	KeepEmpty bool

	// Verify runs the consistency checker on every result even when the
	// package is built without the spanindex_debug tag.
	Verify bool

	// Observe, when set, is called once per query with the strategy used
	// and the number of results appended.
	Observe func(strategy Strategy, results int)
}

func (o Options) threshold() int {
	if o.Threshold <= 0 {
		return DefaultThreshold
	}
	return o.Threshold
}

// DedupSet remembers which intervals a query already produced. It belongs
// to one logical query and must not be shared between goroutines.
type DedupSet[T comparable] map[T]struct{}

// Add records item and reports whether it was new.
func (d DedupSet[T]) Add(item T) bool {
	if _, ok := d[item]; ok {
		return false
	}
	d[item] = struct{}{}
	return true
}

// Has reports whether item was recorded.
func (d DedupSet[T]) Has(item T) bool {
	_, ok := d[item]
	return ok
}
