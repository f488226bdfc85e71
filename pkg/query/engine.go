// ABOUTME: Batch intersection engine over an interval tree
// ABOUTME: Chooses single, loop or sweep by set size and deduplicates results

package query

import (
	"context"

	"github.com/nainya/spanindex/pkg/interval"
)

// cancelCheckInterval is how many sweep steps run between context checks.
const cancelCheckInterval = 1024

// Select returns the strategy for a set of m ranges.
func Select(m int, opts Options) Strategy {
	switch {
	case m <= 1:
		return Single
	case m < opts.threshold():
		return Loop
	default:
		return Sweep
	}
}

// Intersect appends to out the intervals of tree that overlap any range of
// set, using bounds to read their current offsets. dedup may be nil; when
// given, intervals already in it are skipped and new ones are recorded, so
// one dedup set can span several calls.
//
// Within one call results are in ascending start order. An empty set
// returns out unchanged.
func Intersect[T comparable](
	ctx context.Context,
	tree *interval.Tree[T],
	bounds interval.Bounds[T],
	set Set,
	dedup DedupSet[T],
	opts Options,
	out []T,
) ([]T, error) {
	if len(set) == 0 || tree.Len() == 0 {
		return out, nil
	}

	strategy := Select(len(set), opts)
	before := len(out)

	var err error
	switch strategy {
	case Single:
		out = intersectSingle(tree, bounds, set[0], dedup, opts, out)
	case Loop:
		if dedup == nil {
			dedup = make(DedupSet[T])
		}
		out, err = intersectLoop(ctx, tree, bounds, set, dedup, opts, out)
	default:
		if dedup == nil {
			dedup = make(DedupSet[T])
		}
		out, err = intersectSweep(ctx, tree, bounds, set, dedup, out)
	}
	if err != nil {
		return out, err
	}

	if Checks || opts.Verify {
		Verify(set, out[before:], bounds)
	}
	if opts.Observe != nil {
		opts.Observe(strategy, len(out)-before)
	}
	return out, nil
}

// keep applies the zero-length policy and the dedup set to one candidate.
func keep[T comparable](item T, bounds interval.Bounds[T], dedup DedupSet[T], keepEmpty bool) bool {
	if !keepEmpty {
		if _, length := bounds.Bounds(item); length == 0 {
			return false
		}
	}
	if dedup == nil {
		return true
	}
	return dedup.Add(item)
}

func intersectSingle[T comparable](
	tree *interval.Tree[T],
	bounds interval.Bounds[T],
	r Range,
	dedup DedupSet[T],
	opts Options,
	out []T,
) []T {
	candidates := tree.FillIntersecting(r.Start, r.Length, bounds, nil)
	for _, c := range candidates {
		if keep(c, bounds, dedup, opts.KeepEmpty) {
			out = append(out, c)
		}
	}
	return out
}

func intersectLoop[T comparable](
	ctx context.Context,
	tree *interval.Tree[T],
	bounds interval.Bounds[T],
	set Set,
	dedup DedupSet[T],
	opts Options,
	out []T,
) ([]T, error) {
	var scratch []T
	for _, r := range set {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		scratch = tree.FillIntersecting(r.Start, r.Length, bounds, scratch[:0])
		for _, c := range scratch {
			if keep(c, bounds, dedup, opts.KeepEmpty) {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// intersectSweep queries the bounding range once and walks the sorted
// candidates and the sorted set together. Zero-length candidates are never
// emitted.
func intersectSweep[T comparable](
	ctx context.Context,
	tree *interval.Tree[T],
	bounds interval.Bounds[T],
	set Set,
	dedup DedupSet[T],
	out []T,
) ([]T, error) {
	whole := set.Bounding()
	candidates := tree.FillIntersecting(whole.Start, whole.Length, bounds, nil)

	ci, qi := 0, 0
	for step := 0; ci < len(candidates) && qi < len(set); step++ {
		if step%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return out, err
			}
		}

		c := candidates[ci]
		start, length := bounds.Bounds(c)
		q := set[qi]

		switch {
		case start+length <= q.Start:
			// Ends before this range, so before every later range too.
			ci++
		case start >= q.End():
			// Later candidates start no earlier, so this range is done.
			qi++
		default:
			if length > 0 && dedup.Add(c) {
				out = append(out, c)
			}
			ci++
		}
	}
	return out, nil
}
