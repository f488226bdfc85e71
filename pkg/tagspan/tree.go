// ABOUTME: Tracked-span facade over the generic interval tree
// ABOUTME: Translates stored spans to the queried version on every node visit

package tagspan

import (
	"context"
	"fmt"

	"github.com/nainya/spanindex/pkg/interval"
	"github.com/nainya/spanindex/pkg/query"
	"github.com/nainya/spanindex/pkg/version"
)

// Tree is one immutable generation of tag spans for a document. All stored
// spans are anchored at the tree's version; queries may ask about that
// version or any later one.
type Tree[T comparable] struct {
	cfg  Config
	tree *interval.Tree[TagSpan[T]]
}

// New translates every input span to cfg.Version, re-anchors it with
// cfg.Mode and bulk-builds the tree. Passing two sequences merges carried
// over spans with fresh ones without sorting them first.
func New[T comparable](cfg Config, seqs ...[]TagSpan[T]) (*Tree[T], error) {
	anchored := make([][]TagSpan[T], len(seqs))
	for i, seq := range seqs {
		out := make([]TagSpan[T], len(seq))
		for j, ts := range seq {
			if err := ts.Span.Validate(); err != nil {
				return nil, err
			}
			span := ts.Span.Span()
			if ts.Span.Version != cfg.Version {
				translated, err := cfg.Oracle.Translate(ts.Span, cfg.Version)
				if err != nil {
					return nil, fmt.Errorf("%w: %w", ErrTranslation, err)
				}
				span = translated
			}
			out[j] = TagSpan[T]{
				Span: version.NewTrackedSpan(cfg.Version, span, cfg.Mode),
				Tag:  ts.Tag,
			}
		}
		anchored[i] = out
	}

	return &Tree[T]{
		cfg:  cfg,
		tree: interval.Build[TagSpan[T]](anchorBounds[T]{}, anchored...),
	}, nil
}

// Version returns the anchor version.
func (t *Tree[T]) Version() version.Version {
	return t.cfg.Version
}

// Mode returns the tracking mode of the stored spans.
func (t *Tree[T]) Mode() version.TrackingMode {
	return t.cfg.Mode
}

// Len returns the number of stored tag spans.
func (t *Tree[T]) Len() int {
	return t.tree.Len()
}

// Height returns the height of the underlying tree.
func (t *Tree[T]) Height() int {
	return t.tree.Height()
}

// anchorBounds reads stored offsets without translation.
type anchorBounds[T comparable] struct{}

func (anchorBounds[T]) Bounds(ts TagSpan[T]) (int, int) {
	return ts.Span.Start, ts.Span.Length
}

// translator reads a stored span at target. The first Oracle failure is
// kept in err and the stored offsets are used for the rest of the walk.
type translator[T comparable] struct {
	oracle version.Oracle
	target version.Version
	err    error
}

func (tr *translator[T]) Bounds(ts TagSpan[T]) (int, int) {
	if ts.Span.Version == tr.target {
		return ts.Span.Start, ts.Span.Length
	}
	span, err := tr.oracle.Translate(ts.Span, tr.target)
	if err != nil {
		if tr.err == nil {
			tr.err = err
		}
		return ts.Span.Start, ts.Span.Length
	}
	return span.Start, span.Length
}

func (tr *translator[T]) failure() error {
	if tr.err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTranslation, tr.err)
}

func (t *Tree[T]) translator(v version.Version) *translator[T] {
	return &translator[T]{oracle: t.cfg.Oracle, target: v}
}

func (t *Tree[T]) results(items []TagSpan[T], tr *translator[T], out []Result[T]) []Result[T] {
	for _, ts := range items {
		start, length := tr.Bounds(ts)
		out = append(out, Result[T]{Span: version.Span{Start: start, Length: length}, Tag: ts.Tag})
	}
	return out
}

// HasSpanThatContains reports whether some stored span, translated to v,
// contains point.
func (t *Tree[T]) HasSpanThatContains(v version.Version, point int) (bool, error) {
	tr := t.translator(v)
	found := t.tree.Contains(point, tr)
	if err := tr.failure(); err != nil {
		return false, err
	}
	return found, nil
}

// GetIntersectingSpans returns the tags whose spans at v overlap
// [start, start+length), sorted by translated start. The order only holds
// within one call; concatenating several calls is not sorted.
func (t *Tree[T]) GetIntersectingSpans(v version.Version, start, length int) ([]Result[T], error) {
	tr := t.translator(v)
	items := t.tree.FillIntersecting(start, length, tr, nil)
	if err := tr.failure(); err != nil {
		return nil, err
	}
	out := t.results(items, tr, make([]Result[T], 0, len(items)))
	if err := tr.failure(); err != nil {
		return nil, err
	}
	return out, nil
}

// AddIntersectingSpans appends to out the tags overlapping any range of
// set at v. The set must be normalized; see query.Set. dedup may be nil or
// shared across calls of one logical query.
func (t *Tree[T]) AddIntersectingSpans(
	ctx context.Context,
	v version.Version,
	set query.Set,
	dedup query.DedupSet[TagSpan[T]],
	out []Result[T],
) ([]Result[T], error) {
	tr := t.translator(v)
	items, err := query.Intersect(ctx, t.tree, tr, set, dedup, t.cfg.Query, nil)
	if err != nil {
		return out, err
	}
	if err := tr.failure(); err != nil {
		return out, err
	}
	return t.results(items, tr, out), nil
}

// Enumerate returns every tag with its span at v in tree order.
func (t *Tree[T]) Enumerate(v version.Version) ([]Result[T], error) {
	tr := t.translator(v)
	out := t.results(t.tree.Enumerate(), tr, make([]Result[T], 0, t.tree.Len()))
	if err := tr.failure(); err != nil {
		return nil, err
	}
	return out, nil
}

// Survivors returns the stored tag spans re-anchored at v, leaving out the
// ones that overlap any range of dirty and the ones whose text was deleted
// entirely (non-empty at the anchor, empty at v). It feeds the carried-over
// sequence of the next generation.
func (t *Tree[T]) Survivors(ctx context.Context, v version.Version, dirty query.Set) ([]TagSpan[T], error) {
	tr := t.translator(v)
	hit := make(query.DedupSet[TagSpan[T]])
	if len(dirty) > 0 {
		opts := t.cfg.Query
		opts.KeepEmpty = true
		opts.Observe = nil
		// Loop keeps zero-length spans, so strictly covered empty tags are
		// dropped along with the rest of the dirty region.
		opts.Threshold = len(dirty) + 1
		if _, err := query.Intersect(ctx, t.tree, tr, dirty, hit, opts, nil); err != nil {
			return nil, err
		}
	}

	out := make([]TagSpan[T], 0, t.tree.Len()-len(hit))
	t.tree.Scan(func(ts TagSpan[T]) bool {
		if hit.Has(ts) {
			return true
		}
		start, length := tr.Bounds(ts)
		if length == 0 && ts.Span.Length > 0 {
			return true
		}
		out = append(out, TagSpan[T]{
			Span: version.TrackedSpan{Version: v, Start: start, Length: length, Mode: t.cfg.Mode},
			Tag:  ts.Tag,
		})
		return true
	})
	if err := tr.failure(); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate checks the tree's internal invariants at v.
func (t *Tree[T]) Validate(v version.Version) error {
	tr := t.translator(v)
	if err := t.tree.Validate(tr); err != nil {
		return err
	}
	return tr.failure()
}
