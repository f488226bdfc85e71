package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/nainya/spanindex/internal/config"
	"github.com/nainya/spanindex/pkg/document"
	"github.com/nainya/spanindex/pkg/query"
	"github.com/nainya/spanindex/pkg/tagspan"
)

type benchOptions struct {
	spans  int
	ranges int
	edits  int
	seed   int64
}

// bench builds a tree over a synthetic document, edits the document and
// runs batch queries with every strategy at the new version.
func bench(ctx context.Context, w io.Writer, cfg *config.Config, opts benchOptions) error {
	if opts.spans <= 0 || opts.ranges <= 0 || opts.edits < 0 {
		return fmt.Errorf("spans and ranges must be positive and edits non-negative")
	}
	rng := rand.New(rand.NewSource(opts.seed))

	length := opts.spans * 10
	doc := document.New("bench", "bench.txt", strings.Repeat("x", length))
	mode := cfg.TrackingMode()

	input := make([]tagspan.TagSpan[int], opts.spans)
	for i := range input {
		input[i] = tagspan.NewTagSpan(1, rng.Intn(length), rng.Intn(50), mode, i)
	}

	start := time.Now()
	tree, err := tagspan.New(tagspan.Config{Oracle: doc, Version: 1, Mode: mode, Query: cfg.QueryOptions()}, input)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "build: %d spans in %v (height %d)\n", tree.Len(), time.Since(start), tree.Height())

	for i := 0; i < opts.edits; i++ {
		cur := doc.Snapshot()
		pos := rng.Intn(len(cur.Text))
		if _, err := doc.Replace(pos, min(rng.Intn(5), len(cur.Text)-pos), strings.Repeat("y", rng.Intn(8))); err != nil {
			return err
		}
	}
	v := doc.Current()
	textLen := len(doc.Snapshot().Text)

	ranges := make([]query.Range, opts.ranges)
	for i := range ranges {
		ranges[i] = query.Range{Start: rng.Intn(textLen), Length: rng.Intn(20)}
	}
	set := query.Normalize(ranges)

	for _, threshold := range []struct {
		name string
		n    int
	}{
		{"loop", len(set) + 1},
		{"sweep", 1},
	} {
		qcfg := tagspan.Config{Oracle: doc, Version: 1, Mode: mode, Query: query.Options{Threshold: threshold.n}}
		qtree, err := tagspan.New(qcfg, input)
		if err != nil {
			return err
		}
		start := time.Now()
		results, err := qtree.AddIntersectingSpans(ctx, v, set, nil, nil)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "%s: %d ranges at version %d, %d results in %v\n",
			threshold.name, len(set), uint64(v), len(results), time.Since(start))
	}
	return nil
}
