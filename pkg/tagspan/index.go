// ABOUTME: Generation holder that publishes immutable tag span trees
// ABOUTME: Readers load the current generation lock-free; rebuilds swap it atomically

package tagspan

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nainya/spanindex/pkg/query"
	"github.com/nainya/spanindex/pkg/version"
)

// Generation is one published tree plus bookkeeping about how it was built.
type Generation[T comparable] struct {
	ID        string
	Tree      *Tree[T]
	BuiltAt   time.Time
	BuildTime time.Duration
	Carried   int // spans carried over from the previous generation
	Fresh     int // spans produced by the latest tagging pass
}

// Index holds the current generation of one document's tags.
type Index[T comparable] struct {
	cfg     Config
	current atomic.Pointer[Generation[T]]

	pinMu sync.Mutex
	pins  map[version.Version]int // readers per generation anchor

	// OnPublish, when set, is called after every successful swap. prev is
	// nil for the first generation.
	OnPublish func(prev, next *Generation[T])
}

// NewIndex creates an index with no generation. cfg.Version is ignored;
// each publish supplies its own anchor.
func NewIndex[T comparable](cfg Config) *Index[T] {
	return &Index[T]{cfg: cfg}
}

// Load returns the current generation, or nil before the first publish.
func (ix *Index[T]) Load() *Generation[T] {
	return ix.current.Load()
}

// Acquire returns the current generation, or nil before the first publish,
// and keeps its anchor reported by OldestAnchor until done is called.
func (ix *Index[T]) Acquire() (gen *Generation[T], done func()) {
	ix.pinMu.Lock()
	defer ix.pinMu.Unlock()

	gen = ix.current.Load()
	if gen == nil {
		return nil, func() {}
	}
	if ix.pins == nil {
		ix.pins = make(map[version.Version]int)
	}
	anchor := gen.Tree.Version()
	ix.pins[anchor]++

	var once sync.Once
	return gen, func() {
		once.Do(func() {
			ix.pinMu.Lock()
			defer ix.pinMu.Unlock()
			if ix.pins[anchor]--; ix.pins[anchor] == 0 {
				delete(ix.pins, anchor)
			}
		})
	}
}

// OldestAnchor returns the oldest anchor version that the current
// generation or an acquired one still translates from. Edit history from
// that version on must be kept. ok is false before the first publish.
func (ix *Index[T]) OldestAnchor() (v version.Version, ok bool) {
	ix.pinMu.Lock()
	defer ix.pinMu.Unlock()

	if gen := ix.current.Load(); gen != nil {
		v, ok = gen.Tree.Version(), true
	}
	for anchor := range ix.pins {
		if !ok || anchor < v {
			v, ok = anchor, true
		}
	}
	return v, ok
}

// Publish builds a tree anchored at v from carried and fresh spans and
// makes it current.
func (ix *Index[T]) Publish(v version.Version, carried, fresh []TagSpan[T]) (*Generation[T], error) {
	start := time.Now()
	cfg := ix.cfg
	cfg.Version = v

	tree, err := New(cfg, carried, fresh)
	if err != nil {
		return nil, err
	}

	gen := &Generation[T]{
		ID:        uuid.New().String(),
		Tree:      tree,
		BuiltAt:   time.Now(),
		BuildTime: time.Since(start),
		Carried:   len(carried),
		Fresh:     len(fresh),
	}
	prev := ix.current.Swap(gen)
	if ix.OnPublish != nil {
		ix.OnPublish(prev, gen)
	}
	return gen, nil
}

// Rebuild publishes a generation at v that keeps the current generation's
// spans outside dirty and adds fresh, which should cover dirty. With no
// current generation it publishes fresh alone. Rebuild and Publish expect
// a single writer; readers may run concurrently.
func (ix *Index[T]) Rebuild(ctx context.Context, v version.Version, dirty query.Set, fresh []TagSpan[T]) (*Generation[T], error) {
	var carried []TagSpan[T]
	if prev := ix.Load(); prev != nil {
		var err error
		carried, err = prev.Tree.Survivors(ctx, v, dirty)
		if err != nil {
			return nil, err
		}
	}
	return ix.Publish(v, carried, fresh)
}
