// ABOUTME: Augmented interval tree built once from sorted intervals
// ABOUTME: Implements Contains and FillIntersecting with max-end subtree pruning

package interval

import (
	"cmp"
	"fmt"
	"math/bits"
	"slices"
)

// Tree is an immutable, balanced binary search tree over interval starts.
// It is safe for concurrent readers; there are no writers after Build.
type Tree[T any] struct {
	nodes  []node[T]
	root   int32
	height int
}

// Build concatenates the given sequences, sorts them by start offset as
// reported by bounds and bulk-loads a balanced tree. Entries that compare
// equal are all kept; deduplication is the caller's job. The sort is stable,
// so equal starts keep their input order.
func Build[T any](bounds Bounds[T], seqs ...[]T) *Tree[T] {
	total := 0
	for _, s := range seqs {
		total += len(s)
	}

	type entry struct {
		start int
		end   int
		item  T
	}
	entries := make([]entry, 0, total)
	for _, s := range seqs {
		for _, item := range s {
			start, length := bounds.Bounds(item)
			entries = append(entries, entry{start: start, end: start + length, item: item})
		}
	}
	slices.SortStableFunc(entries, func(a, b entry) int {
		return cmp.Compare(a.start, b.start)
	})

	tree := &Tree[T]{
		nodes: make([]node[T], len(entries)),
		root:  nilNode,
	}
	ends := make([]int, len(entries))
	for i, e := range entries {
		tree.nodes[i] = node[T]{item: e.item, left: nilNode, right: nilNode, maxEnd: int32(i), last: int32(i)}
		ends[i] = e.end
	}
	tree.root, tree.height = tree.build(0, len(entries), ends)
	return tree
}

// build links nodes[lo:hi] into a subtree rooted at the middle element and
// fills in the max-end augmentation bottom-up.
func (t *Tree[T]) build(lo, hi int, ends []int) (int32, int) {
	if lo >= hi {
		return nilNode, 0
	}
	mid := lo + (hi-lo)/2
	left, lh := t.build(lo, mid, ends)
	right, rh := t.build(mid+1, hi, ends)

	n := &t.nodes[mid]
	n.left = left
	n.right = right
	best := int32(mid)
	if left != nilNode && ends[t.nodes[left].maxEnd] > ends[best] {
		best = t.nodes[left].maxEnd
	}
	if right != nilNode && ends[t.nodes[right].maxEnd] > ends[best] {
		best = t.nodes[right].maxEnd
	}
	n.maxEnd = best
	n.last = int32(hi - 1)

	return int32(mid), 1 + max(lh, rh)
}

// Len returns the number of intervals.
func (t *Tree[T]) Len() int {
	return len(t.nodes)
}

// Height returns the number of levels.
func (t *Tree[T]) Height() int {
	return t.height
}

// Contains reports whether some interval's half-open range contains point.
// Zero-length intervals never contain anything.
func (t *Tree[T]) Contains(point int, b Bounds[T]) bool {
	return t.contains(t.root, point, b)
}

func (t *Tree[T]) contains(idx int32, point int, b Bounds[T]) bool {
	if idx == nilNode {
		return false
	}
	// Every interval below ends at or before point.
	if t.subtreeMaxEnd(idx, b) <= point {
		return false
	}

	n := &t.nodes[idx]
	start, length := b.Bounds(n.item)
	if start <= point && point < start+length {
		return true
	}
	if t.contains(n.left, point, b) {
		return true
	}
	// Right subtree starts at or after this node's start.
	if start > point {
		return false
	}
	return t.contains(n.right, point, b)
}

// FillIntersecting appends to out every interval that overlaps
// [start, start+length) and returns the extended slice. An interval
// overlaps when it starts before the query end and ends after the query
// start; ranges that only touch do not overlap. Results are in ascending
// start order.
func (t *Tree[T]) FillIntersecting(start, length int, b Bounds[T], out []T) []T {
	return t.fill(t.root, start, start+length, b, out)
}

func (t *Tree[T]) fill(idx int32, qStart, qEnd int, b Bounds[T], out []T) []T {
	if idx == nilNode {
		return out
	}
	if t.subtreeMaxEnd(idx, b) <= qStart {
		return out
	}

	n := &t.nodes[idx]
	out = t.fill(n.left, qStart, qEnd, b, out)

	start, length := b.Bounds(n.item)
	// This node and its right subtree start at or past the query end.
	if start >= qEnd {
		return out
	}
	if start+length > qStart {
		out = append(out, n.item)
	}
	return t.fill(n.right, qStart, qEnd, b, out)
}

// Enumerate returns every interval in ascending start order.
func (t *Tree[T]) Enumerate() []T {
	out := make([]T, len(t.nodes))
	for i := range t.nodes {
		out[i] = t.nodes[i].item
	}
	return out
}

// Scan calls fn for each interval in ascending start order until fn
// returns false.
func (t *Tree[T]) Scan(fn func(item T) bool) {
	for i := range t.nodes {
		if !fn(t.nodes[i].item) {
			return
		}
	}
}

// Validate checks ordering, augmentation and balance under b. It is meant
// for tests and debug builds.
func (t *Tree[T]) Validate(b Bounds[T]) error {
	for i := 1; i < len(t.nodes); i++ {
		if t.start(int32(i-1), b) > t.start(int32(i), b) {
			return fmt.Errorf("%w: node %d starts before node %d", ErrUnsorted, i, i-1)
		}
	}
	if _, err := t.validateNode(t.root, b); err != nil {
		return err
	}
	if bound := bits.Len(uint(len(t.nodes))); t.height > bound {
		return fmt.Errorf("%w: height %d, bound %d", ErrUnbalanced, t.height, bound)
	}
	return nil
}

// validateNode returns the largest end in the subtree.
func (t *Tree[T]) validateNode(idx int32, b Bounds[T]) (int, error) {
	if idx == nilNode {
		return 0, nil
	}
	if idx < 0 || int(idx) >= len(t.nodes) {
		return 0, fmt.Errorf("%w: %d", ErrBadLink, idx)
	}
	n := &t.nodes[idx]
	want := t.end(idx, b)
	for _, child := range []int32{n.left, n.right} {
		if child == nilNode {
			continue
		}
		end, err := t.validateNode(child, b)
		if err != nil {
			return 0, err
		}
		want = max(want, end)
	}
	if got := t.subtreeMaxEnd(idx, b); got != want {
		return 0, fmt.Errorf("%w: node %d has %d, subtree max is %d", ErrAugmentation, idx, got, want)
	}
	return want, nil
}
