// ABOUTME: Arena node layout for the augmented interval tree
// ABOUTME: Nodes live in one slice and link to children by index

package interval

// nilNode marks a missing child.
const nilNode int32 = -1

// node is one arena slot. Because the tree is built from a sorted slice by
// repeatedly taking the middle element, a node's arena index equals its
// in-order position.
type node[T any] struct {
	item  T
	left  int32
	right int32
	// maxEnd is the arena index of the node with the largest end offset in
	// this subtree, measured at build time. last is the subtree's rightmost
	// node, which has the largest start.
	maxEnd int32
	last   int32
}

// Bounds reports the current start and length of an item. Trees call it on
// every visited node, which is how callers inject version translation.
//
// A tree built with one Bounds may be queried with another as long as the
// new starts keep build order and every new end is max(start, f(old end))
// for one non-decreasing f. Edit translation with a single tracking mode
// has that shape: an end clamped up to its start is the only way ends can
// change order.
type Bounds[T any] interface {
	Bounds(item T) (start, length int)
}

// BoundsFunc adapts a function to the Bounds interface.
type BoundsFunc[T any] func(item T) (start, length int)

// Bounds calls f.
func (f BoundsFunc[T]) Bounds(item T) (start, length int) {
	return f(item)
}

func (t *Tree[T]) start(idx int32, b Bounds[T]) int {
	s, _ := b.Bounds(t.nodes[idx].item)
	return s
}

func (t *Tree[T]) end(idx int32, b Bounds[T]) int {
	s, l := b.Bounds(t.nodes[idx].item)
	return s + l
}

// subtreeMaxEnd returns the largest end offset below idx. The build-time
// max-end node bounds every unclamped end and the last node's start bounds
// every clamped one.
func (t *Tree[T]) subtreeMaxEnd(idx int32, b Bounds[T]) int {
	n := &t.nodes[idx]
	return max(t.end(n.maxEnd, b), t.start(n.last, b))
}
