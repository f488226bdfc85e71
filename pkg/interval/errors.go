// ABOUTME: Invariant violation errors reported by Tree.Validate
// ABOUTME: These indicate defects in tree construction, never caller input

package interval

import "errors"

var (
	// ErrUnsorted indicates nodes that are not in ascending start order.
	ErrUnsorted = errors.New("interval: nodes out of order")

	// ErrAugmentation indicates a wrong max-end value on some node.
	ErrAugmentation = errors.New("interval: max-end augmentation mismatch")

	// ErrUnbalanced indicates a height above the bulk-build bound.
	ErrUnbalanced = errors.New("interval: tree height exceeds bound")

	// ErrBadLink indicates a child index outside the arena.
	ErrBadLink = errors.New("interval: child link out of range")
)
