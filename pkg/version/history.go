// ABOUTME: Edit history that records how each version was produced
// ABOUTME: Implements Oracle by replaying edits from the anchor to the target

package version

import (
	"fmt"
	"sync"
	"time"
)

// Change is the set of edits that turned one version into the next.
type Change struct {
	Version   Version // version produced by this change
	Edits     []Edit  // applied in order
	CreatedAt time.Time
}

// History keeps the edit log of one document. It is safe for concurrent use.
type History struct {
	mu      sync.RWMutex
	base    Version  // oldest version that can still be translated from
	current Version  // latest version produced
	changes []Change // changes[i] produces base+i+1
}

// NewHistory starts a history whose first version is start.
func NewHistory(start Version) *History {
	return &History{base: start, current: start}
}

// Current returns the latest version.
func (h *History) Current() Version {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Base returns the oldest version still translatable.
func (h *History) Base() Version {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.base
}

// Record appends a change made of edits and returns the new version.
// An empty edit list still produces a new version.
func (h *History) Record(edits ...Edit) Version {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.current++
	h.changes = append(h.changes, Change{
		Version:   h.current,
		Edits:     append([]Edit(nil), edits...),
		CreatedAt: time.Now(),
	})
	return h.current
}

// Release forgets the edits needed to translate from versions older than
// before. Translating a span anchored earlier fails with ErrVersionReleased.
func (h *History) Release(before Version) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if before > h.current {
		before = h.current
	}
	if before <= h.base {
		return
	}
	drop := int(before - h.base)
	h.changes = append([]Change(nil), h.changes[drop:]...)
	h.base = before
}

// Changes returns the changes that lead from `from` to `to`.
func (h *History) Changes(from, to Version) ([]Change, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if err := h.checkRange(from, to); err != nil {
		return nil, err
	}
	lo := int(from - h.base)
	hi := int(to - h.base)
	return append([]Change(nil), h.changes[lo:hi]...), nil
}

func (h *History) checkRange(from, to Version) error {
	switch {
	case to < from:
		return fmt.Errorf("%w: %d -> %d", ErrBackwardTranslation, from, to)
	case to > h.current:
		return fmt.Errorf("%w: %d (current %d)", ErrFutureVersion, to, h.current)
	case from < h.base:
		return fmt.Errorf("%w: %d (oldest %d)", ErrVersionReleased, from, h.base)
	}
	return nil
}

// Translate implements Oracle.
func (h *History) Translate(span TrackedSpan, target Version) (Span, error) {
	if span.Version == target {
		return span.Span(), nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if err := h.checkRange(span.Version, target); err != nil {
		return Span{}, err
	}

	result := span.Span()
	lo := int(span.Version - h.base)
	hi := int(target - h.base)
	for _, c := range h.changes[lo:hi] {
		result = TranslateThrough(result, span.Mode, c.Edits)
	}
	return result, nil
}
