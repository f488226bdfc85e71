// ABOUTME: In-memory versioned text document
// ABOUTME: Records every edit batch as a new version and translates spans across them

package document

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nainya/spanindex/pkg/version"
)

// Document is a mutable text buffer whose every change produces a new
// version. It implements version.Oracle and is safe for concurrent use.
type Document struct {
	ID   string
	Path string

	mu        sync.RWMutex
	text      string
	history   *version.History
	openedAt  time.Time
	updatedAt time.Time
}

// New creates a document at version 1.
func New(id, path, text string) *Document {
	now := time.Now()
	return &Document{
		ID:        id,
		Path:      path,
		text:      text,
		history:   version.NewHistory(1),
		openedAt:  now,
		updatedAt: now,
	}
}

// Current returns the latest version.
func (d *Document) Current() version.Version {
	return d.history.Current()
}

// Snapshot returns the current text with its version.
func (d *Document) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Snapshot{DocumentID: d.ID, Path: d.Path, Version: d.history.Current(), Text: d.text}
}

// Info returns a summary of the document.
func (d *Document) Info() Info {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Info{
		ID:        d.ID,
		Path:      d.Path,
		Version:   d.history.Current(),
		Length:    len(d.text),
		OpenedAt:  d.openedAt,
		UpdatedAt: d.updatedAt,
	}
}

// Translate implements version.Oracle.
func (d *Document) Translate(span version.TrackedSpan, target version.Version) (version.Span, error) {
	return d.history.Translate(span, target)
}

// Release drops the edit history needed to translate from versions older
// than before.
func (d *Document) Release(before version.Version) {
	d.history.Release(before)
}

// Insert inserts text at pos.
func (d *Document) Insert(pos int, text string) (version.Version, error) {
	return d.ApplyEdits([]TextEdit{{Start: pos, Text: text}})
}

// Delete removes n bytes at pos.
func (d *Document) Delete(pos, n int) (version.Version, error) {
	return d.ApplyEdits([]TextEdit{{Start: pos, OldLength: n}})
}

// Replace replaces n bytes at pos with text.
func (d *Document) Replace(pos, n int, text string) (version.Version, error) {
	return d.ApplyEdits([]TextEdit{{Start: pos, OldLength: n, Text: text}})
}

// ApplyEdits applies non-overlapping edits made against the current text as
// one new version.
func (d *Document) ApplyEdits(edits []TextEdit) (version.Version, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.applyLocked(edits)
}

func (d *Document) applyLocked(edits []TextEdit) (version.Version, error) {
	sorted := slices.Clone(edits)
	slices.SortStableFunc(sorted, func(a, b TextEdit) int {
		return a.Start - b.Start
	})
	for i, e := range sorted {
		if e.Start < 0 || e.OldLength < 0 || e.Start+e.OldLength > len(d.text) {
			return 0, fmt.Errorf("%w: [%d,+%d) in %d bytes", version.ErrInvalidEdit, e.Start, e.OldLength, len(d.text))
		}
		if i > 0 && e.Start < sorted[i-1].Start+sorted[i-1].OldLength {
			return 0, fmt.Errorf("%w: edits overlap at %d", version.ErrInvalidEdit, e.Start)
		}
	}

	// Apply back to front so earlier offsets stay valid, and record the
	// edits in the same order for translation.
	var b strings.Builder
	text := d.text
	recorded := make([]version.Edit, 0, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		e := sorted[i]
		b.Reset()
		b.Grow(len(text) - e.OldLength + len(e.Text))
		b.WriteString(text[:e.Start])
		b.WriteString(e.Text)
		b.WriteString(text[e.Start+e.OldLength:])
		text = b.String()
		recorded = append(recorded, version.Edit{Start: e.Start, OldLength: e.OldLength, NewLength: len(e.Text)})
	}

	d.text = text
	d.updatedAt = time.Now()
	return d.history.Record(recorded...), nil
}

// Changes returns the recorded changes between two versions.
func (d *Document) Changes(from, to version.Version) ([]version.Change, error) {
	return d.history.Changes(from, to)
}
