// ABOUTME: Unified diff import for documents
// ABOUTME: Converts diff hunks into byte edits and applies them as one version

package document

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/nainya/spanindex/pkg/version"
)

// ApplyUnifiedDiff applies a single-file unified diff to the current text as
// one new version. Removed and context lines must match the document.
func (d *Document) ApplyUnifiedDiff(patch []byte) (version.Version, error) {
	fileDiff, err := diff.ParseFileDiff(patch)
	if err != nil {
		return 0, fmt.Errorf("parse diff: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	edits, err := hunkEdits(d.text, fileDiff.Hunks)
	if err != nil {
		return 0, err
	}
	return d.applyLocked(edits)
}

// lineStarts returns the byte offset of every line start, plus len(text).
func lineStarts(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' && i+1 < len(text) {
			starts = append(starts, i+1)
		}
	}
	return append(starts, len(text))
}

type pendingEdit struct {
	active  bool
	start   int
	removed strings.Builder
	added   strings.Builder
}

func hunkEdits(text string, hunks []*diff.Hunk) ([]TextEdit, error) {
	starts := lineStarts(text)
	offsetOf := func(line int) (int, error) {
		if line < 0 || line >= len(starts) {
			return 0, fmt.Errorf("%w: line %d outside %d lines", ErrPatchMismatch, line+1, len(starts)-1)
		}
		return starts[line], nil
	}

	var edits []TextEdit
	for _, h := range hunks {
		// Zero-based index of the first original line the hunk touches. A
		// hunk that removes nothing names the line it inserts after.
		line := int(h.OrigStartLine) - 1
		if h.OrigLines == 0 {
			line = int(h.OrigStartLine)
		}

		var p pendingEdit
		flush := func() error {
			if !p.active {
				return nil
			}
			removed := p.removed.String()
			if p.start+len(removed) > len(text) || text[p.start:p.start+len(removed)] != removed {
				return fmt.Errorf("%w: removed text differs at offset %d", ErrPatchMismatch, p.start)
			}
			edits = append(edits, TextEdit{Start: p.start, OldLength: len(removed), Text: p.added.String()})
			p = pendingEdit{}
			return nil
		}

		offset := 0
		for _, raw := range bytes.SplitAfter(h.Body, []byte("\n")) {
			offset += len(raw)
			if len(raw) == 0 {
				continue
			}
			content := string(raw[1:])
			switch raw[0] {
			case ' ':
				if err := flush(); err != nil {
					return nil, err
				}
				if line+1 >= len(starts) {
					return nil, fmt.Errorf("%w: context line %d outside %d lines", ErrPatchMismatch, line+1, len(starts)-1)
				}
				want := text[starts[line]:starts[line+1]]
				if !strings.HasSuffix(want, "\n") {
					content = strings.TrimSuffix(content, "\n")
				}
				if content != want {
					return nil, fmt.Errorf("%w: context line %d differs", ErrPatchMismatch, line+1)
				}
				line++
			case '-', '+':
				if !p.active {
					start, err := offsetOf(line)
					if err != nil {
						return nil, err
					}
					p.active, p.start = true, start
				}
				if raw[0] == '-' {
					// The parser keeps the newline of a removed last line
					// and records where the original file ended instead.
					if h.OrigNoNewlineAt > 0 && int32(offset) == h.OrigNoNewlineAt {
						content = strings.TrimSuffix(content, "\n")
					}
					p.removed.WriteString(content)
					line++
				} else {
					p.added.WriteString(content)
				}
			default:
				return nil, fmt.Errorf("%w: unexpected hunk line %q", ErrPatchMismatch, raw)
			}
		}
		if err := flush(); err != nil {
			return nil, err
		}
	}
	return edits, nil
}
