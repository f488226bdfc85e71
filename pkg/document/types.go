// ABOUTME: Document data model for versioned text buffers
// ABOUTME: Defines snapshots, text edits and document errors

package document

import (
	"errors"
	"time"

	"github.com/nainya/spanindex/pkg/version"
)

// Document errors
var (
	// ErrDocumentNotFound indicates an unknown document ID.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrDocumentExists indicates an ID that is already open.
	ErrDocumentExists = errors.New("document already open")

	// ErrPatchMismatch indicates a diff whose removed or context lines do
	// not match the current text.
	ErrPatchMismatch = errors.New("patch does not match document")
)

// Snapshot is the full text of a document at one version.
type Snapshot struct {
	DocumentID string
	Path       string
	Version    version.Version
	Text       string
}

// TextEdit replaces OldLength bytes at Start with Text. Offsets refer to
// the snapshot the edit was made against.
type TextEdit struct {
	Start     int
	OldLength int
	Text      string
}

// Info summarizes a document for listings.
type Info struct {
	ID        string
	Path      string
	Version   version.Version
	Length    int
	OpenedAt  time.Time
	UpdatedAt time.Time
}
