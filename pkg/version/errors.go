// ABOUTME: Sentinel errors for version translation
// ABOUTME: Callers match these with errors.Is

package version

import "errors"

// Translation errors
var (
	// ErrVersionReleased indicates the anchor version's edit history was released.
	ErrVersionReleased = errors.New("version history released")

	// ErrFutureVersion indicates a version the document has not reached yet.
	ErrFutureVersion = errors.New("version not yet produced")

	// ErrBackwardTranslation indicates a target version older than the anchor.
	ErrBackwardTranslation = errors.New("cannot translate to an earlier version")
)

// Validation errors
var (
	// ErrInvalidSpan indicates a negative offset or length.
	ErrInvalidSpan = errors.New("invalid span")

	// ErrInvalidEdit indicates an edit outside the document.
	ErrInvalidEdit = errors.New("invalid edit")

	// ErrUnknownTrackingMode indicates an unrecognized tracking mode name.
	ErrUnknownTrackingMode = errors.New("unknown tracking mode")
)
