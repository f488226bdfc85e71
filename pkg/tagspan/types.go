// ABOUTME: Tagged span data model for the tracked-span index
// ABOUTME: Defines input tag spans, translated results and index configuration

package tagspan

import (
	"errors"

	"github.com/nainya/spanindex/pkg/query"
	"github.com/nainya/spanindex/pkg/version"
)

// ErrTranslation wraps any Oracle failure surfaced by a tree operation.
var ErrTranslation = errors.New("tagspan: span translation failed")

// TagSpan is a tracked span paired with an opaque tag. Tags only need to be
// comparable; batch queries use TagSpan values as dedup keys.
type TagSpan[T comparable] struct {
	Span version.TrackedSpan
	Tag  T
}

// NewTagSpan anchors [start, start+length) at v with the given mode.
func NewTagSpan[T comparable](v version.Version, start, length int, mode version.TrackingMode, tag T) TagSpan[T] {
	return TagSpan[T]{
		Span: version.TrackedSpan{Version: v, Start: start, Length: length, Mode: mode},
		Tag:  tag,
	}
}

// Result is a tag with its span translated to the version that was queried.
type Result[T comparable] struct {
	Span version.Span
	Tag  T
}

// Config binds a tree to one document.
type Config struct {
	Oracle  version.Oracle       // translates spans of this document
	Version version.Version      // anchor version of the tree
	Mode    version.TrackingMode // tracking mode applied to every stored span
	Query   query.Options        // batch query tuning
}
