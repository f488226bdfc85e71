// ABOUTME: Version, span and tracking-mode data model
// ABOUTME: Defines the Oracle contract used to move spans between document versions

package version

import "fmt"

// Version identifies one immutable revision of a document's content.
// Versions are totally ordered and increase with every change.
type Version uint64

// After reports whether v is a later revision than other.
func (v Version) After(other Version) bool {
	return v > other
}

// TrackingMode decides how a span's boundaries react to an edit that lands
// exactly on them.
type TrackingMode int

const (
	// EdgeExclusive keeps inserted text at either boundary outside the span.
	EdgeExclusive TrackingMode = iota
	// EdgeInclusive grows the span to include text inserted at either boundary.
	EdgeInclusive
	// EdgePositive moves both boundaries right, past inserted text.
	EdgePositive
	// EdgeNegative keeps both boundaries left of inserted text.
	EdgeNegative
)

// String returns the config/wire name of the mode.
func (m TrackingMode) String() string {
	switch m {
	case EdgeExclusive:
		return "exclusive"
	case EdgeInclusive:
		return "inclusive"
	case EdgePositive:
		return "positive"
	case EdgeNegative:
		return "negative"
	default:
		return fmt.Sprintf("TrackingMode(%d)", int(m))
	}
}

// ParseTrackingMode parses the names produced by String.
func ParseTrackingMode(s string) (TrackingMode, error) {
	switch s {
	case "exclusive", "":
		return EdgeExclusive, nil
	case "inclusive":
		return EdgeInclusive, nil
	case "positive":
		return EdgePositive, nil
	case "negative":
		return EdgeNegative, nil
	}
	return EdgeExclusive, fmt.Errorf("%w: %q", ErrUnknownTrackingMode, s)
}

// gravity returns whether the start and end boundaries follow inserted text.
func (m TrackingMode) gravity() (startPositive, endPositive bool) {
	switch m {
	case EdgeInclusive:
		return false, true
	case EdgePositive:
		return true, true
	case EdgeNegative:
		return false, false
	default:
		return true, false
	}
}

// Span is a half-open range [Start, Start+Length) of offsets in one version.
type Span struct {
	Start  int
	Length int
}

// NewSpanFromBounds builds a span from [start, end).
func NewSpanFromBounds(start, end int) Span {
	return Span{Start: start, Length: end - start}
}

// End returns the exclusive end offset.
func (s Span) End() int {
	return s.Start + s.Length
}

// IsEmpty reports whether the span covers no characters.
func (s Span) IsEmpty() bool {
	return s.Length == 0
}

// IntersectsWith reports whether s and other share at least one position.
// Spans that only touch (s.End() == other.Start) do not intersect.
func (s Span) IntersectsWith(other Span) bool {
	return s.Start < other.End() && s.End() > other.Start
}

// Contains reports whether point lies inside the span. Empty spans contain
// nothing.
func (s Span) Contains(point int) bool {
	return point >= s.Start && point < s.End()
}

func (s Span) String() string {
	return fmt.Sprintf("[%d..%d)", s.Start, s.End())
}

// TrackedSpan is a span anchored to a version together with the policy used
// to recompute it in later versions.
type TrackedSpan struct {
	Version Version
	Start   int
	Length  int
	Mode    TrackingMode
}

// NewTrackedSpan anchors span at v.
func NewTrackedSpan(v Version, span Span, mode TrackingMode) TrackedSpan {
	return TrackedSpan{Version: v, Start: span.Start, Length: span.Length, Mode: mode}
}

// Span returns the offsets at the anchor version.
func (t TrackedSpan) Span() Span {
	return Span{Start: t.Start, Length: t.Length}
}

// Validate checks the offset invariants.
func (t TrackedSpan) Validate() error {
	if t.Start < 0 || t.Length < 0 {
		return fmt.Errorf("%w: start=%d length=%d", ErrInvalidSpan, t.Start, t.Length)
	}
	return nil
}

// Oracle translates tracked spans into later versions of the same document.
//
// Implementations must be deterministic, must return the anchored offsets
// unchanged when target equals the anchor version, and are assumed to
// preserve the relative order of spans that did not overlap at the anchor.
type Oracle interface {
	Translate(span TrackedSpan, target Version) (Span, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(span TrackedSpan, target Version) (Span, error)

// Translate calls f.
func (f OracleFunc) Translate(span TrackedSpan, target Version) (Span, error) {
	return f(span, target)
}

// Edit replaces OldLength characters at Start with NewLength characters.
// Positions refer to the text as it was just before the edit is applied.
type Edit struct {
	Start     int
	OldLength int
	NewLength int
}

// Delta returns the change in document length caused by the edit.
func (e Edit) Delta() int {
	return e.NewLength - e.OldLength
}

// translatePoint moves an offset across one edit. Points inside the replaced
// text collapse to the start (negative gravity) or the end (positive gravity)
// of the inserted text.
func translatePoint(x int, e Edit, positive bool) int {
	oldEnd := e.Start + e.OldLength
	switch {
	case x < e.Start:
		return x
	case x > oldEnd:
		return x + e.Delta()
	case x == oldEnd && e.OldLength > 0:
		return e.Start + e.NewLength
	case positive:
		return e.Start + e.NewLength
	default:
		return e.Start
	}
}

// TranslateThrough moves span across a sequence of edits applied in order.
func TranslateThrough(span Span, mode TrackingMode, edits []Edit) Span {
	startPositive, endPositive := mode.gravity()
	start, end := span.Start, span.End()
	for _, e := range edits {
		start = translatePoint(start, e, startPositive)
		end = translatePoint(end, e, endPositive)
		if end < start {
			end = start
		}
	}
	return NewSpanFromBounds(start, end)
}
