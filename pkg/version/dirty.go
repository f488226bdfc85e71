// ABOUTME: Computes the regions of a newer version touched by recorded edits
// ABOUTME: Used to decide which part of a document needs retagging

package version

import "slices"

// DirtyRanges returns the regions of the version produced by changes that
// hold inserted or replaced text, in order and with overlaps merged. Pure
// deletions leave an empty span at the deletion point. Earlier regions grow
// with later edits at their edges.
func DirtyRanges(changes []Change) []Span {
	var dirty []Span
	for _, c := range changes {
		for _, e := range c.Edits {
			for i, s := range dirty {
				dirty[i] = TranslateThrough(s, EdgeInclusive, []Edit{e})
			}
			dirty = append(dirty, Span{Start: e.Start, Length: e.NewLength})
		}
	}

	slices.SortFunc(dirty, func(a, b Span) int {
		if a.Start != b.Start {
			return a.Start - b.Start
		}
		return a.Length - b.Length
	})
	out := dirty[:0]
	for _, s := range dirty {
		if n := len(out); n > 0 && s.Start <= out[n-1].End() {
			if s.End() > out[n-1].End() {
				out[n-1] = NewSpanFromBounds(out[n-1].Start, s.End())
			}
			continue
		}
		out = append(out, s)
	}
	return out
}
