// ABOUTME: Regex tagger that produces tag spans for a document snapshot
// ABOUTME: Supports full scans and line-bounded incremental retagging

package tagger

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nainya/spanindex/pkg/query"
	"github.com/nainya/spanindex/pkg/tagspan"
	"github.com/nainya/spanindex/pkg/version"
)

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// Tagger applies a fixed set of compiled rules. It is safe for concurrent
// use.
type Tagger struct {
	rules []compiledRule
	mode  version.TrackingMode
}

// Compile validates rules and prepares them for matching. Every span the
// tagger produces tracks edits with mode, which should be the mode of the
// index the spans are published to.
func Compile(rules []Rule, mode version.TrackingMode) (*Tagger, error) {
	seen := make(map[string]bool, len(rules))
	compiled := make([]compiledRule, 0, len(rules))

	for _, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("%w: rule without a name", ErrInvalidRule)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, r.Name)
		}
		seen[r.Name] = true

		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRule, r.Name, err)
		}
		if r.Group < 0 || r.Group > re.NumSubexp() {
			return nil, fmt.Errorf("%w: %s: group %d out of range", ErrInvalidRule, r.Name, r.Group)
		}
		for _, p := range r.Paths {
			if !doublestar.ValidatePattern(p) {
				return nil, fmt.Errorf("%w: %s: bad path pattern %q", ErrInvalidRule, r.Name, p)
			}
		}

		compiled = append(compiled, compiledRule{Rule: r, re: re})
	}
	return &Tagger{rules: compiled, mode: mode}, nil
}

// Mode returns the tracking mode stamped on produced spans.
func (tg *Tagger) Mode() version.TrackingMode {
	return tg.mode
}

// Len returns the number of rules.
func (tg *Tagger) Len() int {
	return len(tg.rules)
}

// Applies reports whether any rule targets path.
func (tg *Tagger) Applies(path string) bool {
	for i := range tg.rules {
		if tg.rules[i].applies(path) {
			return true
		}
	}
	return false
}

func (r *compiledRule) applies(path string) bool {
	if len(r.Paths) == 0 {
		return true
	}
	for _, p := range r.Paths {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}

// Matches returns every region the rules tag in text, ordered by rule then
// by position.
func (tg *Tagger) Matches(path, text string) []Match {
	return tg.matchRange(path, text, 0, len(text), nil)
}

func (tg *Tagger) matchRange(path, text string, lo, hi int, out []Match) []Match {
	chunk := text[lo:hi]
	for i := range tg.rules {
		r := &tg.rules[i]
		if !r.applies(path) {
			continue
		}
		for _, loc := range r.re.FindAllStringSubmatchIndex(chunk, -1) {
			s, e := loc[2*r.Group], loc[2*r.Group+1]
			if s < 0 {
				continue
			}
			out = append(out, Match{
				Span: version.NewSpanFromBounds(lo+s, lo+e),
				Tag:  Tag{Rule: r.Name, Kind: r.Kind},
			})
		}
	}
	return out
}

// Tag scans a whole snapshot at version v.
func (tg *Tagger) Tag(path string, v version.Version, text string) []tagspan.TagSpan[Tag] {
	return tg.spans(v, tg.Matches(path, text))
}

// Retag scans only the lines touched by dirty, which must be normalized
// against text. It returns the fresh spans and the widened set they cover;
// pass both to tagspan.Index.Rebuild so spans outside the widened set are
// carried over. Patterns are expected to match within a single line.
func (tg *Tagger) Retag(path string, v version.Version, text string, dirty query.Set) ([]tagspan.TagSpan[Tag], query.Set) {
	widened := make([]query.Range, 0, len(dirty))
	for _, r := range dirty {
		lo, hi := lineBounds(text, r.Start, r.End())
		widened = append(widened, version.NewSpanFromBounds(lo, hi))
	}
	set := query.Normalize(widened)

	var matches []Match
	for _, r := range set {
		matches = tg.matchRange(path, text, r.Start, r.End(), matches)
	}
	return tg.spans(v, matches), set
}

func (tg *Tagger) spans(v version.Version, matches []Match) []tagspan.TagSpan[Tag] {
	out := make([]tagspan.TagSpan[Tag], len(matches))
	for i, m := range matches {
		out[i] = tagspan.NewTagSpan(v, m.Span.Start, m.Span.Length, tg.mode, m.Tag)
	}
	return out
}

// lineBounds widens [start, end) to whole lines, including the newline
// that ends the last one.
func lineBounds(text string, start, end int) (int, int) {
	start = min(max(start, 0), len(text))
	end = min(max(end, start), len(text))

	lo := strings.LastIndexByte(text[:start], '\n') + 1
	hi := len(text)
	if end > 0 && end <= len(text) && text[end-1] == '\n' && end > start {
		hi = end
	} else if i := strings.IndexByte(text[end:], '\n'); i >= 0 {
		hi = end + i + 1
	}
	return lo, hi
}
