// ABOUTME: Tests for the regex tagger
// ABOUTME: Covers rule compilation, path filters and incremental retagging into an index

package tagger

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/nainya/spanindex/pkg/document"
	"github.com/nainya/spanindex/pkg/query"
	"github.com/nainya/spanindex/pkg/tagspan"
	"github.com/nainya/spanindex/pkg/version"
)

const rulesTOML = `
[[rules]]
name = "todo"
kind = "comment"
pattern = 'TODO\(\w+\)'

[[rules]]
name = "func"
kind = "decl"
pattern = 'func (\w+)'
group = 1
paths = ["**/*.go"]
`

func mustTagger(t *testing.T) *Tagger {
	t.Helper()
	rules, err := ParseRules([]byte(rulesTOML))
	if err != nil {
		t.Fatalf("ParseRules failed: %v", err)
	}
	tg, err := Compile(rules, version.EdgeInclusive)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return tg
}

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]byte(rulesTOML))
	if err != nil {
		t.Fatalf("ParseRules failed: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("Expected 2 rules, got %d", len(rules))
	}
	if rules[1].Group != 1 || !slices.Equal(rules[1].Paths, []string{"**/*.go"}) {
		t.Errorf("Unexpected second rule: %+v", rules[1])
	}
}

func TestCompileRejectsBadRules(t *testing.T) {
	cases := []struct {
		name  string
		rules []Rule
		err   error
	}{
		{"missing name", []Rule{{Pattern: "x"}}, ErrInvalidRule},
		{"bad regexp", []Rule{{Name: "a", Pattern: "("}}, ErrInvalidRule},
		{"bad group", []Rule{{Name: "a", Pattern: "x", Group: 2}}, ErrInvalidRule},
		{"bad glob", []Rule{{Name: "a", Pattern: "x", Paths: []string{"[a"}}}, ErrInvalidRule},
		{"duplicate", []Rule{{Name: "a", Pattern: "x"}, {Name: "a", Pattern: "y"}}, ErrDuplicateRule},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Compile(tc.rules, version.EdgeExclusive); !errors.Is(err, tc.err) {
				t.Errorf("Expected %v, got %v", tc.err, err)
			}
		})
	}
}

func TestMatchesHonorsPathsAndGroups(t *testing.T) {
	tg := mustTagger(t)
	text := "func main() {} // TODO(ann)\n"

	goMatches := tg.Matches("cmd/app/main.go", text)
	if len(goMatches) != 2 {
		t.Fatalf("Expected 2 matches in a Go file, got %d", len(goMatches))
	}

	var fn Match
	for _, m := range goMatches {
		if m.Tag.Rule == "func" {
			fn = m
		}
	}
	if got := text[fn.Span.Start:fn.Span.End()]; got != "main" {
		t.Errorf("Expected capture group text main, got %q", got)
	}

	txtMatches := tg.Matches("notes.txt", text)
	if len(txtMatches) != 1 || txtMatches[0].Tag != (Tag{Rule: "todo", Kind: "comment"}) {
		t.Errorf("Expected only the todo match outside Go files, got %+v", txtMatches)
	}

	if !tg.Applies("notes.txt") {
		t.Error("The todo rule has no path filter and should apply everywhere")
	}
}

func TestTagStampsTaggerTrackingMode(t *testing.T) {
	tg := mustTagger(t)
	spans := tg.Tag("a.go", 3, "func f() {} // TODO(ann)\n")

	if len(spans) != 2 {
		t.Fatalf("Expected 2 spans, got %d", len(spans))
	}
	for _, s := range spans {
		if s.Span.Mode != tg.Mode() || s.Span.Version != 3 {
			t.Errorf("Unexpected tracked span: %+v", s.Span)
		}
	}
	if tg.Mode() != version.EdgeInclusive {
		t.Errorf("Expected inclusive mode, got %v", tg.Mode())
	}
}

func TestLineBounds(t *testing.T) {
	text := "ab\ncd\nef"
	cases := []struct {
		start, end, lo, hi int
	}{
		{0, 0, 0, 3},
		{1, 1, 0, 3},
		{3, 3, 3, 6},
		{1, 4, 0, 6},
		{3, 6, 3, 6},
		{7, 8, 6, 8},
		{8, 8, 6, 8},
	}
	for _, tc := range cases {
		lo, hi := lineBounds(text, tc.start, tc.end)
		if lo != tc.lo || hi != tc.hi {
			t.Errorf("lineBounds(%d,%d) = [%d,%d), expected [%d,%d)", tc.start, tc.end, lo, hi, tc.lo, tc.hi)
		}
	}
}

func TestRetagRebuildsOnlyDirtyLines(t *testing.T) {
	tg := mustTagger(t)
	doc := document.New("d1", "pkg/a.go", "func a() {}\n// TODO(bob)\nfunc b() {}\n")

	index := tagspan.NewIndex[Tag](tagspan.Config{Oracle: doc, Mode: version.EdgeExclusive})
	snap := doc.Snapshot()
	if _, err := index.Publish(snap.Version, nil, tg.Tag(doc.Path, snap.Version, snap.Text)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// Rename b to bee on the third line.
	v, err := doc.Replace(30, 1, "bee")
	if err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	snap = doc.Snapshot()

	fresh, widened := tg.Retag(doc.Path, v, snap.Text, query.Set{{Start: 30, Length: 3}})
	if len(widened) != 1 || widened[0] != (version.Span{Start: 25, Length: 14}) {
		t.Fatalf("Expected the third line as the widened set, got %v", widened)
	}
	if len(fresh) != 1 || fresh[0].Tag.Rule != "func" {
		t.Fatalf("Expected one fresh func span, got %+v", fresh)
	}

	gen, err := index.Rebuild(context.Background(), v, widened, fresh)
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if gen.Carried != 2 || gen.Fresh != 1 {
		t.Errorf("Expected 2 carried and 1 fresh span, got %d and %d", gen.Carried, gen.Fresh)
	}

	results, err := gen.Tree.Enumerate(v)
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}
	var texts []string
	for _, r := range results {
		texts = append(texts, snap.Text[r.Span.Start:r.Span.End()])
	}
	if want := []string{"a", "TODO(bob)", "bee"}; !slices.Equal(texts, want) {
		t.Errorf("Expected %v, got %v", want, texts)
	}
}
