// ABOUTME: Tag and rule types for the regex tagger
// ABOUTME: Rules are decoded from TOML and compiled before use

package tagger

import (
	"errors"

	"github.com/nainya/spanindex/pkg/version"
)

// Tagger errors
var (
	// ErrInvalidRule indicates a rule with a missing name or a bad pattern.
	ErrInvalidRule = errors.New("invalid tagging rule")

	// ErrDuplicateRule indicates two rules sharing a name.
	ErrDuplicateRule = errors.New("duplicate tagging rule")
)

// Tag identifies what produced a span. It is comparable so tag spans can
// be used as dedup keys.
type Tag struct {
	Rule string
	Kind string
}

func (t Tag) String() string {
	if t.Kind == "" {
		return t.Rule
	}
	return t.Rule + ":" + t.Kind
}

// Rule tags every match of Pattern in documents whose path matches one of
// Paths. An empty Paths list matches every document. When Group is set the
// span covers that capture group instead of the whole match. Rules have no
// tracking mode of their own; spans follow the index's [index] mode.
type Rule struct {
	Name    string   `toml:"name"`
	Kind    string   `toml:"kind"`
	Pattern string   `toml:"pattern"`
	Group   int      `toml:"group"`
	Paths   []string `toml:"paths"`
}

// RuleFile is the on-disk layout of a rules file.
type RuleFile struct {
	Rules []Rule `toml:"rules"`
}

// Match is one tagged region in a snapshot.
type Match struct {
	Span version.Span
	Tag  Tag
}
