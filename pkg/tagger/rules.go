// ABOUTME: Loads tagging rules from TOML
// ABOUTME: Accepts a standalone rules file or the rules section of a config

package tagger

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// ParseRules decodes [[rules]] tables from TOML.
func ParseRules(data []byte) ([]Rule, error) {
	var file RuleFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return file.Rules, nil
}

// LoadRules reads and decodes a rules file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}
