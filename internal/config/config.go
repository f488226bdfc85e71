// Package config loads spanindex.toml
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/nainya/spanindex/pkg/query"
	"github.com/nainya/spanindex/pkg/tagger"
	"github.com/nainya/spanindex/pkg/version"
)

// FileName is the config file looked up in a directory
const FileName = "spanindex.toml"

type Config struct {
	Server *Server       `toml:"server"`
	Log    *Log          `toml:"log"`
	Query  *Query        `toml:"query"`
	Index  *Index        `toml:"index"`
	Rules  []tagger.Rule `toml:"rules"`
}

type Server struct {
	Port        int `toml:"port"`
	MetricsPort int `toml:"metrics_port"`
}

type Log struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

type Query struct {
	Threshold int  `toml:"threshold"`
	KeepEmpty bool `toml:"keep_empty"`
	Verify    bool `toml:"verify"`
}

type Index struct {
	TrackingMode string `toml:"tracking_mode"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		Server: &Server{Port: 50051, MetricsPort: 9090},
		Log:    &Log{Level: "info", Pretty: false},
		Query:  &Query{Threshold: query.DefaultThreshold},
		Index:  &Index{TrackingMode: version.EdgeExclusive.String()},
		Rules:  []tagger.Rule{},
	}
}

// ReadConfig reads spanindex.toml from dir, or path itself when it names a
// file. Missing files yield the defaults; missing sections are filled from
// them.
func ReadConfig(path string) (*Config, error) {
	defaultConfig := Default()

	fileName := path
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		fileName = filepath.Join(path, FileName)
	}
	if _, err := os.Stat(fileName); errors.Is(err, os.ErrNotExist) {
		return defaultConfig, nil
	}
	file, err := os.ReadFile(fileName)
	if err != nil {
		return defaultConfig, err
	}

	// Decoding into the defaults keeps keys the file leaves out.
	config := Default()
	if err := toml.Unmarshal(file, config); err != nil {
		return defaultConfig, fmt.Errorf("parse %s: %w", fileName, err)
	}
	if err := config.Validate(); err != nil {
		return defaultConfig, err
	}
	return config, nil
}

// Validate checks values that toml decoding cannot
func (c *Config) Validate() error {
	if c.Query.Threshold < 0 {
		return fmt.Errorf("query.threshold must not be negative, got %d", c.Query.Threshold)
	}
	if _, err := version.ParseTrackingMode(c.Index.TrackingMode); err != nil {
		return fmt.Errorf("index.tracking_mode: %w", err)
	}
	return nil
}

// QueryOptions converts the [query] section
func (c *Config) QueryOptions() query.Options {
	return query.Options{
		Threshold: c.Query.Threshold,
		KeepEmpty: c.Query.KeepEmpty,
		Verify:    c.Query.Verify,
	}
}

// TrackingMode returns the parsed [index] tracking mode
func (c *Config) TrackingMode() version.TrackingMode {
	mode, _ := version.ParseTrackingMode(c.Index.TrackingMode)
	return mode
}
