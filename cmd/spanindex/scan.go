package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/boyter/gocodewalker"

	"github.com/nainya/spanindex/internal/config"
	"github.com/nainya/spanindex/pkg/tagger"
)

type fileReport struct {
	Path   string         `json:"path"`
	Spans  int            `json:"spans"`
	ByRule map[string]int `json:"by_rule"`
}

func stripRoot(root string, path string) string {
	if root == "." {
		return path
	}
	return strings.TrimPrefix(path, strings.TrimSuffix(root, "/")+"/")
}

func scan(w io.Writer, cfg *config.Config, root string, format string, hidden bool) error {
	if rootStat, err := os.Stat(root); err != nil || !rootStat.IsDir() {
		return fmt.Errorf("not a directory: %s", root)
	}

	tg, err := tagger.Compile(cfg.Rules, cfg.TrackingMode())
	if err != nil {
		return fmt.Errorf("error compiling rules: %w", err)
	}
	if tg.Len() == 0 {
		return fmt.Errorf("no rules configured")
	}

	fileListQueue := make(chan *gocodewalker.File, 100)
	walker := gocodewalker.NewFileWalker(root, fileListQueue)
	walker.IncludeHidden = hidden
	walker.ExcludeDirectory = []string{".git"}

	errChan := make(chan error, 1)
	go func() {
		errChan <- walker.Start()
		close(errChan)
	}()

	reports := make([]fileReport, 0)
	var readErr error
	for f := range fileListQueue {
		path := stripRoot(root, f.Location)
		if !tg.Applies(path) {
			continue
		}
		data, err := os.ReadFile(f.Location)
		if err != nil {
			// Keep draining so the walker can finish.
			if readErr == nil {
				readErr = fmt.Errorf("error reading %s: %w", f.Location, err)
			}
			continue
		}

		matches := tg.Matches(path, string(data))
		if len(matches) == 0 {
			continue
		}
		report := fileReport{Path: path, Spans: len(matches), ByRule: make(map[string]int)}
		for _, m := range matches {
			report.ByRule[m.Tag.Rule]++
		}
		reports = append(reports, report)
	}

	if err := <-errChan; err != nil {
		return fmt.Errorf("error walking %s: %w", root, err)
	}
	if readErr != nil {
		return readErr
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].Path < reports[j].Path })
	return printReports(w, reports, format)
}

func printReports(w io.Writer, reports []fileReport, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	total := 0
	for _, r := range reports {
		rules := make([]string, 0, len(r.ByRule))
		for rule, n := range r.ByRule {
			rules = append(rules, fmt.Sprintf("%s=%d", rule, n))
		}
		sort.Strings(rules)
		_, _ = fmt.Fprintf(w, "%s: %d spans (%s)\n", r.Path, r.Spans, strings.Join(rules, ", "))
		total += r.Spans
	}
	_, _ = fmt.Fprintf(w, "%d files, %d spans\n", len(reports), total)
	return nil
}
