// Span index command line
// Serves the gRPC span index and offers offline scan and bench tools
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/nainya/spanindex/internal/config"
	"github.com/nainya/spanindex/internal/logger"
)

var appVersion = "v0.1.0"

func main() {
	var configPath string
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Value:       ".",
		Usage:       "Path to spanindex.toml or the directory holding it",
		Destination: &configPath,
	}

	app := &cli.App{
		Name:    "spanindex",
		Usage:   "Tagged span index over versioned text documents",
		Version: appVersion,
		Commands: []*cli.Command{
			{
				Name:      "serve",
				Usage:     "Run the gRPC span index service",
				UsageText: "spanindex serve [options]",
				Flags: []cli.Flag{
					configFlag,
					&cli.IntFlag{
						Name:  "port",
						Usage: "gRPC port (overrides server.port)",
					},
					&cli.IntFlag{
						Name:  "metrics-port",
						Usage: "Observability port (overrides server.metrics_port)",
					},
				},
				Action: func(cCtx *cli.Context) error {
					cfg, err := config.ReadConfig(configPath)
					if err != nil {
						return fmt.Errorf("error reading config: %w", err)
					}
					if cCtx.IsSet("port") {
						cfg.Server.Port = cCtx.Int("port")
					}
					if cCtx.IsSet("metrics-port") {
						cfg.Server.MetricsPort = cCtx.Int("metrics-port")
					}
					return serve(cCtx.Context, cfg, newLogger(cfg))
				},
			},
			{
				Name:        "scan",
				Usage:       "Tag every matching file under a directory",
				UsageText:   "spanindex scan [options] [dir]",
				Description: "Walk dir (default .) honoring .gitignore, apply the configured rules and report spans per file.",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "default",
						Usage:   "Output format. Allowed values are: default and json",
					},
					&cli.BoolFlag{
						Name:  "hidden",
						Usage: "Include hidden files",
					},
				},
				Action: func(cCtx *cli.Context) error {
					cfg, err := config.ReadConfig(configPath)
					if err != nil {
						return fmt.Errorf("error reading config: %w", err)
					}
					root := "."
					if cCtx.NArg() > 0 {
						root = cCtx.Args().First()
					}
					format := cCtx.String("format")
					if format != "default" && format != "json" {
						return fmt.Errorf("invalid format %s. Must be one of default, json", format)
					}
					return scan(cCtx.App.Writer, cfg, root, format, cCtx.Bool("hidden"))
				},
			},
			{
				Name:      "bench",
				Usage:     "Measure build and query time on a synthetic document",
				UsageText: "spanindex bench [options]",
				Flags: []cli.Flag{
					configFlag,
					&cli.IntFlag{Name: "spans", Value: 100000, Usage: "Number of tag spans"},
					&cli.IntFlag{Name: "ranges", Value: 500, Usage: "Ranges per batch query"},
					&cli.IntFlag{Name: "edits", Value: 50, Usage: "Edits applied before querying"},
					&cli.Int64Flag{Name: "seed", Value: 1, Usage: "Random seed"},
				},
				Action: func(cCtx *cli.Context) error {
					cfg, err := config.ReadConfig(configPath)
					if err != nil {
						return fmt.Errorf("error reading config: %w", err)
					}
					return bench(cCtx.Context, cCtx.App.Writer, cfg, benchOptions{
						spans:  cCtx.Int("spans"),
						ranges: cCtx.Int("ranges"),
						edits:  cCtx.Int("edits"),
						seed:   cCtx.Int64("seed"),
					})
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *logger.Logger {
	logger.InitGlobalLogger(logger.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		Output: os.Stderr,
	})
	return logger.GetGlobalLogger()
}
