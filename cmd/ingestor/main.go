// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/ingestor"
	"github.com/poiesic/ingestor/config"
	"github.com/poiesic/ingestor/synth"
)

func main() {
	synth.ChildMain()
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	tenantFlag := &cli.StringFlag{
		Name:     "tenant",
		Aliases:  []string{"t"},
		Usage:    "Tenant identifier",
		Required: true,
	}
	return &cli.App{
		Name:  "ingestor",
		Usage: "Multi-tenant document ingestion and search",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML or TOML configuration file",
				EnvVars: []string{"INGESTOR_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Environment file loaded before the configuration",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Override the configured data directory",
				EnvVars: []string{"INGESTOR_DATA_DIR"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Crawl a directory and ingest its documents for a tenant",
				Action: ingestCommand,
				Flags: []cli.Flag{
					tenantFlag,
					&cli.StringFlag{Name: "root", Aliases: []string{"r"}, Usage: "Source directory", Required: true},
					&cli.StringSliceFlag{Name: "prefix", Usage: "Only crawl keys under this prefix (repeatable)"},
					&cli.BoolFlag{Name: "recursive", Usage: "Descend into subdirectories", Value: true},
				},
			},
			{
				Name:   "status",
				Usage:  "Show one job or list a tenant's jobs",
				Action: statusCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "job", Aliases: []string{"j"}, Usage: "Job ID"},
					&cli.StringFlag{Name: "tenant", Aliases: []string{"t"}, Usage: "Tenant identifier"},
				},
			},
			{
				Name:   "search",
				Usage:  "Search a tenant's documents",
				Action: searchCommand,
				Flags: []cli.Flag{
					tenantFlag,
					&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Query text", Required: true},
					&cli.StringSliceFlag{Name: "category", Usage: "Restrict to a category (repeatable)"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum results", Value: 10},
					&cli.Float64Flag{Name: "min-score", Usage: "Minimum similarity"},
				},
			},
			{
				Name:   "handlers",
				Usage:  "List built-in signatures and a tenant's synthesized handlers",
				Action: handlersCommand,
				Flags:  []cli.Flag{tenantFlag},
			},
			{
				Name:   "dead-letters",
				Usage:  "List files that exhausted their retries",
				Action: deadLettersCommand,
				Flags:  []cli.Flag{tenantFlag},
			},
			{
				Name:   "reembed",
				Usage:  "Re-embed every chunk of a tenant with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					tenantFlag,
					&cli.IntFlag{Name: "batch-size", Usage: "Number of chunks to process in each batch", Value: 100},
					&cli.IntFlag{Name: "report-interval", Usage: "Report progress every N chunks", Value: 100},
				},
			},
			{
				Name:   "watch",
				Usage:  "Ingest a directory and re-ingest whenever it changes",
				Action: watchCommand,
				Flags: []cli.Flag{
					tenantFlag,
					&cli.StringFlag{Name: "root", Aliases: []string{"r"}, Usage: "Source directory", Required: true},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "listen", Usage: "Listen address (overrides api.listen)"},
				},
			},
			{
				Name:   "config",
				Usage:  "Print the effective configuration",
				Action: configCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Usage: "Output format (yaml or toml)", Value: "yaml"},
				},
			},
		},
	}
}

// setup loads the environment file and configures the default logger.
func setup(c *cli.Context) error {
	if path := c.String("env-file"); path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	level, err := parseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", s)
}

// loadConfig reads --config when given, else the defaults, and applies --data-dir.
func loadConfig(c *cli.Context) (*config.File, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if dir := c.String("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	return cfg, nil
}

// withEngine opens an Engine for the duration of fn. The context passed to
// fn ends on SIGINT or SIGTERM.
func withEngine(c *cli.Context, fn func(ctx context.Context, e *ingestor.Engine, cfg *config.File) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := ingestor.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening engine: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			slog.Error("error closing engine", "err", err)
		}
	}()
	return fn(ctx, engine, cfg)
}
