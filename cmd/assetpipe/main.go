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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/poiesic/assetpipe"
	"github.com/poiesic/assetpipe/config"
	"github.com/poiesic/assetpipe/ingest"
	"github.com/poiesic/assetpipe/metrics"
	"github.com/poiesic/assetpipe/transform"
	"github.com/urfave/cli/v2"
)

const (
	exitMissingInput = 1
	exitStageFailure = 2
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("assetpipe failed", "err", err)
		os.Exit(exitMissingInput)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "assetpipe",
		Usage: "Load, enrich and cleanse IT asset inventories",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Bulk load a CSV inventory into a collection",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "csv",
						Usage:    "Path to the CSV inventory",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "db",
						Aliases: []string{"d"},
						Usage:   "Path to BadgerDB database directory",
					},
					&cli.StringFlag{
						Name:  "collection",
						Usage: "Collection to load into (defaults to the source collection)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of rows per bulk request",
						Value: config.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Number of bulk requests in flight",
						Value: config.DefaultConcurrency,
					},
					&cli.StringFlag{
						Name:  "profile",
						Usage: "Store profile (self-managed, serverless)",
					},
				},
			},
			{
				Name:   "transform",
				Usage:  "Copy, enrich and cleanse the inventory",
				Action: transformCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "db",
						Aliases: []string{"d"},
						Usage:   "Path to BadgerDB database directory",
					},
					&cli.StringFlag{
						Name:  "source",
						Usage: "Source collection",
					},
					&cli.StringFlag{
						Name:  "dest",
						Usage: "Destination collection",
					},
					&cli.StringFlag{
						Name:  "profile",
						Usage: "Store profile (self-managed, serverless)",
					},
					&cli.StringFlag{
						Name:  "metrics-file",
						Usage: "Write stage metrics to this file in Prometheus text format",
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show the last recorded run of every stage",
				Action: statusCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "db",
						Aliases: []string{"d"},
						Usage:   "Path to BadgerDB database directory",
					},
				},
			},
		},
	}
}

// loadConfig reads the --config file, if any, and applies command flags over it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		cfg, err = config.LoadFile(path)
		if err != nil {
			return nil, err
		}
	}

	if c.IsSet("db") {
		cfg.Apply(config.WithStorePath(c.String("db")))
	}
	if c.IsSet("profile") {
		cfg.Apply(config.WithProfile(c.String("profile")))
	}
	if c.IsSet("source") {
		cfg.SourceCollection = c.String("source")
	}
	if c.IsSet("dest") {
		cfg.DestCollection = c.String("dest")
	}
	if c.IsSet("batch-size") {
		cfg.Apply(config.WithBatchSize(c.Int("batch-size")))
	}
	if c.IsSet("concurrency") {
		cfg.Apply(config.WithConcurrency(c.Int("concurrency")))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openDatabase opens the configured store. A store that cannot be opened is a
// stage failure, not missing input.
func openDatabase(cfg *config.Config) (*assetpipe.Database, error) {
	db, err := assetpipe.Open(cfg)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.Store.Path, "err", err)
		return nil, cli.Exit(fmt.Sprintf("failed to open database: %v", err), exitStageFailure)
	}
	return db, nil
}

func ingestCommand(c *cli.Context) error {
	ctx := c.Context

	csvPath := c.String("csv")
	csvFile, err := ingest.OpenCSV(csvPath)
	if err != nil {
		slog.Error("CSV not found", "path", csvPath, "err", err)
		return cli.Exit(fmt.Sprintf("CSV not found: %s", csvPath), exitMissingInput)
	}
	defer csvFile.Close()

	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	collection := c.String("collection")
	if collection == "" {
		collection = cfg.SourceCollection
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("starting bulk load", "csv", csvPath, "collection", collection, "db", cfg.Store.Path)
	result, err := db.Ingest(ctx, csvFile.Rows(), collection)
	if err != nil {
		var partial *ingest.PartialBatchError
		if errors.As(err, &partial) {
			for _, itemErr := range partial.Errors {
				slog.Debug("bulk item failed", "row", itemErr.Index, "id", itemErr.ID, "reason", itemErr.Reason)
			}
		}
		slog.Error("bulk load failed", "err", err)
		return cli.Exit(fmt.Sprintf("bulk load failed: %v", err), exitStageFailure)
	}

	slog.Info("bulk load completed", "indexed", result.Indexed, "batches", result.Batches)
	return nil
}

func transformCommand(c *cli.Context) error {
	ctx := c.Context

	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	recorder := metrics.NewRecorder()
	pipeline, err := db.NewPipeline(transform.WithRecorder(recorder))
	if err != nil {
		slog.Error("failed to create pipeline", "err", err)
		return cli.Exit(fmt.Sprintf("failed to create pipeline: %v", err), exitStageFailure)
	}

	report, runErr := pipeline.Run(ctx)

	if path := c.String("metrics-file"); path != "" {
		if err := recorder.WriteTextfile(path); err != nil {
			slog.Warn("failed to write metrics file", "path", path, "err", err)
		}
	}

	if runErr != nil {
		slog.Error("transform failed", "err", runErr)
		return cli.Exit(fmt.Sprintf("transform failed: %v", runErr), exitStageFailure)
	}

	slog.Info("transform completed",
		"source", cfg.SourceCollection,
		"dest", cfg.DestCollection,
		"copied", report.Copied,
		"enriched", report.Enriched,
		"conflicts", report.Conflicts,
		"deleted", report.Deleted,
		"failed", report.Failed,
	)
	return nil
}

func statusCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	checkpoints, err := db.Status(c.Context)
	if err != nil {
		return fmt.Errorf("failed to read checkpoints: %w", err)
	}
	if len(checkpoints) == 0 {
		fmt.Fprintln(c.App.Writer, "no stages have run")
		return nil
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tCOLLECTION\tTOTAL\tAFFECTED\tCONFLICTS\tUPDATED")
	for _, cp := range checkpoints {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			cp.Stage, cp.Collection, cp.Total, cp.Affected, cp.Conflicts,
			cp.UpdatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
