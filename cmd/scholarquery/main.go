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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/scholarquery"
	"github.com/poiesic/scholarquery/config"
	"github.com/poiesic/scholarquery/core"
	"github.com/poiesic/scholarquery/server"
)

func main() {
	app := &cli.App{
		Name:  "scholarquery",
		Usage: "Semantic retrieval engine with topic clustering and grounded answers",
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
				Usage:   "Path to the YAML configuration file",
				Value:   "scholarquery.yaml",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API server",
				Action: serveCommand,
			},
			{
				Name:      "ingest",
				Usage:     "Ingest documents from a JSON Lines file",
				ArgsUsage: "<file>",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents to ingest per batch",
						Value: 100,
					},
				},
			},
			{
				Name:   "recluster",
				Usage:  "Refit the topic clustering over the stored corpus",
				Action: reclusterCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "k",
						Aliases: []string{"clusters"},
						Usage:   "Number of topic clusters (0 uses the configured default)",
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Re-embed all stored documents with the configured embedding model",
				Action: reindexCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func openEngine(c *cli.Context) (*scholarquery.Engine, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	engine, err := scholarquery.NewEngine(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	return engine, nil
}

func serveCommand(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	engine, err := scholarquery.NewEngine(cfg)
	if err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.NewServer(engine, cfg.Server).ListenAndServe(ctx)
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one input file is required")
	}
	batchSize := c.Int("batch-size")
	if batchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}

	file, err := os.Open(c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := context.Background()
	total := 0
	batch := make([]*core.Document, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := engine.Ingest(ctx, batch...); err != nil {
			return fmt.Errorf("ingestion failed after %d documents: %w", total, err)
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var doc struct {
			Id       string            `json:"id"`
			Text     string            `json:"text"`
			Metadata map[string]string `json:"metadata"`
		}
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return fmt.Errorf("invalid document on line %d: %w", line, err)
		}

		batch = append(batch, &core.Document{
			Id:       doc.Id,
			Text:     doc.Text,
			Metadata: doc.Metadata,
		})
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	if err := flush(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Ingested %d documents\n", total)
	return nil
}

func reclusterCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	clustering, err := engine.Recluster(context.Background(), c.Int("k"))
	if err != nil {
		return fmt.Errorf("reclustering failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Clustering version %d with %d topics:\n",
		clustering.Version, len(clustering.Clusters))
	for _, cl := range clustering.Clusters {
		fmt.Fprintf(os.Stderr, "  [%d] %s\n", cl.Id, cl.Label)
	}
	return nil
}

func reindexCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	processed, err := engine.Reindex(context.Background(), os.Stderr)
	if err != nil {
		return fmt.Errorf("reindexing failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Reindexed %d documents\n", processed)
	return nil
}

func setupLogger(c *cli.Context) error {
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
