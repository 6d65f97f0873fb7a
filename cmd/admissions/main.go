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
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/admissions"
	"github.com/poiesic/admissions/config"
	"github.com/poiesic/admissions/core"
	"github.com/poiesic/admissions/ingestion"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func identityFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "user",
			Aliases: []string{"u"},
			Usage:   "Authenticated user id the request is charged to",
		},
		&cli.StringFlag{
			Name:  "ip",
			Usage: "Client address of an anonymous caller",
		},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "admissions",
		Usage: "Question answering over university admissions documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ask",
				Usage:     "Answer an admissions question through the full pipeline",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags: append([]cli.Flag{
					&cli.StringSliceFlag{
						Name:  "turn",
						Usage: "Prior conversation turn as role:text (repeatable, oldest first)",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Deadline for the whole request",
						Value: 2 * time.Minute,
					},
				}, identityFlags()...),
			},
			{
				Name:      "route",
				Usage:     "Show the retrieval calls the router selects for a question",
				ArgsUsage: "<question>",
				Action:    routeCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "execute",
						Usage: "Also run the selected calls and print match counts",
					},
				},
			},
			{
				Name:   "load",
				Usage:  "Embed and store pre-chunked documents from a JSON lines file",
				Action: loadCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to the JSON lines file, or - for stdin",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to embed per request",
						Value: ingestion.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed embedding batches",
						Value: ingestion.DefaultMaxRetries,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: ingestion.DefaultRetryDelay,
					},
				},
			},
			{
				Name:   "usage",
				Usage:  "Show today's request count for an identity without charging it",
				Action: usageCommand,
				Flags:  identityFlags(),
			},
			{
				Name:   "audit",
				Usage:  "List the most recent evaluation reports",
				Action: auditCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of reports to show",
						Value:   20,
					},
				},
			},
		},
	}
}

func openService() (*admissions.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	svc, err := admissions.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open service: %w", err)
	}
	return svc, nil
}

func askCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("a question is required")
	}
	id, err := identityFromFlags(c)
	if err != nil {
		return err
	}
	history, err := parseTurns(c.StringSlice("turn"))
	if err != nil {
		return err
	}

	svc, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()

	result := svc.Handle(ctx, pipelineRequest(question, history, id))
	// Give in-flight audits a chance to land before the process exits.
	svc.WaitForAudits()

	if f := result.Failure; f != nil {
		return fmt.Errorf("request %s: %w", result.RequestID, f)
	}
	printAnswer(c.App.Writer, result.Answer)
	return nil
}

func routeCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("a question is required")
	}

	svc, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := context.Background()
	out := svc.Route(ctx, question, nil)
	if out.Err != nil {
		fmt.Fprintf(c.App.ErrWriter, "router failed: %v\n", out.Err)
	}
	w := c.App.Writer
	fmt.Fprintf(w, "%d call(s)\n", len(out.FunctionCalls))
	for i, call := range out.FunctionCalls {
		fmt.Fprintf(w, "%d: %s %s\n", i, call.Name, formatParams(call.Params))
	}
	if !c.Bool("execute") || len(out.FunctionCalls) == 0 {
		return nil
	}

	results := svc.Execute(ctx, out.FunctionCalls)
	for _, r := range results.Ordered() {
		if r.Failed() {
			fmt.Fprintf(w, "%s: error: %v\n", core.CallKey(r.Index), r.Err)
			continue
		}
		fmt.Fprintf(w, "%s: %d match(es)\n", core.CallKey(r.Index), r.Count)
	}
	return nil
}

func loadCommand(c *cli.Context) error {
	path := c.String("file")
	if path == "" {
		return fmt.Errorf("file is required")
	}
	if c.Int("batch-size") <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if c.Int("report-interval") <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if c.Int("max-retries") <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	docs, err := ingestion.ReadDocuments(r)
	if err != nil {
		return fmt.Errorf("failed to read documents: %w", err)
	}

	svc, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	progress := ingestion.NewProgressTracker(c.App.ErrWriter, len(docs), c.Int("report-interval"))
	progress.Start()
	stats, err := svc.LoadDocuments(context.Background(), docs,
		ingestion.WithBatchSize(c.Int("batch-size")),
		ingestion.WithRetry(c.Int("max-retries"), c.Duration("retry-delay")),
		ingestion.WithProgress(progress),
	)
	progress.Finish()

	fmt.Fprintf(c.App.Writer, "submitted=%d added=%d duplicates=%d invalid=%d failed=%d\n",
		stats.Submitted, stats.Added, stats.Duplicates, stats.Invalid, stats.Failed)
	if err != nil {
		return fmt.Errorf("load finished with errors: %w", err)
	}
	return nil
}

func usageCommand(c *cli.Context) error {
	id, err := identityFromFlags(c)
	if err != nil {
		return err
	}

	svc, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	d, err := svc.PeekUsage(context.Background(), id)
	if err != nil {
		return fmt.Errorf("failed to read usage: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "%s: %d of %d used today\n", id.Key(), d.Count, d.Limit)
	return nil
}

func auditCommand(c *cli.Context) error {
	limit := c.Int("limit")
	if limit <= 0 {
		return fmt.Errorf("limit must be greater than 0")
	}

	svc, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	reports, err := svc.ListReports(context.Background(), limit)
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}
	w := c.App.Writer
	for _, rep := range reports {
		status := "ok"
		if rep.Failed {
			status = "failed"
		}
		fmt.Fprintf(w, "%s %s %s request=%s format=%t selection=%t params=%t [%s]\n",
			rep.CreatedAt.Format(time.RFC3339), rep.Kind, status, rep.RequestID,
			rep.Format.Valid, rep.FunctionSelection.Valid, rep.ParameterSoundness.Valid,
			rep.Question)
		if rep.Comment != "" {
			fmt.Fprintf(w, "    %s\n", rep.Comment)
		}
	}
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
