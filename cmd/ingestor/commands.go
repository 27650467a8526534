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
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/ingestor"
	"github.com/poiesic/ingestor/api"
	"github.com/poiesic/ingestor/config"
	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/reembed"
	"github.com/poiesic/ingestor/search"
)

func ingestCommand(c *cli.Context) error {
	return withEngine(c, func(ctx context.Context, e *ingestor.Engine, _ *config.File) error {
		tenant := core.TenantID(c.String("tenant"))
		job, err := e.StartJob(ctx, tenant, core.SourceSpec{
			Kind:      "fs",
			Root:      c.String("root"),
			Prefixes:  c.StringSlice("prefix"),
			Recursive: c.Bool("recursive"),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.ErrWriter, "Job %s started for tenant %s\n", job.ID, tenant)

		id := job.ID
		if job, err = e.Wait(ctx, id); err != nil {
			// Interrupted: cancel so in-flight files are left resumable.
			_ = e.CancelJob(context.WithoutCancel(ctx), id)
			return err
		}
		printJob(c.App.Writer, job)
		if job.Status == core.JobFailed {
			return cli.Exit(fmt.Sprintf("job failed: %s", job.Error), 1)
		}
		return nil
	})
}

func statusCommand(c *cli.Context) error {
	id, tenant := c.String("job"), c.String("tenant")
	if id == "" && tenant == "" {
		return fmt.Errorf("either --job or --tenant is required")
	}
	return withEngine(c, func(ctx context.Context, e *ingestor.Engine, _ *config.File) error {
		if id != "" {
			job, err := e.JobStatus(ctx, id)
			if err != nil {
				return err
			}
			printJob(c.App.Writer, job)
			return nil
		}
		jobs, err := e.ListJobs(ctx, core.TenantID(tenant))
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "JOB\tSTATUS\tSTARTED\tLOADED\tSKIPPED\tDEAD")
		for _, j := range jobs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n", j.ID, j.Status, j.StartedAt.Format(time.RFC3339),
				j.Counts.Loaded, j.Counts.Skipped, j.Counts.DeadLettered)
		}
		return tw.Flush()
	})
}

func searchCommand(c *cli.Context) error {
	return withEngine(c, func(ctx context.Context, e *ingestor.Engine, _ *config.File) error {
		var categories []core.Category
		for _, cat := range c.StringSlice("category") {
			categories = append(categories, core.Category(cat))
		}
		results, err := e.Search(ctx, search.Query{
			Tenant:     core.TenantID(c.String("tenant")),
			Text:       c.String("query"),
			Categories: categories,
			Limit:      c.Int("limit"),
			MinScore:   float32(c.Float64("min-score")),
		})
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Fprintln(c.App.Writer, "No results.")
			return nil
		}
		for i, r := range results {
			fmt.Fprintf(c.App.Writer, "%2d. [%.3f] %s (%s) bytes %d-%d\n",
				i+1, r.Score, r.Document.ObjectKey, r.Document.Classification.Category, r.Chunk.Span.Start, r.Chunk.Span.End)
			fmt.Fprintf(c.App.Writer, "    %s\n", excerpt(r.Chunk.Text, 160))
		}
		return nil
	})
}

func handlersCommand(c *cli.Context) error {
	return withEngine(c, func(ctx context.Context, e *ingestor.Engine, _ *config.File) error {
		records, err := e.Handlers(ctx, core.TenantID(c.String("tenant")))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Built-in: %s\n\n", strings.Join(e.BuiltinSignatures(), " "))
		if len(records) == 0 {
			fmt.Fprintln(c.App.Writer, "No synthesized handlers.")
			return nil
		}
		tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SIGNATURE\tSTATE\tVERSION\tREASON")
		for _, h := range records {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", h.Signature, h.State, h.Version, h.Reason)
		}
		return tw.Flush()
	})
}

func deadLettersCommand(c *cli.Context) error {
	return withEngine(c, func(ctx context.Context, e *ingestor.Engine, _ *config.File) error {
		letters, err := e.DeadLetters(ctx, core.TenantID(c.String("tenant")))
		if err != nil {
			return err
		}
		if len(letters) == 0 {
			fmt.Fprintln(c.App.Writer, "No dead letters.")
			return nil
		}
		tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tSTATE\tATTEMPTS\tJOB\tERROR")
		for _, d := range letters {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", d.ObjectKey, d.State, d.Attempts, d.JobID, d.Error)
		}
		return tw.Flush()
	})
}

func reembedCommand(c *cli.Context) error {
	cfg := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if cfg.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	return withEngine(c, func(ctx context.Context, e *ingestor.Engine, fc *config.File) error {
		fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", fc.AI.EmbeddingHost)
		fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n\n", fc.AI.EmbeddingModel)
		summary, err := e.Reembed(ctx, core.TenantID(c.String("tenant")), c.App.ErrWriter, cfg)
		if err != nil {
			return fmt.Errorf("re-embedding failed: %w", err)
		}
		if summary.Failed > 0 {
			return cli.Exit(fmt.Sprintf("%d chunks could not be embedded", summary.Failed), 1)
		}
		return nil
	})
}

func watchCommand(c *cli.Context) error {
	return withEngine(c, func(ctx context.Context, e *ingestor.Engine, _ *config.File) error {
		fmt.Fprintf(c.App.ErrWriter, "Watching %s (Ctrl-C to stop)\n", c.String("root"))
		return e.Watch(ctx, core.TenantID(c.String("tenant")), core.SourceSpec{
			Kind:      "fs",
			Root:      c.String("root"),
			Recursive: true,
		})
	})
}

func serveCommand(c *cli.Context) error {
	return withEngine(c, func(ctx context.Context, e *ingestor.Engine, fc *config.File) error {
		srv, err := api.New(e)
		if err != nil {
			return err
		}
		addr := fc.API.Listen
		if listen := c.String("listen"); listen != "" {
			addr = listen
		}
		return srv.ListenAndServe(ctx, addr, fc.API.ShutdownTimeout.Std())
	})
}

func configCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	return cfg.Encode(c.App.Writer, c.String("format"))
}

func printJob(w io.Writer, job *core.IngestionJob) {
	fmt.Fprintf(w, "Job:        %s\n", job.ID)
	fmt.Fprintf(w, "Tenant:     %s\n", job.TenantID)
	fmt.Fprintf(w, "Status:     %s\n", job.Status)
	if job.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", job.Error)
	}
	n := job.Counts
	fmt.Fprintf(w, "Discovered: %d (skipped %d, unreadable %d)\n", n.Discovered, n.Skipped, n.Unreadable)
	fmt.Fprintf(w, "Extracted:  %d (degraded %d)\n", n.Extracted, n.Degraded)
	fmt.Fprintf(w, "Loaded:     %d\n", n.Loaded)
	fmt.Fprintf(w, "Failed:     %d files (%d attempts), %d dead-lettered\n", n.Failed, n.FailedAttempts, n.DeadLettered)
}

// excerpt flattens whitespace and truncates text to max runes.
func excerpt(text string, max int) string {
	flat := strings.Join(strings.Fields(text), " ")
	runes := []rune(flat)
	if len(runes) <= max {
		return flat
	}
	return string(runes[:max]) + "..."
}
