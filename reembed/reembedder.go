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

package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/embed"
	"github.com/poiesic/ingestor/storage"
)

// Config holds configuration for a re-embedding run.
type Config struct {
	// BatchSize is the number of chunks fetched and embedded per page
	BatchSize int

	// ReportInterval is how often to report progress, in chunks
	ReportInterval int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
	}
}

// Summary describes a finished run.
type Summary struct {
	Tenant     core.TenantID
	Chunks     int
	Reembedded int
	Failed     int
	Elapsed    time.Duration
}

// Reembedder re-embeds all chunks of a tenant.
type Reembedder struct {
	tenants  storage.TenantProvider
	client   *embed.Client
	config   *Config
	progress io.Writer
	logger   *slog.Logger
}

// NewReembedder creates a new reembedder. Progress goes to progress,
// typically os.Stderr; a nil writer discards it.
func NewReembedder(tenants storage.TenantProvider, client *embed.Client, config *Config, progress io.Writer) (*Reembedder, error) {
	if tenants == nil {
		return nil, ErrTenantProviderRequired
	}
	if client == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}
	return &Reembedder{
		tenants:  tenants,
		client:   client,
		config:   config,
		progress: progress,
		logger:   slog.Default().With("component", "reembed"),
	}, nil
}

// Run re-embeds every chunk of tenant with the client's model.
func (r *Reembedder) Run(ctx context.Context, tenant core.TenantID) (*Summary, error) {
	if err := core.ValidateTenantID(tenant); err != nil {
		return nil, err
	}
	var total int
	store, err := r.tenants.Lookup(ctx, tenant)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("opening stores for %s: %w", tenant, err)
	default:
		if total, err = store.Structured.CountChunks(ctx); err != nil {
			return nil, fmt.Errorf("counting chunks: %w", err)
		}
	}
	summary := &Summary{Tenant: tenant, Chunks: total}
	if total == 0 {
		fmt.Fprintf(r.progress, "No chunks found for tenant %s\n", tenant)
		return summary, nil
	}

	fmt.Fprintf(r.progress, "Re-embedding %d chunks for tenant %s with %s (batch size: %d)\n",
		total, tenant, r.client.Model(), r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, string(tenant), total, r.config.ReportInterval)
	tracker.Start()
	processor := NewBatchProcessor(store, r.client)

	err = NewChunkIterator(store.Structured, r.config.BatchSize).ForEach(ctx, func(chunks []*core.Chunk) error {
		ok, failed, err := processor.Process(ctx, chunks)
		if err != nil {
			return fmt.Errorf("processing batch: %w", err)
		}
		summary.Reembedded += ok
		summary.Failed += failed
		tracker.Increment(len(chunks))
		return nil
	})
	tracker.Finish()
	summary.Elapsed = tracker.Elapsed()
	if err != nil {
		return summary, err
	}

	r.logger.Info("re-embedding complete",
		"tenant", string(tenant),
		"chunks", total,
		"reembedded", summary.Reembedded,
		"failed", summary.Failed,
		"elapsed", summary.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(r.progress, "Re-embedding complete. %d re-embedded, %d failed in %v\n",
		summary.Reembedded, summary.Failed, summary.Elapsed.Round(time.Second))
	return summary, nil
}
