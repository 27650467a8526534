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

package crawler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/storage"
)

// DefaultMaxObjectSize is the largest object read by default (64 MiB).
const DefaultMaxObjectSize = 64 << 20

// Outcome says what the crawler decided for one object.
type Outcome int

const (
	// OutcomeNew means the object must go through the pipeline.
	OutcomeNew Outcome = iota + 1
	// OutcomeSkipped means identical content is already loaded.
	OutcomeSkipped
	// OutcomeUnreadable means the object could not be read; it is not emitted further.
	OutcomeUnreadable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNew:
		return "new"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeUnreadable:
		return "unreadable"
	}
	return "unknown"
}

// Discovery is one crawled object.
type Discovery struct {
	Outcome Outcome
	Key     string
	File    *core.SourceFile // Persisted record; nil when unreadable
	Data    []byte           // Object bytes for OutcomeNew
	Err     error            // Read failure for OutcomeUnreadable
}

// Crawler walks a tenant's source and decides which objects need work.
type Crawler struct {
	files         storage.SourceFileRepository
	maxObjectSize int64
	dedupByHash   bool
	logger        *slog.Logger
}

// Option configures a Crawler.
type Option func(*Crawler) error

// WithMaxObjectSize sets the largest object the crawler will read.
func WithMaxObjectSize(n int64) Option {
	return func(c *Crawler) error {
		if n <= 0 {
			return fmt.Errorf("max object size must be > 0, got %d", n)
		}
		c.maxObjectSize = n
		return nil
	}
}

// WithHashDedup controls whether content already loaded under a different
// key of the same tenant is skipped. Enabled by default.
func WithHashDedup(enabled bool) Option {
	return func(c *Crawler) error {
		c.dedupByHash = enabled
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) error {
		if logger != nil {
			c.logger = logger.With("component", "crawler")
		}
		return nil
	}
}

// New creates a crawler that records discoveries in files.
func New(files storage.SourceFileRepository, opts ...Option) (*Crawler, error) {
	if files == nil {
		return nil, errors.New("crawler: source file repository is required")
	}
	c := &Crawler{
		files:         files,
		maxObjectSize: DefaultMaxObjectSize,
		dedupByHash:   true,
		logger:        slog.Default().With("component", "crawler"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Crawl lazily walks every prefix of job's source. Objects are read and
// hashed only as the consumer pulls them, so a slow consumer throttles the
// crawl. Crawling is restartable: a second pass skips what already loaded.
//
// A listing failure yields a single ErrSourceUnreachable error and ends the
// sequence. Per-object failures are yielded as OutcomeUnreadable discoveries.
func (c *Crawler) Crawl(ctx context.Context, job *core.IngestionJob, src ObjectSource) iter.Seq2[*Discovery, error] {
	return func(yield func(*Discovery, error) bool) {
		prefixes := job.Source.Prefixes
		if len(prefixes) == 0 {
			prefixes = []string{""}
		}
		seen := make(map[string]bool)

		for _, prefix := range prefixes {
			objects, err := src.List(ctx, prefix, job.Source.Recursive)
			if err != nil {
				if ctx.Err() != nil {
					yield(nil, ctx.Err())
					return
				}
				yield(nil, fmt.Errorf("%w: listing %q: %w", ErrSourceUnreachable, prefix, err))
				return
			}
			c.logger.Debug("listed prefix", "tenant", string(job.TenantID), "prefix", prefix, "objects", len(objects))

			for _, obj := range objects {
				if seen[obj.Key] {
					continue
				}
				seen[obj.Key] = true
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return
				}

				d, err := c.discover(ctx, job, src, obj)
				if err != nil {
					// Control-plane failure, not an object failure.
					yield(nil, err)
					return
				}
				if !yield(d, nil) {
					return
				}
			}
		}
	}
}

func (c *Crawler) discover(ctx context.Context, job *core.IngestionJob, src ObjectSource, obj ObjectInfo) (*Discovery, error) {
	logger := c.logger.With("tenant", string(job.TenantID), "key", obj.Key)

	if c.maxObjectSize > 0 && obj.Size > c.maxObjectSize {
		err := fmt.Errorf("%w: %d bytes", ErrObjectTooLarge, obj.Size)
		logger.Warn("skipping unreadable object", "err", err)
		return &Discovery{Outcome: OutcomeUnreadable, Key: obj.Key, Err: err}, nil
	}
	data, err := ReadObject(ctx, src, obj.Key, c.maxObjectSize)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("skipping unreadable object", "err", err)
		return &Discovery{Outcome: OutcomeUnreadable, Key: obj.Key, Err: err}, nil
	}
	hash := core.ContentHash(data)

	existing, err := c.files.GetSourceFile(ctx, job.TenantID, obj.Key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		existing = nil
	case err != nil:
		return nil, fmt.Errorf("loading source file %s: %w", obj.Key, err)
	}

	if existing != nil && existing.ContentHash == hash && existing.State == core.FileStateLoaded {
		return &Discovery{Outcome: OutcomeSkipped, Key: obj.Key, File: existing}, nil
	}
	if c.dedupByHash {
		dup, err := c.files.FindLoadedByHash(ctx, job.TenantID, hash)
		if err == nil && dup.ObjectKey != obj.Key {
			logger.Debug("identical content already loaded", "loaded_key", dup.ObjectKey)
			return &Discovery{Outcome: OutcomeSkipped, Key: obj.Key, File: dup}, nil
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("hash lookup for %s: %w", obj.Key, err)
		}
	}

	file := existing
	if file == nil {
		file = &core.SourceFile{
			TenantID:  job.TenantID,
			ObjectKey: obj.Key,
		}
	}
	// Changed or unfinished files start over; DocID keeps pointing at the
	// previously loaded document until a new one supersedes it.
	file.ContentHash = hash
	file.Size = int64(len(data))
	file.State = core.FileStateDiscovered
	file.Attempts = 0
	file.LastError = ""
	file.JobID = job.ID
	file.Degraded = false
	file.DeadLettered = false
	file.DiscoveredAt = time.Now()
	if err := c.files.SaveSourceFile(ctx, file); err != nil {
		return nil, fmt.Errorf("saving source file %s: %w", obj.Key, err)
	}
	return &Discovery{Outcome: OutcomeNew, Key: obj.Key, File: file, Data: data}, nil
}
