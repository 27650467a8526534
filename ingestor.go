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

package ingestor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/poiesic/ingestor/ai"
	"github.com/poiesic/ingestor/ai/openai"
	"github.com/poiesic/ingestor/chunk"
	"github.com/poiesic/ingestor/classify"
	"github.com/poiesic/ingestor/config"
	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/crawler"
	"github.com/poiesic/ingestor/embed"
	"github.com/poiesic/ingestor/handler"
	"github.com/poiesic/ingestor/ingestion"
	"github.com/poiesic/ingestor/loader"
	"github.com/poiesic/ingestor/reembed"
	"github.com/poiesic/ingestor/search"
	"github.com/poiesic/ingestor/storage"
	"github.com/poiesic/ingestor/storage/badger"
	"github.com/poiesic/ingestor/storage/tenants"
	"github.com/poiesic/ingestor/synth"
)

// Engine owns the stores, models and pipeline of one ingestor instance.
type Engine struct {
	config       *config.File
	repos        *badger.Repositories
	tenants      *tenants.Provisioner
	pool         *pgxpool.Pool
	provider     ai.AIProvider
	ownsProvider bool
	registry     *handler.Registry
	embedder     *embed.Client
	orchestrator *ingestion.Orchestrator
	searcher     *search.Searcher
	logger       *slog.Logger
	closed       atomic.Bool
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	provider ai.AIProvider
	opener   crawler.Opener
	inMemory bool
	logger   *slog.Logger
	builtins []handler.Option
}

// WithProvider uses provider instead of building the OpenAI-compatible one
// from configuration. The Engine does not close an injected provider.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithOpener replaces the source opener, for object stores other than the
// local filesystem.
func WithOpener(opener crawler.Opener) Option {
	return func(o *engineOptions) {
		o.opener = opener
	}
}

// WithInMemory keeps every badger store in memory. Tenant SQLite files are
// still written under the data directory.
func WithInMemory() Option {
	return func(o *engineOptions) {
		o.inMemory = true
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithBuiltinHandler registers or replaces a built-in handler for signatures.
func WithBuiltinHandler(h handler.Handler, signatures ...string) Option {
	return func(o *engineOptions) {
		o.builtins = append(o.builtins, handler.WithBuiltin(h, signatures...))
	}
}

// Open builds an Engine from cfg.
func Open(ctx context.Context, cfg *config.File, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := &engineOptions{opener: crawler.DefaultOpener, logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	e := &Engine{config: cfg, logger: options.logger.With("component", "engine")}
	if err := e.open(ctx, options); err != nil {
		e.release()
		return nil, err
	}
	return e, nil
}

func (e *Engine) open(ctx context.Context, options *engineOptions) error {
	cfg := e.config
	var err error

	e.repos, err = badger.OpenRepositories(filepath.Join(cfg.DataDir, "control"), options.inMemory)
	if err != nil {
		return fmt.Errorf("opening control store: %w", err)
	}

	factory := tenants.BadgerVectors(options.inMemory)
	if cfg.Vectors.Backend == config.BackendPgvector {
		e.pool, err = pgxpool.New(ctx, cfg.Vectors.PostgresURL)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		factory = tenants.PgvectorVectors(e.pool)
	}
	e.tenants, err = tenants.New(filepath.Join(cfg.DataDir, "tenants"), tenants.WithVectorIndexFactory(factory))
	if err != nil {
		return fmt.Errorf("opening tenant stores: %w", err)
	}

	e.provider = options.provider
	if e.provider == nil {
		e.provider, err = openai.NewProvider(cfg.AIConfig())
		if err != nil {
			return fmt.Errorf("creating AI provider: %w", err)
		}
		e.ownsProvider = true
	}

	handlerOpts := append([]handler.Option{
		handler.WithImageTranscriber(e.provider.ImageTranscriber()),
		handler.WithLogger(options.logger),
	}, options.builtins...)
	e.registry, err = handler.NewRegistry(handlerOpts...)
	if err != nil {
		return err
	}

	synthesizer, err := synth.New(e.provider.CodeGenerator(), e.repos.Handlers, e.registry,
		synth.WithConfig(cfg.SynthConfig()), synth.WithLogger(options.logger))
	if err != nil {
		return err
	}

	crawl, err := crawler.New(e.repos.SourceFiles,
		crawler.WithMaxObjectSize(cfg.Crawler.MaxObjectSize),
		crawler.WithHashDedup(cfg.Crawler.HashDedup),
		crawler.WithLogger(options.logger))
	if err != nil {
		return err
	}

	classifier, err := classify.New(cfg.ClassifyConfig(), e.provider.CategoryModel(), options.logger)
	if err != nil {
		return err
	}

	chunker, err := chunk.New(cfg.ChunkConfig())
	if err != nil {
		return err
	}

	e.embedder, err = embed.New(e.provider.Embedder(), cfg.EmbedConfig(), embed.WithLogger(options.logger))
	if err != nil {
		return err
	}

	load, err := loader.New(e.tenants,
		loader.WithAllowPartialLoad(cfg.Pipeline.AllowPartialLoad),
		loader.WithLogger(options.logger))
	if err != nil {
		return err
	}

	e.orchestrator, err = ingestion.New(ingestion.Components{
		Files:       e.repos.SourceFiles,
		Jobs:        e.repos.Jobs,
		DeadLetters: e.repos.DeadLetters,
		Crawler:     crawl,
		Registry:    e.registry,
		Synthesizer: synthesizer,
		Classifier:  classifier,
		Chunker:     chunker,
		Embedder:    e.embedder,
		Loader:      load,
	},
		ingestion.WithConfig(cfg.PipelineConfig()),
		ingestion.WithOpener(options.opener),
		ingestion.WithLogger(options.logger))
	if err != nil {
		return err
	}

	e.searcher, err = search.NewSearcher(e.tenants, e.embedder, search.WithLogger(options.logger))
	return err
}

// StartJob begins ingesting spec for tenant and returns immediately.
func (e *Engine) StartJob(ctx context.Context, tenant core.TenantID, spec core.SourceSpec) (*core.IngestionJob, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	return e.orchestrator.StartJob(ctx, tenant, spec)
}

// JobStatus returns a snapshot of a job.
func (e *Engine) JobStatus(ctx context.Context, id string) (*core.IngestionJob, error) {
	return e.orchestrator.JobStatus(ctx, id)
}

// ListJobs returns the tenant's jobs.
func (e *Engine) ListJobs(ctx context.Context, tenant core.TenantID) ([]*core.IngestionJob, error) {
	return e.orchestrator.ListJobs(ctx, tenant)
}

// CancelJob stops a running job. Files in flight stay resumable.
func (e *Engine) CancelJob(ctx context.Context, id string) error {
	return e.orchestrator.CancelJob(ctx, id)
}

// Wait blocks until the job finishes or ctx ends.
func (e *Engine) Wait(ctx context.Context, id string) (*core.IngestionJob, error) {
	return e.orchestrator.Wait(ctx, id)
}

// Search runs a similarity query within one tenant.
func (e *Engine) Search(ctx context.Context, q search.Query) ([]*core.SearchResult, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	return e.searcher.FindSimilar(ctx, q)
}

// Handlers returns the tenant's synthesized handler records.
func (e *Engine) Handlers(ctx context.Context, tenant core.TenantID) ([]*core.HandlerRecord, error) {
	if err := core.ValidateTenantID(tenant); err != nil {
		return nil, err
	}
	return e.repos.Handlers.ListHandlers(ctx, tenant)
}

// BuiltinSignatures returns the format signatures handled without synthesis.
func (e *Engine) BuiltinSignatures() []string {
	return e.registry.BuiltinSignatures()
}

// DeadLetters returns the tenant's files that exhausted their retries.
func (e *Engine) DeadLetters(ctx context.Context, tenant core.TenantID) ([]*core.DeadLetter, error) {
	if err := core.ValidateTenantID(tenant); err != nil {
		return nil, err
	}
	return e.repos.DeadLetters.ListDeadLetters(ctx, tenant)
}

// Tenants lists tenants that have stores on disk.
func (e *Engine) Tenants() ([]core.TenantID, error) {
	return e.tenants.Tenants()
}

// Stats returns document and chunk counts for a tenant.
func (e *Engine) Stats(ctx context.Context, tenant core.TenantID) (documents, chunks int, err error) {
	if err := core.ValidateTenantID(tenant); err != nil {
		return 0, 0, err
	}
	store, err := e.tenants.Lookup(ctx, tenant)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	if documents, err = store.Structured.CountDocuments(ctx); err != nil {
		return 0, 0, err
	}
	chunks, err = store.Structured.CountChunks(ctx)
	return documents, chunks, err
}

// Reembed re-encodes every chunk of tenant with the current embedding
// model, reporting progress to w.
func (e *Engine) Reembed(ctx context.Context, tenant core.TenantID, w io.Writer, cfg *reembed.Config) (*reembed.Summary, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	r, err := reembed.NewReembedder(e.tenants, e.embedder, cfg, w)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, tenant)
}

// Watch ingests spec once and again whenever its directory changes, until
// ctx ends. Each run finishes before the next starts.
func (e *Engine) Watch(ctx context.Context, tenant core.TenantID, spec core.SourceSpec) error {
	if spec.Kind != "" && spec.Kind != "fs" {
		return fmt.Errorf("%w: kind %q", ErrWatchUnsupported, spec.Kind)
	}
	run := func(ctx context.Context) error {
		job, err := e.StartJob(ctx, tenant, spec)
		if err != nil {
			return err
		}
		job, err = e.Wait(ctx, job.ID)
		if err != nil {
			return err
		}
		e.logger.Info("watch run finished",
			"tenant", string(tenant),
			"job_id", job.ID,
			"status", job.Status.String(),
			"loaded", job.Counts.Loaded,
			"skipped", job.Counts.Skipped)
		return nil
	}
	if err := run(ctx); err != nil {
		return err
	}
	return crawler.NewWatcher(spec.Root, e.config.Crawler.WatchDebounce.Std()).Run(ctx, run)
}

// Close stops running jobs and releases every store and client.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return e.release()
}

func (e *Engine) release() error {
	var errs []error
	if e.orchestrator != nil {
		e.orchestrator.Release()
	}
	if e.provider != nil && e.ownsProvider {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if e.tenants != nil {
		if err := e.tenants.Close(); err != nil {
			e.logger.Error("error closing tenant stores", "err", err)
			errs = append(errs, err)
		}
	}
	if e.pool != nil {
		e.pool.Close()
	}
	if e.repos != nil {
		if err := e.repos.Close(); err != nil {
			e.logger.Error("error closing control store", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
