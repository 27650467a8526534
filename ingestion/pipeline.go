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

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/poiesic/ingestor/chunk"
	"github.com/poiesic/ingestor/classify"
	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/crawler"
	"github.com/poiesic/ingestor/embed"
	"github.com/poiesic/ingestor/handler"
	"github.com/poiesic/ingestor/loader"
	"github.com/poiesic/ingestor/storage"
	"github.com/poiesic/ingestor/synth"
)

// Components are the collaborators an Orchestrator drives. Synthesizer is
// optional; without it unknown formats go straight to the best-effort handler.
type Components struct {
	Files       storage.SourceFileRepository
	Jobs        storage.JobRepository
	DeadLetters storage.DeadLetterRepository
	Crawler     *crawler.Crawler
	Registry    *handler.Registry
	Synthesizer *synth.Synthesizer
	Classifier  classify.Classifier
	Chunker     *chunk.Chunker
	Embedder    *embed.Client
	Loader      *loader.Loader
}

func (c *Components) validate() error {
	switch {
	case c.Files == nil:
		return fmt.Errorf("%w: source file repository", ErrMissingDependency)
	case c.Jobs == nil:
		return fmt.Errorf("%w: job repository", ErrMissingDependency)
	case c.DeadLetters == nil:
		return fmt.Errorf("%w: dead letter repository", ErrMissingDependency)
	case c.Crawler == nil:
		return fmt.Errorf("%w: crawler", ErrMissingDependency)
	case c.Registry == nil:
		return fmt.Errorf("%w: handler registry", ErrMissingDependency)
	case c.Classifier == nil:
		return fmt.Errorf("%w: classifier", ErrMissingDependency)
	case c.Chunker == nil:
		return fmt.Errorf("%w: chunker", ErrMissingDependency)
	case c.Embedder == nil:
		return fmt.Errorf("%w: embedding client", ErrMissingDependency)
	case c.Loader == nil:
		return fmt.Errorf("%w: loader", ErrMissingDependency)
	}
	return nil
}

// stage pairs a processor with the pool that runs it.
type stage struct {
	proc processor
	pool *ants.Pool
}

// Orchestrator runs ingestion jobs. Stage pools are shared by all jobs, so
// concurrent jobs of different tenants compete for the same workers.
type Orchestrator struct {
	components  Components
	config      *Config
	opener      crawler.Opener
	tracker     *fileTracker
	stages      []*stage
	logger      *slog.Logger
	restoreOnce sync.Map // tenant -> *sync.Once

	mu       sync.Mutex
	running  map[string]*jobRun
	released bool
	wg       sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithConfig replaces the default configuration.
func WithConfig(config *Config) Option {
	return func(o *Orchestrator) error {
		if config == nil {
			return errors.New("config cannot be nil")
		}
		if err := config.Validate(); err != nil {
			return err
		}
		o.config = config
		return nil
	}
}

// WithOpener sets how a job's SourceSpec becomes an object source.
// Default is crawler.DefaultOpener.
func WithOpener(opener crawler.Opener) Option {
	return func(o *Orchestrator) error {
		if opener == nil {
			return errors.New("opener cannot be nil")
		}
		o.opener = opener
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger.With("component", "ingestion")
		return nil
	}
}

// New creates an orchestrator over components.
func New(components Components, opts ...Option) (*Orchestrator, error) {
	if err := components.validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		components: components,
		config:     DefaultConfig(),
		opener:     crawler.DefaultOpener,
		logger:     slog.Default().With("component", "ingestion"),
		running:    make(map[string]*jobRun),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	o.tracker = &fileTracker{files: components.Files, logger: o.logger}

	procs := []struct {
		proc    processor
		workers int
	}{
		{&extractProcessor{
			registry: components.Registry,
			synth:    components.Synthesizer,
			tracker:  o.tracker,
			timeout:  o.config.StageTimeout,
			logger:   o.logger,
		}, o.config.CPUWorkers},
		{&classifyProcessor{classifier: components.Classifier, tracker: o.tracker}, o.config.NetworkWorkers},
		{&chunkProcessor{chunker: components.Chunker, tracker: o.tracker}, o.config.CPUWorkers},
		{&embedProcessor{
			client:       components.Embedder,
			allowPartial: o.config.AllowPartialLoad,
			tracker:      o.tracker,
			logger:       o.logger,
		}, o.config.NetworkWorkers},
		{&loadProcessor{loader: components.Loader, tracker: o.tracker}, o.config.NetworkWorkers},
	}
	for _, p := range procs {
		pool, err := ants.NewPool(p.workers)
		if err != nil {
			o.Release()
			return nil, err
		}
		o.stages = append(o.stages, &stage{proc: p.proc, pool: pool})
	}
	return o, nil
}

// StartJob creates a job crawling spec for tenant and runs it in the
// background. The returned job is a snapshot; poll JobStatus for progress.
//
// If the source cannot be opened the job is recorded as failed and the
// error, wrapping crawler.ErrSourceUnreachable, is returned with it.
func (o *Orchestrator) StartJob(ctx context.Context, tenant core.TenantID, spec core.SourceSpec) (*core.IngestionJob, error) {
	if err := core.ValidateTenantID(tenant); err != nil {
		return nil, err
	}
	now := time.Now()
	job := &core.IngestionJob{
		ID:        uuid.NewString(),
		TenantID:  tenant,
		Source:    spec,
		Status:    core.JobRunning,
		StartedAt: now,
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return nil, ErrReleased
	}

	src, err := o.opener(spec)
	if err != nil {
		err = fmt.Errorf("%w: %w", crawler.ErrSourceUnreachable, err)
		job.Status = core.JobFailed
		job.Error = err.Error()
		job.CompletedAt = now
		if serr := o.components.Jobs.SaveJob(ctx, job); serr != nil {
			return nil, serr
		}
		return job, err
	}
	if err := o.components.Jobs.SaveJob(ctx, job); err != nil {
		closeSource(src)
		return nil, err
	}
	o.restore(ctx, tenant)

	run := newJobRun(context.Background(), job, o.components.Jobs, o.logger)
	o.running[job.ID] = run
	o.wg.Add(1)
	go o.run(run, src)

	run.logger.Info("job started", "kind", spec.Kind, "root", spec.Root, "prefixes", spec.Prefixes)
	return run.snapshot(), nil
}

// restore loads the tenant's persisted synthesized handlers once per process.
func (o *Orchestrator) restore(ctx context.Context, tenant core.TenantID) {
	if o.components.Synthesizer == nil {
		return
	}
	once, _ := o.restoreOnce.LoadOrStore(tenant, &sync.Once{})
	once.(*sync.Once).Do(func() {
		n, err := o.components.Synthesizer.Restore(ctx, tenant)
		if err != nil {
			o.logger.Warn("restoring synthesized handlers failed", "tenant", string(tenant), "err", err)
			return
		}
		if n > 0 {
			o.logger.Info("restored synthesized handlers", "tenant", string(tenant), "handlers", n)
		}
	})
}

// JobStatus returns a snapshot of the job.
func (o *Orchestrator) JobStatus(ctx context.Context, id string) (*core.IngestionJob, error) {
	o.mu.Lock()
	run, ok := o.running[id]
	o.mu.Unlock()
	if ok {
		return run.snapshot(), nil
	}
	job, err := o.components.Jobs.GetJob(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, err
}

// ListJobs returns the tenant's jobs, newest first.
func (o *Orchestrator) ListJobs(ctx context.Context, tenant core.TenantID) ([]*core.IngestionJob, error) {
	if err := core.ValidateTenantID(tenant); err != nil {
		return nil, err
	}
	return o.components.Jobs.ListJobs(ctx, tenant)
}

// CancelJob asks a running job to stop. Cancelling a finished job is a no-op.
func (o *Orchestrator) CancelJob(ctx context.Context, id string) error {
	o.mu.Lock()
	run, ok := o.running[id]
	o.mu.Unlock()
	if ok {
		run.logger.Info("cancelling job")
		run.cancel()
		return nil
	}
	_, err := o.JobStatus(ctx, id)
	return err
}

// Wait blocks until the job finishes or ctx ends and returns its final state.
func (o *Orchestrator) Wait(ctx context.Context, id string) (*core.IngestionJob, error) {
	o.mu.Lock()
	run, ok := o.running[id]
	o.mu.Unlock()
	if ok {
		select {
		case <-run.done:
			return run.snapshot(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return o.JobStatus(ctx, id)
}

// Release cancels running jobs, waits for them to stop and frees the pools.
// The orchestrator cannot be used afterwards.
func (o *Orchestrator) Release() {
	o.mu.Lock()
	if o.released {
		o.mu.Unlock()
		return
	}
	o.released = true
	for _, run := range o.running {
		run.cancel()
	}
	o.mu.Unlock()

	o.wg.Wait()
	for _, s := range o.stages {
		s.pool.Release()
	}
}

// run drives one job: the crawl feeds the first stage and every stage
// closes its output once its input is drained and its workers are idle.
func (o *Orchestrator) run(r *jobRun, src crawler.ObjectSource) {
	defer o.wg.Done()
	defer closeSource(src)
	start := time.Now()

	var g errgroup.Group
	first := make(chan *workItem, o.config.QueueSize)
	g.Go(func() error {
		defer close(first)
		return o.crawl(r, src, first)
	})

	in := first
	for i, s := range o.stages {
		var out chan *workItem
		if i < len(o.stages)-1 {
			out = make(chan *workItem, o.config.QueueSize)
		}
		stageIn := in
		g.Go(func() error {
			o.dispatch(r, s, stageIn, out)
			return nil
		})
		in = out
	}
	err := g.Wait()

	switch {
	case err != nil:
		r.logger.Error("job failed", "err", err)
		r.finish(core.JobFailed, err.Error())
	case r.ctx.Err() != nil:
		r.logger.Info("job cancelled")
		r.finish(core.JobCancelled, "")
	default:
		r.finish(core.JobCompleted, "")
	}
	job := r.snapshot()
	r.logger.Info("job finished",
		"status", job.Status.String(),
		"discovered", job.Counts.Discovered,
		"skipped", job.Counts.Skipped,
		"loaded", job.Counts.Loaded,
		"dead_lettered", job.Counts.DeadLettered,
		"elapsed", time.Since(start))

	o.mu.Lock()
	delete(o.running, r.job.ID)
	o.mu.Unlock()
}

// crawl emits new files into out. Only a source failure is returned.
func (o *Orchestrator) crawl(r *jobRun, src crawler.ObjectSource, out chan<- *workItem) error {
	for d, err := range o.components.Crawler.Crawl(r.ctx, r.snapshot(), src) {
		if err != nil {
			if r.ctx.Err() != nil {
				return nil
			}
			return err
		}
		switch d.Outcome {
		case crawler.OutcomeSkipped:
			r.incr(discovered, skipped)
		case crawler.OutcomeUnreadable:
			r.incr(discovered, unreadable)
		case crawler.OutcomeNew:
			r.incr(discovered)
			select {
			case out <- &workItem{run: r, file: d.File, data: d.Data}:
			case <-r.ctx.Done():
				return nil
			}
		}
	}
	return nil
}

// dispatch feeds items from in to the stage pool. After cancellation it
// keeps draining in so upstream stages can finish.
func (o *Orchestrator) dispatch(r *jobRun, s *stage, in <-chan *workItem, out chan<- *workItem) {
	if out != nil {
		defer close(out)
	}
	var wg sync.WaitGroup
	for u := range in {
		if r.ctx.Err() != nil {
			continue
		}
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			o.work(r, s.proc, u, out)
		})
		if err != nil {
			wg.Done()
			r.logger.Error("submitting work failed", "stage", s.proc.name(), "key", u.file.ObjectKey, "err", err)
		}
	}
	wg.Wait()
}

// work runs one item through one stage and hands it to the next.
func (o *Orchestrator) work(r *jobRun, p processor, u *workItem, out chan<- *workItem) {
	if r.ctx.Err() != nil {
		return
	}
	if err := o.attempt(r, p, u); err != nil {
		if r.ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return
		}
		o.deadLetter(r, p, u, err)
		return
	}
	if out == nil {
		r.incr(loaded)
		return
	}
	select {
	case out <- u:
	case <-r.ctx.Done():
	}
}

// attempt runs p on u with exponential backoff. The stage itself runs
// detached from job cancellation so the current unit finishes; only the
// waits between attempts observe it.
func (o *Orchestrator) attempt(r *jobRun, p processor, u *workItem) error {
	ctx := context.WithoutCancel(r.ctx)
	failState := p.failState()
	return embed.RetryWithBackoff(r.ctx, func() error {
		err := p.process(ctx, u)
		if err == nil {
			return nil
		}
		u.file.Attempts++
		u.file.LastError = err.Error()
		if u.file.State.CanTransition(failState) {
			u.file.State = failState
		}
		if serr := o.tracker.save(ctx, u.file); serr != nil {
			r.logger.Error("recording failure failed", "key", u.file.ObjectKey, "err", serr)
		}
		if u.failed {
			r.incr(failedAttempts)
		} else {
			u.failed = true
			r.incr(failed, failedAttempts)
		}
		r.logger.Warn("stage failed",
			"stage", p.name(), "key", u.file.ObjectKey, "attempts", u.file.Attempts, "err", err)
		if isPermanent(err) {
			return embed.Permanent(err)
		}
		return err
	}, o.config.MaxAttempts, o.config.RetryBaseDelay, o.config.RetryMaxDelay)
}

// deadLetter parks a file that exhausted its attempts.
func (o *Orchestrator) deadLetter(r *jobRun, p processor, u *workItem, cause error) {
	ctx := context.WithoutCancel(r.ctx)
	u.file.DeadLettered = true
	u.file.LastError = cause.Error()
	if err := o.tracker.save(ctx, u.file); err != nil {
		r.logger.Error("saving dead-lettered file failed", "key", u.file.ObjectKey, "err", err)
	}
	letter := &core.DeadLetter{
		TenantID:     u.file.TenantID,
		JobID:        r.job.ID,
		SourceFileID: u.file.Id,
		ObjectKey:    u.file.ObjectKey,
		State:        u.file.State,
		Attempts:     u.file.Attempts,
		Error:        cause.Error(),
		At:           time.Now(),
	}
	if err := o.components.DeadLetters.AddDeadLetter(ctx, letter); err != nil {
		r.logger.Error("recording dead letter failed", "key", u.file.ObjectKey, "err", err)
	}
	r.incr(deadLettered)
	r.logger.Warn("file dead-lettered", "stage", p.name(), "key", u.file.ObjectKey, "state", u.file.State.String(), "err", cause)
}

func closeSource(src crawler.ObjectSource) {
	if c, ok := src.(io.Closer); ok {
		c.Close()
	}
}
