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
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/storage"
)

// jobRun is the in-memory side of a running job. Counts are mutated under
// mu and every change is persisted so status reads survive a restart.
type jobRun struct {
	mu     sync.Mutex
	job    *core.IngestionJob
	jobs   storage.JobRepository
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newJobRun(ctx context.Context, job *core.IngestionJob, jobs storage.JobRepository, logger *slog.Logger) *jobRun {
	ctx, cancel := context.WithCancel(ctx)
	return &jobRun{
		job:    job,
		jobs:   jobs,
		logger: logger.With("job_id", job.ID, "tenant", string(job.TenantID)),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// update applies fn to the job and persists the result.
func (r *jobRun) update(fn func(job *core.IngestionJob)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.job)
	if err := r.jobs.SaveJob(context.WithoutCancel(r.ctx), r.job); err != nil {
		r.logger.Error("saving job failed", "err", err)
	}
}

// counter picks one field of JobCounts.
type counter func(c *core.JobCounts) *int

// incr adds one to every counter in a single persisted update.
func (r *jobRun) incr(counters ...counter) {
	r.update(func(job *core.IngestionJob) {
		for _, field := range counters {
			*field(&job.Counts)++
		}
	})
}

// snapshot returns a copy of the job safe to hand to callers.
func (r *jobRun) snapshot() *core.IngestionJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.job
	cp.Source.Prefixes = append([]string(nil), r.job.Source.Prefixes...)
	return &cp
}

// finish records the final status and releases waiters.
func (r *jobRun) finish(status core.JobStatus, errMsg string) {
	r.update(func(job *core.IngestionJob) {
		job.Status = status
		job.Error = errMsg
		job.CompletedAt = time.Now()
	})
	r.cancel()
	close(r.done)
}

func discovered(c *core.JobCounts) *int     { return &c.Discovered }
func skipped(c *core.JobCounts) *int        { return &c.Skipped }
func unreadable(c *core.JobCounts) *int     { return &c.Unreadable }
func extracted(c *core.JobCounts) *int      { return &c.Extracted }
func degraded(c *core.JobCounts) *int       { return &c.Degraded }
func failed(c *core.JobCounts) *int         { return &c.Failed }
func failedAttempts(c *core.JobCounts) *int { return &c.FailedAttempts }
func loaded(c *core.JobCounts) *int         { return &c.Loaded }
func deadLettered(c *core.JobCounts) *int   { return &c.DeadLettered }
