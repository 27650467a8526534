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

package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/storage"
)

// JobRepository implements storage.JobRepository using BadgerDB.
type JobRepository struct {
	backend *Backend
}

var _ storage.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates a job repository on the backend.
func NewJobRepository(backend *Backend) (storage.JobRepository, error) {
	if backend == nil {
		return nil, errors.New("backend required")
	}
	return &JobRepository{backend: backend}, nil
}

// SaveJob inserts or replaces a job and its tenant index entry.
func (r *JobRepository) SaveJob(ctx context.Context, job *core.IngestionJob) error {
	if job == nil || job.ID == "" {
		return errors.New("job id required")
	}
	if err := core.ValidateTenantID(job.TenantID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	job.UpdatedAt = time.Now().UTC()
	if job.StartedAt.IsZero() {
		job.StartedAt = job.UpdatedAt
	}

	return r.backend.update(func(tx *badger.Txn) error {
		if err := tx.Set(makeJobKey(job.ID), storage.MarshalJob(job)); err != nil {
			return err
		}
		return tx.Set(makeJobTenantKey(job.TenantID, job.StartedAt, job.ID), []byte(job.ID))
	})
}

// GetJob retrieves a job by ID.
func (r *JobRepository) GetJob(ctx context.Context, id string) (*core.IngestionJob, error) {
	var job *core.IngestionJob
	err := r.backend.view(func(tx *badger.Txn) error {
		var err error
		job, err = get(tx, makeJobKey(id), storage.UnmarshalJob)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns the tenant's jobs, newest first.
func (r *JobRepository) ListJobs(ctx context.Context, tenant core.TenantID) ([]*core.IngestionJob, error) {
	var jobs []*core.IngestionJob
	err := r.backend.view(func(tx *badger.Txn) error {
		var ids []string
		err := scan(ctx, tx, makeJobTenantPrefix(tenant), func(val []byte) (string, error) {
			return string(val), nil
		}, func(id string) error {
			ids = append(ids, id)
			return nil
		})
		if err != nil {
			return err
		}
		for _, id := range ids {
			job, err := get(tx, makeJobKey(id), storage.UnmarshalJob)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return nil
	})
	return jobs, err
}

// Close is a no-op; the backend owns the database handle.
func (r *JobRepository) Close() error {
	return nil
}
