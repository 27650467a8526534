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
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/storage"
)

// SourceFileRepository implements storage.SourceFileRepository using BadgerDB.
//
// Alongside each file it maintains a content hash index that points at the
// object key of the file most recently loaded with that hash.
type SourceFileRepository struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.SourceFileRepository = (*SourceFileRepository)(nil)

// NewSourceFileRepository creates a source file repository on the backend.
func NewSourceFileRepository(backend *Backend) (storage.SourceFileRepository, error) {
	return newSourceFileRepository(backend)
}

func newSourceFileRepository(backend *Backend) (*SourceFileRepository, error) {
	if backend == nil {
		return nil, errors.New("backend required")
	}
	return &SourceFileRepository{
		backend: backend,
		logger:  backend.logger.With("repository", "source_files"),
	}, nil
}

// SaveSourceFile inserts or replaces a source file.
func (r *SourceFileRepository) SaveSourceFile(ctx context.Context, file *core.SourceFile) error {
	if err := core.ValidateSourceFile(file); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if file.Id == 0 {
		file.Id = core.SourceFileID(file.TenantID, file.ObjectKey)
	}
	file.UpdatedAt = time.Now().UTC()
	if file.DiscoveredAt.IsZero() {
		file.DiscoveredAt = file.UpdatedAt
	}

	return r.backend.update(func(tx *badger.Txn) error {
		if err := tx.Set(makeSourceFileKey(file.TenantID, file.ObjectKey), storage.MarshalSourceFile(file)); err != nil {
			return err
		}
		if file.State == core.FileStateLoaded {
			return tx.Set(makeSourceHashKey(file.TenantID, file.ContentHash), []byte(file.ObjectKey))
		}
		return nil
	})
}

// GetSourceFile retrieves a source file by tenant and object key.
func (r *SourceFileRepository) GetSourceFile(ctx context.Context, tenant core.TenantID, objectKey string) (*core.SourceFile, error) {
	var file *core.SourceFile
	err := r.backend.view(func(tx *badger.Txn) error {
		var err error
		file, err = get(tx, makeSourceFileKey(tenant, objectKey), storage.UnmarshalSourceFile)
		return err
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

// FindLoadedByHash resolves the hash index and confirms the file it points
// to is still loaded with that content.
func (r *SourceFileRepository) FindLoadedByHash(ctx context.Context, tenant core.TenantID, hash string) (*core.SourceFile, error) {
	var file *core.SourceFile
	err := r.backend.view(func(tx *badger.Txn) error {
		objectKey, err := get(tx, makeSourceHashKey(tenant, hash), func(val []byte) (string, error) {
			return string(val), nil
		})
		if err != nil {
			return err
		}
		candidate, err := get(tx, makeSourceFileKey(tenant, objectKey), storage.UnmarshalSourceFile)
		if err != nil {
			return err
		}
		if candidate.State != core.FileStateLoaded || candidate.ContentHash != hash {
			return storage.ErrNotFound
		}
		file = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

// ListSourceFiles returns every source file of the tenant ordered by object key.
func (r *SourceFileRepository) ListSourceFiles(ctx context.Context, tenant core.TenantID) ([]*core.SourceFile, error) {
	var files []*core.SourceFile
	err := r.backend.view(func(tx *badger.Txn) error {
		return scan(ctx, tx, makeSourceFileTenantPrefix(tenant), storage.UnmarshalSourceFile, func(f *core.SourceFile) error {
			files = append(files, f)
			return nil
		})
	})
	return files, err
}

// Close is a no-op; the backend owns the database handle.
func (r *SourceFileRepository) Close() error {
	return nil
}
