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
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/storage"
)

// HandlerRepository implements storage.HandlerRepository using BadgerDB.
type HandlerRepository struct {
	backend *Backend
}

var _ storage.HandlerRepository = (*HandlerRepository)(nil)

// NewHandlerRepository creates a handler repository on the backend.
func NewHandlerRepository(backend *Backend) (storage.HandlerRepository, error) {
	if backend == nil {
		return nil, errors.New("backend required")
	}
	return &HandlerRepository{backend: backend}, nil
}

// SaveHandler inserts or replaces the record for (tenant, signature).
func (r *HandlerRepository) SaveHandler(ctx context.Context, record *core.HandlerRecord) error {
	if record == nil || record.Signature == "" {
		return fmt.Errorf("%w: handler signature required", storage.ErrInvalidQuery)
	}
	if err := core.ValidateTenantID(record.TenantID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	record.UpdatedAt = time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = record.UpdatedAt
	}
	return r.backend.update(func(tx *badger.Txn) error {
		return tx.Set(makeHandlerKey(record.TenantID, record.Signature), storage.MarshalHandler(record))
	})
}

// GetHandler returns the record for (tenant, signature).
func (r *HandlerRepository) GetHandler(ctx context.Context, tenant core.TenantID, signature string) (*core.HandlerRecord, error) {
	var record *core.HandlerRecord
	err := r.backend.view(func(tx *badger.Txn) error {
		var err error
		record, err = get(tx, makeHandlerKey(tenant, signature), storage.UnmarshalHandler)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListHandlers returns all records for the tenant ordered by signature.
func (r *HandlerRepository) ListHandlers(ctx context.Context, tenant core.TenantID) ([]*core.HandlerRecord, error) {
	var records []*core.HandlerRecord
	err := r.backend.view(func(tx *badger.Txn) error {
		return scan(ctx, tx, makeHandlerTenantPrefix(tenant), storage.UnmarshalHandler, func(h *core.HandlerRecord) error {
			records = append(records, h)
			return nil
		})
	})
	return records, err
}

// Close is a no-op; the backend owns the database handle.
func (r *HandlerRepository) Close() error {
	return nil
}
