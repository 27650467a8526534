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

// DeadLetterRepository implements storage.DeadLetterRepository using BadgerDB.
type DeadLetterRepository struct {
	backend *Backend
}

var _ storage.DeadLetterRepository = (*DeadLetterRepository)(nil)

// NewDeadLetterRepository creates a dead letter repository on the backend.
func NewDeadLetterRepository(backend *Backend) (storage.DeadLetterRepository, error) {
	if backend == nil {
		return nil, errors.New("backend required")
	}
	return &DeadLetterRepository{backend: backend}, nil
}

// AddDeadLetter appends a dead letter. Sets At if unset.
func (r *DeadLetterRepository) AddDeadLetter(ctx context.Context, letter *core.DeadLetter) error {
	if err := core.ValidateTenantID(letter.TenantID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if letter.At.IsZero() {
		letter.At = time.Now().UTC()
	}
	return r.backend.update(func(tx *badger.Txn) error {
		return tx.Set(makeDeadLetterKey(letter.TenantID, letter.At, letter.SourceFileID), storage.MarshalDeadLetter(letter))
	})
}

// ListDeadLetters returns the tenant's dead letters, oldest first.
func (r *DeadLetterRepository) ListDeadLetters(ctx context.Context, tenant core.TenantID) ([]*core.DeadLetter, error) {
	var letters []*core.DeadLetter
	err := r.backend.view(func(tx *badger.Txn) error {
		return scan(ctx, tx, makeDeadLetterTenantPrefix(tenant), storage.UnmarshalDeadLetter, func(d *core.DeadLetter) error {
			letters = append(letters, d)
			return nil
		})
	})
	return letters, err
}

// Close is a no-op; the backend owns the database handle.
func (r *DeadLetterRepository) Close() error {
	return nil
}
