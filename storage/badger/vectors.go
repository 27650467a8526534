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
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ingestor/storage"
)

// vectorDimKey stores the dimension fixed by the first upsert.
var vectorDimKey = []byte("vecdim")

// VectorIndex implements storage.VectorIndex with a brute-force scan over
// normalized vectors stored in BadgerDB. One index serves one tenant.
type VectorIndex struct {
	backend *Backend
	owned   bool
}

var _ storage.VectorIndex = (*VectorIndex)(nil)

// NewVectorIndex creates a vector index on an existing backend.
// The caller keeps ownership of the backend.
func NewVectorIndex(backend *Backend) (storage.VectorIndex, error) {
	if backend == nil {
		return nil, errors.New("backend required")
	}
	return &VectorIndex{backend: backend}, nil
}

// OpenVectorIndex opens a vector index with its own database at path.
// Closing the index closes the database.
func OpenVectorIndex(path string, inMemory bool) (storage.VectorIndex, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}
	return &VectorIndex{backend: backend, owned: true}, nil
}

// Upsert inserts or replaces vectors keyed by chunk ID.
func (v *VectorIndex) Upsert(ctx context.Context, entries []storage.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return v.backend.update(func(tx *badger.Txn) error {
		dim, err := get(tx, vectorDimKey, func(val []byte) (int, error) {
			return int(binary.BigEndian.Uint32(val)), nil
		})
		if errors.Is(err, storage.ErrNotFound) {
			dim = len(entries[0].Vector)
			if err := tx.Set(vectorDimKey, binary.BigEndian.AppendUint32(nil, uint32(dim))); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		for i := range entries {
			e := &entries[i]
			if len(e.Vector) != dim {
				return fmt.Errorf("%w: chunk %s has %d, index has %d", storage.ErrDimensionMismatch, e.ChunkID, len(e.Vector), dim)
			}
			if err := tx.Set(makeVectorKey(e.ChunkID), storage.MarshalVectorEntry(e)); err != nil {
				return err
			}
			if err := tx.Set(makeVectorDocKey(e.DocID, e.ChunkID), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteDocument removes every vector belonging to the document.
func (v *VectorIndex) DeleteDocument(ctx context.Context, docID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prefix := makeVectorDocPrefix(docID)
	return v.backend.update(func(tx *badger.Txn) error {
		for _, key := range scanKeys(tx, prefix) {
			chunkID := string(key[len(prefix):])
			if err := tx.Delete(makeVectorKey(chunkID)); err != nil {
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Search scores every stored vector by dot product and returns the best matches.
func (v *VectorIndex) Search(ctx context.Context, vector []float32, filter storage.VectorFilter, limit int) ([]storage.VectorMatch, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}

	var results []storage.VectorMatch
	err := v.backend.view(func(tx *badger.Txn) error {
		return scan(ctx, tx, []byte(vectorPrefix+":"), storage.UnmarshalVectorEntry, func(e *storage.VectorEntry) error {
			if len(filter.Categories) > 0 && !slices.Contains(filter.Categories, e.Category) {
				return nil
			}
			// Cosine similarity (dot product for normalized vectors)
			score := dotProduct(vector, e.Vector)
			if score < filter.MinScore {
				return nil
			}
			results = append(results, storage.VectorMatch{
				ChunkID:  e.ChunkID,
				DocID:    e.DocID,
				Category: e.Category,
				Score:    score,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortFunc(results, func(a, b storage.VectorMatch) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Count returns the number of stored vectors.
func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	count := 0
	err := v.backend.view(func(tx *badger.Txn) error {
		count = len(scanKeys(tx, []byte(vectorPrefix+":")))
		return ctx.Err()
	})
	return count, err
}

// Close closes the database if the index owns it.
func (v *VectorIndex) Close() error {
	if v.owned {
		return v.backend.Close()
	}
	return nil
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
