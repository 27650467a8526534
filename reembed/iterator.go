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

	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/storage"
)

// DefaultBatchSize is the number of chunks fetched per page.
const DefaultBatchSize = 100

// ChunkIterator pages through every chunk of one tenant's structured store.
type ChunkIterator struct {
	store     storage.StructuredStore
	batchSize int
}

// NewChunkIterator creates an iterator. A non-positive batchSize uses the default.
func NewChunkIterator(store storage.StructuredStore, batchSize int) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ChunkIterator{store: store, batchSize: batchSize}
}

// ForEach calls fn with each page of chunks in ID order. It stops at the
// first error from fn and checks ctx between pages.
func (it *ChunkIterator) ForEach(ctx context.Context, fn func([]*core.Chunk) error) error {
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := it.store.ListChunks(ctx, after, it.batchSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
		if len(page) < it.batchSize {
			return nil
		}
		after = page[len(page)-1].ID
	}
}
