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
	"fmt"

	"github.com/poiesic/ingestor/ai"
	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/embed"
	"github.com/poiesic/ingestor/storage"
)

// BatchProcessor re-embeds pages of chunks for one tenant.
type BatchProcessor struct {
	store      *storage.TenantStore
	client     *embed.Client
	categories map[string]core.Category
}

// NewBatchProcessor creates a processor writing into store.
func NewBatchProcessor(store *storage.TenantStore, client *embed.Client) *BatchProcessor {
	return &BatchProcessor{
		store:      store,
		client:     client,
		categories: make(map[string]core.Category),
	}
}

// Process embeds chunks and replaces their vectors. Chunks the embedding
// service could not encode are marked failed and keep their previous
// vector. It returns how many chunks were re-embedded and how many failed.
func (bp *BatchProcessor) Process(ctx context.Context, chunks []*core.Chunk) (int, int, error) {
	if len(chunks) == 0 {
		return 0, 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	res, err := bp.client.Embed(ctx, texts, ai.EmbedDocument)
	if err != nil {
		return 0, 0, err
	}

	entries := make([]storage.VectorEntry, 0, len(chunks))
	var embedded, failed []string
	for i, c := range chunks {
		if res.Failed[i] {
			failed = append(failed, c.ID)
			continue
		}
		category, err := bp.category(ctx, c.DocID)
		if err != nil {
			return 0, 0, err
		}
		entries = append(entries, storage.VectorEntry{
			ChunkID:  c.ID,
			DocID:    c.DocID,
			Category: category,
			Vector:   res.Vectors[i],
		})
		embedded = append(embedded, c.ID)
	}

	if len(entries) > 0 {
		if err := bp.store.Vectors.Upsert(ctx, entries); err != nil {
			return 0, 0, fmt.Errorf("writing vectors: %w", err)
		}
	}
	if err := bp.store.Structured.SetChunkStatus(ctx, core.ChunkEmbedded, embedded...); err != nil {
		return 0, 0, err
	}
	if err := bp.store.Structured.SetChunkStatus(ctx, core.ChunkEmbeddingFailed, failed...); err != nil {
		return 0, 0, err
	}
	return len(embedded), len(failed), nil
}

// category returns the document's category, which vectors carry for filtering.
func (bp *BatchProcessor) category(ctx context.Context, docID string) (core.Category, error) {
	if c, ok := bp.categories[docID]; ok {
		return c, nil
	}
	doc, err := bp.store.Structured.GetDocument(ctx, docID)
	if err != nil {
		return "", fmt.Errorf("looking up document %s: %w", docID, err)
	}
	bp.categories[docID] = doc.Classification.Category
	return doc.Classification.Category, nil
}
