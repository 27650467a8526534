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

package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/storage"
)

// documentsTable names the lock shared by a tenant's document rows and
// the vectors that mirror them.
const documentsTable = "documents"

// Request is one document ready to be loaded.
type Request struct {
	Document       *core.ExtractedDocument
	Classification core.Classification

	// Chunks carry their vectors. A chunk with Status ChunkEmbeddingFailed
	// or no vector has no embedding.
	Chunks []*core.Chunk
}

// Result describes a committed load.
type Result struct {
	DocID         string
	Chunks        int      // Chunk rows written to the structured store
	Vectors       int      // Vectors upserted
	MissingVector int      // Chunks stored without a vector under the partial policy
	Superseded    []string // Older documents of the same source that were removed
}

// Loader commits documents to a tenant's pair of stores.
type Loader struct {
	tenants      storage.TenantProvider
	locks        *keyedMutex
	allowPartial bool
	logger       *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader) error

// WithAllowPartialLoad lets a document load when some of its chunks failed
// to embed. Those chunks are kept in the structured store with status
// embedding_failed and are left out of the vector index.
func WithAllowPartialLoad(allow bool) Option {
	return func(l *Loader) error {
		l.allowPartial = allow
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) error {
		if logger != nil {
			l.logger = logger.With("component", "loader")
		}
		return nil
	}
}

// New creates a loader over tenants.
func New(tenants storage.TenantProvider, opts ...Option) (*Loader, error) {
	if tenants == nil {
		return nil, ErrProviderRequired
	}
	l := &Loader{
		tenants: tenants,
		locks:   newKeyedMutex(),
		logger:  slog.Default().With("component", "loader"),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Load writes req into its tenant's stores. On any error nothing of the new
// document remains visible and the returned error wraps ErrLoadFailed.
func (l *Loader) Load(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || req.Document == nil {
		return nil, fmt.Errorf("%w: nil document", ErrLoadFailed)
	}
	doc := req.Document
	if err := core.ValidateTenantID(doc.TenantID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	if doc.DocID == "" {
		return nil, fmt.Errorf("%w: document id required", ErrLoadFailed)
	}

	embedded, missing, err := l.checkChunks(doc, req.Chunks)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	if missing > 0 && !l.allowPartial {
		return nil, fmt.Errorf("%w: %w: %d of %d chunks", ErrLoadFailed, ErrIncompleteEmbedding, missing, len(req.Chunks))
	}

	store, err := l.tenants.Open(ctx, doc.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: opening stores: %w", ErrLoadFailed, err)
	}

	unlock := l.locks.Lock(string(doc.TenantID) + "/" + documentsTable)
	defer unlock()

	logger := l.logger.With("tenant", string(doc.TenantID), "doc_id", doc.DocID, "key", doc.ObjectKey)
	start := time.Now()

	record := &core.DocumentRecord{
		DocID:          doc.DocID,
		TenantID:       doc.TenantID,
		SourceFileID:   doc.SourceFileID,
		ObjectKey:      doc.ObjectKey,
		ContentHash:    doc.ContentHash,
		Signature:      doc.Signature,
		Title:          doc.Title,
		ContentType:    doc.ContentType,
		Classification: req.Classification,
		Degraded:       doc.Degraded,
		Metadata:       doc.Metadata,
	}
	// Rows left by an earlier attempt whose compensation failed would
	// collide with the insert.
	if err := store.Structured.DeleteDocument(ctx, doc.DocID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: clearing earlier attempt: %w", ErrLoadFailed, err)
	}
	if err := store.Structured.InsertDocument(ctx, record, req.Chunks); err != nil {
		return nil, fmt.Errorf("%w: structured write: %w", ErrLoadFailed, err)
	}

	if len(embedded) > 0 {
		if err := store.Vectors.Upsert(ctx, entries(doc.DocID, req.Classification.Category, embedded)); err != nil {
			// Compensation must run even when the job is being cancelled.
			cleanup := context.WithoutCancel(ctx)
			if derr := store.Structured.DeleteDocument(cleanup, doc.DocID); derr != nil {
				logger.Error("compensating delete failed", "err", derr)
				return nil, fmt.Errorf("%w: vector upsert: %w (compensation: %w)", ErrLoadFailed, err, derr)
			}
			// Vectors of a partially applied upsert are removed as well.
			if derr := store.Vectors.DeleteDocument(cleanup, doc.DocID); derr != nil {
				logger.Warn("removing partial vectors failed", "err", derr)
			}
			logger.Warn("vector upsert failed, structured rows compensated", "err", err)
			return nil, fmt.Errorf("%w: vector upsert: %w", ErrLoadFailed, err)
		}
	}

	result := &Result{
		DocID:         doc.DocID,
		Chunks:        len(req.Chunks),
		Vectors:       len(embedded),
		MissingVector: missing,
	}
	result.Superseded = l.supersede(context.WithoutCancel(ctx), store, doc, logger)

	logger.Debug("document loaded",
		"chunks", result.Chunks,
		"vectors", result.Vectors,
		"missing", result.MissingVector,
		"superseded", len(result.Superseded),
		"elapsed", time.Since(start))
	return result, nil
}

// checkChunks validates ownership and spans, normalizes chunk status and
// returns the chunks that have vectors.
func (l *Loader) checkChunks(doc *core.ExtractedDocument, chunks []*core.Chunk) ([]*core.Chunk, int, error) {
	var embedded []*core.Chunk
	missing := 0
	dim := -1
	for _, c := range chunks {
		if c.TenantID != doc.TenantID {
			return nil, 0, fmt.Errorf("%w: chunk %s of %q", storage.ErrTenantMismatch, c.ID, c.TenantID)
		}
		if c.DocID != doc.DocID {
			return nil, 0, fmt.Errorf("%w: chunk %s belongs to %s", core.ErrInvalidChunk, c.ID, c.DocID)
		}
		if err := core.ValidateChunk(c, doc.Text); err != nil {
			return nil, 0, err
		}
		if c.Status == core.ChunkEmbeddingFailed || len(c.Vector) == 0 {
			c.Status = core.ChunkEmbeddingFailed
			missing++
			continue
		}
		if dim >= 0 && len(c.Vector) != dim {
			return nil, 0, fmt.Errorf("%w: chunk %s has %d, expected %d", storage.ErrDimensionMismatch, c.ID, len(c.Vector), dim)
		}
		dim = len(c.Vector)
		c.Status = core.ChunkEmbedded
		embedded = append(embedded, c)
	}
	return embedded, missing, nil
}

// supersede removes documents previously loaded from the same source file.
// Failures leave a stale document behind but do not undo the new load.
func (l *Loader) supersede(ctx context.Context, store *storage.TenantStore, doc *core.ExtractedDocument, logger *slog.Logger) []string {
	ids, err := store.Structured.DocumentsForSource(ctx, doc.SourceFileID)
	if err != nil {
		logger.Warn("listing superseded documents failed", "err", err)
		return nil
	}
	var removed []string
	for _, id := range ids {
		if id == doc.DocID {
			continue
		}
		// Vectors first so a half-removed document is never searchable without its row.
		if err := store.Vectors.DeleteDocument(ctx, id); err != nil {
			logger.Warn("removing superseded vectors failed", "superseded", id, "err", err)
			continue
		}
		if err := store.Structured.DeleteDocument(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("removing superseded document failed", "superseded", id, "err", err)
			continue
		}
		removed = append(removed, id)
	}
	return removed
}

func entries(docID string, category core.Category, chunks []*core.Chunk) []storage.VectorEntry {
	out := make([]storage.VectorEntry, len(chunks))
	for i, c := range chunks {
		out[i] = storage.VectorEntry{
			ChunkID:  c.ID,
			DocID:    docID,
			Category: category,
			Vector:   c.Vector,
		}
	}
	return out
}
