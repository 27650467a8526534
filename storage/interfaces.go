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

package storage

import (
	"context"

	"github.com/poiesic/ingestor/core"
)

// SourceFileRepository persists per-file pipeline state.
// Implementations must be thread-safe and support concurrent access.
type SourceFileRepository interface {
	// SaveSourceFile inserts or replaces a source file keyed by (tenant, object key).
	// Sets UpdatedAt automatically.
	SaveSourceFile(ctx context.Context, file *core.SourceFile) error

	// GetSourceFile retrieves a source file by tenant and object key.
	// Returns ErrNotFound if the file has never been discovered.
	GetSourceFile(ctx context.Context, tenant core.TenantID, objectKey string) (*core.SourceFile, error)

	// FindLoadedByHash returns a loaded source file of the tenant whose
	// current content hash equals hash. Returns ErrNotFound otherwise.
	FindLoadedByHash(ctx context.Context, tenant core.TenantID, hash string) (*core.SourceFile, error)

	// ListSourceFiles returns every source file known for the tenant, ordered by object key.
	ListSourceFiles(ctx context.Context, tenant core.TenantID) ([]*core.SourceFile, error)

	Close() error
}

// JobRepository persists ingestion jobs.
type JobRepository interface {
	// SaveJob inserts or replaces a job. Sets UpdatedAt automatically.
	SaveJob(ctx context.Context, job *core.IngestionJob) error

	// GetJob retrieves a job by ID. Returns ErrNotFound if it doesn't exist.
	GetJob(ctx context.Context, id string) (*core.IngestionJob, error)

	// ListJobs returns the tenant's jobs, most recently started first.
	ListJobs(ctx context.Context, tenant core.TenantID) ([]*core.IngestionJob, error)

	Close() error
}

// HandlerRepository persists synthesized extraction handlers per tenant.
type HandlerRepository interface {
	// SaveHandler inserts or replaces the record for (tenant, signature).
	SaveHandler(ctx context.Context, record *core.HandlerRecord) error

	// GetHandler returns ErrNotFound when no record exists for the signature.
	GetHandler(ctx context.Context, tenant core.TenantID, signature string) (*core.HandlerRecord, error)

	// ListHandlers returns all records for the tenant ordered by signature.
	ListHandlers(ctx context.Context, tenant core.TenantID) ([]*core.HandlerRecord, error)

	Close() error
}

// DeadLetterRepository keeps the set of files that exhausted their retries.
type DeadLetterRepository interface {
	AddDeadLetter(ctx context.Context, letter *core.DeadLetter) error

	// ListDeadLetters returns the tenant's dead letters, oldest first.
	ListDeadLetters(ctx context.Context, tenant core.TenantID) ([]*core.DeadLetter, error)

	Close() error
}

// StructuredStore is one tenant's transactional table store.
//
// A store handle is bound to a single tenant; every row it writes carries
// that tenant's ID and every query filters on it.
type StructuredStore interface {
	// InsertDocument writes the document row and all of its chunk rows in a
	// single transaction. New metadata keys become new columns and new
	// categories are registered; nothing existing is dropped or retyped.
	InsertDocument(ctx context.Context, doc *core.DocumentRecord, chunks []*core.Chunk) error

	// DeleteDocument removes a document and its chunks. Deleting a missing
	// document is not an error.
	DeleteDocument(ctx context.Context, docID string) error

	// GetDocument returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, docID string) (*core.DocumentRecord, error)

	// DocumentsForSource returns the IDs of documents loaded from a source file.
	DocumentsForSource(ctx context.Context, sourceFileID core.ID) ([]string, error)

	// GetChunks returns the chunks that exist among ids, in no particular order.
	GetChunks(ctx context.Context, ids ...string) ([]*core.Chunk, error)

	// ListChunks pages through chunks ordered by ID, starting after afterID.
	ListChunks(ctx context.Context, afterID string, limit int) ([]*core.Chunk, error)

	// SetChunkStatus updates the embedding status of the given chunks.
	SetChunkStatus(ctx context.Context, status core.ChunkStatus, ids ...string) error

	CountDocuments(ctx context.Context) (int, error)
	CountChunks(ctx context.Context) (int, error)

	// Categories returns the categories registered in this store.
	Categories(ctx context.Context) ([]core.Category, error)

	// MetadataColumns returns the metadata keys that have been promoted to columns.
	MetadataColumns(ctx context.Context) ([]string, error)

	Close() error
}

// VectorEntry is one chunk vector with the metadata needed for filtering.
type VectorEntry struct {
	ChunkID  string
	DocID    string
	Category core.Category
	Vector   []float32
}

// VectorMatch is a scored hit from a similarity query.
type VectorMatch struct {
	ChunkID  string
	DocID    string
	Category core.Category
	Score    float32
}

// VectorFilter narrows a similarity query.
type VectorFilter struct {
	Categories []core.Category // Empty means all categories
	MinScore   float32
}

// VectorIndex is one tenant's similarity index.
type VectorIndex interface {
	// Upsert inserts or replaces vectors keyed by chunk ID.
	Upsert(ctx context.Context, entries []VectorEntry) error

	// DeleteDocument removes every vector belonging to the document.
	DeleteDocument(ctx context.Context, docID string) error

	// Search returns up to limit matches ordered by score, highest first.
	Search(ctx context.Context, vector []float32, filter VectorFilter, limit int) ([]VectorMatch, error)

	Count(ctx context.Context) (int, error)

	Close() error
}

// TenantStore is the pair of stores a tenant's documents are loaded into.
type TenantStore struct {
	Tenant     core.TenantID
	Structured StructuredStore
	Vectors    VectorIndex
}

// TenantProvider opens per-tenant stores, provisioning them on first use.
// Handles are cached; callers must not close them individually.
type TenantProvider interface {
	Open(ctx context.Context, tenant core.TenantID) (*TenantStore, error)

	// Lookup is Open for read paths: it returns ErrNotFound instead of
	// provisioning a tenant that has never been written to.
	Lookup(ctx context.Context, tenant core.TenantID) (*TenantStore, error)
	Close() error
}
