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

package pgvector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/storage"
)

// Connect opens a connection pool and makes sure the vector extension exists.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating vector extension: %w", err)
	}
	return pool, nil
}

// Index is a tenant's vector index stored in its own table.
// The pool is shared between tenants and is not closed by Close.
type Index struct {
	pool   *pgxpool.Pool
	tenant core.TenantID
	table  string
	logger *slog.Logger

	mu  sync.Mutex
	dim int
}

var _ storage.VectorIndex = (*Index)(nil)

// New creates the tenant's table if needed and returns an index over it.
func New(ctx context.Context, pool *pgxpool.Pool, tenant core.TenantID) (storage.VectorIndex, error) {
	if err := core.ValidateTenantID(tenant); err != nil {
		return nil, err
	}
	idx := &Index{
		pool:   pool,
		tenant: tenant,
		table:  TableName(tenant),
		logger: slog.Default().With("component", "pgvector", "tenant", string(tenant)),
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		chunk_id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		category TEXT NOT NULL,
		embedding vector NOT NULL
	)`, idx.table)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("creating vector table: %w", err)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_doc ON %s (doc_id)", idx.table, idx.table)); err != nil {
		return nil, fmt.Errorf("creating doc index: %w", err)
	}
	if err := idx.loadDimension(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// TableName returns the table holding a tenant's vectors.
func TableName(tenant core.TenantID) string {
	return "chunk_vectors_" + strings.ReplaceAll(string(tenant), "-", "_")
}

func (i *Index) loadDimension(ctx context.Context) error {
	var dim int
	err := i.pool.QueryRow(ctx, fmt.Sprintf("SELECT vector_dims(embedding) FROM %s LIMIT 1", i.table)).Scan(&dim)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading vector dimension: %w", err)
	}
	i.dim = dim
	return nil
}

// Upsert inserts or replaces vectors in one transaction.
func (i *Index) Upsert(ctx context.Context, entries []storage.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	dim := i.dim
	for _, e := range entries {
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) == 0 || len(e.Vector) != dim {
			return fmt.Errorf("%w: chunk %s has %d, index has %d", storage.ErrDimensionMismatch, e.ChunkID, len(e.Vector), dim)
		}
	}

	tx, err := i.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`INSERT INTO %s (chunk_id, doc_id, category, embedding) VALUES ($1, $2, $3, $4)
		ON CONFLICT (chunk_id) DO UPDATE SET doc_id = EXCLUDED.doc_id, category = EXCLUDED.category, embedding = EXCLUDED.embedding`, i.table)
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(query, e.ChunkID, e.DocID, string(e.Category), pgv.NewVector(e.Vector))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting vectors: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
	i.dim = dim
	return nil
}

// DeleteDocument removes every vector of the document.
func (i *Index) DeleteDocument(ctx context.Context, docID string) error {
	_, err := i.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE doc_id = $1", i.table), docID)
	return err
}

// Search ranks by inner product; vectors are stored normalized so this is cosine similarity.
func (i *Index) Search(ctx context.Context, vector []float32, filter storage.VectorFilter, limit int) ([]storage.VectorMatch, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be > 0", storage.ErrInvalidQuery)
	}
	i.mu.Lock()
	dim := i.dim
	i.mu.Unlock()
	if dim == 0 {
		return nil, nil
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", storage.ErrDimensionMismatch, len(vector), dim)
	}

	args := []any{pgv.NewVector(vector), filter.MinScore}
	query := fmt.Sprintf(`SELECT chunk_id, doc_id, category, -(embedding <#> $1) AS score FROM %s
		WHERE -(embedding <#> $1) >= $2`, i.table)
	if len(filter.Categories) > 0 {
		cats := make([]string, len(filter.Categories))
		for n, c := range filter.Categories {
			cats[n] = string(c)
		}
		args = append(args, cats)
		query += fmt.Sprintf(" AND category = ANY($%d)", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY embedding <#> $1 LIMIT $%d", len(args))

	rows, err := i.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}
	defer rows.Close()

	var out []storage.VectorMatch
	for rows.Next() {
		var (
			m        storage.VectorMatch
			category string
			score    float64
		)
		if err := rows.Scan(&m.ChunkID, &m.DocID, &category, &score); err != nil {
			return nil, err
		}
		m.Category = core.Category(category)
		m.Score = float32(score)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Count returns the number of stored vectors.
func (i *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := i.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", i.table)).Scan(&n)
	return n, err
}

// Close is a no-op; the pool belongs to whoever called Connect.
func (i *Index) Close() error {
	return nil
}
