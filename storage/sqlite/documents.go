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

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/storage"
)

const documentColumns = `doc_id, tenant_id, source_file_id, object_key, content_hash, signature,
	title, content_type, category, confidence, method, rationale, degraded, metadata, chunk_count, loaded_at`

const chunkColumns = `chunk_id, doc_id, tenant_id, ordinal, text, span_start, span_end, status`

// InsertDocument writes the document and its chunks in one transaction.
func (s *Store) InsertDocument(ctx context.Context, doc *core.DocumentRecord, chunks []*core.Chunk) error {
	if doc == nil || doc.DocID == "" {
		return fmt.Errorf("%w: document id required", storage.ErrInvalidQuery)
	}
	if doc.TenantID != s.tenant {
		return fmt.Errorf("%w: document of %q written to store of %q", storage.ErrTenantMismatch, doc.TenantID, s.tenant)
	}
	for _, c := range chunks {
		if c.TenantID != s.tenant {
			return fmt.Errorf("%w: chunk %s of %q", storage.ErrTenantMismatch, c.ID, c.TenantID)
		}
		if c.DocID != doc.DocID {
			return fmt.Errorf("%w: chunk %s belongs to %s", storage.ErrInvalidQuery, c.ID, c.DocID)
		}
	}
	if doc.LoadedAt.IsZero() {
		doc.LoadedAt = time.Now()
	}
	doc.ChunkCount = len(chunks)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO categories (tenant_id, name, created_at) VALUES (?, ?, ?)`,
		string(s.tenant), string(doc.Classification.Category), time.Now().UnixMicro()); err != nil {
		return fmt.Errorf("registering category: %w", err)
	}

	promoted, added, err := s.promoteColumns(ctx, tx, doc.Metadata)
	if err != nil {
		return err
	}

	cols := documentColumns
	placeholders := strings.Repeat("?, ", 15) + "?"
	args := []any{
		doc.DocID, string(s.tenant), strconv.FormatUint(uint64(doc.SourceFileID), 10), doc.ObjectKey,
		doc.ContentHash, doc.Signature, doc.Title, int(doc.ContentType),
		string(doc.Classification.Category), doc.Classification.Confidence,
		int(doc.Classification.Method), doc.Classification.Rationale, doc.Degraded,
		storage.MarshalMetadata(doc.Metadata), doc.ChunkCount, doc.LoadedAt.UnixMicro(),
	}
	for _, key := range sortedKeys(promoted) {
		cols += ", " + quoteIdent(promoted[key])
		placeholders += ", ?"
		args = append(args, doc.Metadata[key])
	}
	query := "INSERT INTO documents (" + cols + ") VALUES (" + placeholders + ")"
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO chunks ("+chunkColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()
	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocID, string(s.tenant), c.Ordinal, c.Text,
			c.Span.Start, c.Span.End, int(c.Status)); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
	// Only remember new columns once the ALTERs are durable.
	for _, col := range added {
		s.columns[col] = true
	}
	return nil
}

// promoteColumns returns the metadata keys stored in columns, keyed to their
// column names, adding columns inside tx for keys seen for the first time.
func (s *Store) promoteColumns(ctx context.Context, tx *sql.Tx, metadata map[string]string) (map[string]string, []string, error) {
	promoted := make(map[string]string, len(metadata))
	used := make(map[string]bool, len(metadata))
	var added []string
	for _, key := range sortedKeys(metadata) {
		col := metadataColumn(key)
		if col == "" || used[col] {
			// Keys that collide after sanitizing live only in the blob.
			continue
		}
		if s.columns[col] || slices.Contains(added, col) {
			promoted[key] = col
			used[col] = true
			continue
		}
		if len(s.columns)+len(added) >= s.maxMetadataColumns {
			s.logger.Debug("metadata column cap reached", "key", key)
			continue
		}
		if _, err := tx.ExecContext(ctx, "ALTER TABLE documents ADD COLUMN "+quoteIdent(col)+" TEXT"); err != nil {
			return nil, nil, fmt.Errorf("adding metadata column %s: %w", col, err)
		}
		s.logger.Info("promoted metadata key to column", "key", key, "column", col)
		added = append(added, col)
		promoted[key] = col
		used[col] = true
	}
	return promoted, added, nil
}

// loadColumns caches the metadata columns already present in the schema.
func (s *Store) loadColumns() error {
	rows, err := s.db.Query("SELECT name FROM pragma_table_info('documents')")
	if err != nil {
		return fmt.Errorf("reading documents schema: %w", err)
	}
	defer rows.Close()

	s.columns = make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		if strings.HasPrefix(name, metadataPrefix) {
			s.columns[name] = true
		}
	}
	return rows.Err()
}

// DeleteDocument removes a document; its chunks go with it through the foreign key.
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE tenant_id = ? AND doc_id = ?", string(s.tenant), docID)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", docID, err)
	}
	return nil
}

// GetDocument returns storage.ErrNotFound for unknown IDs.
func (s *Store) GetDocument(ctx context.Context, docID string) (*core.DocumentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE tenant_id = ? AND doc_id = ?", string(s.tenant), docID)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return doc, err
}

// DocumentsForSource returns the IDs of documents loaded from a source file.
func (s *Store) DocumentsForSource(ctx context.Context, sourceFileID core.ID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT doc_id FROM documents WHERE tenant_id = ? AND source_file_id = ? ORDER BY loaded_at",
		string(s.tenant), strconv.FormatUint(uint64(sourceFileID), 10))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetChunks returns the chunks that exist among ids.
func (s *Store) GetChunks(ctx context.Context, ids ...string) ([]*core.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, string(s.tenant))
	for _, id := range ids {
		args = append(args, id)
	}
	query := "SELECT " + chunkColumns + " FROM chunks WHERE tenant_id = ? AND chunk_id IN (" +
		strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")"
	return s.queryChunks(ctx, query, args...)
}

// ListChunks pages through the tenant's chunks in ID order.
func (s *Store) ListChunks(ctx context.Context, afterID string, limit int) ([]*core.Chunk, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be > 0", storage.ErrInvalidQuery)
	}
	return s.queryChunks(ctx,
		"SELECT "+chunkColumns+" FROM chunks WHERE tenant_id = ? AND chunk_id > ? ORDER BY chunk_id LIMIT ?",
		string(s.tenant), afterID, limit)
}

// SetChunkStatus updates the embedding status of the given chunks.
func (s *Store) SetChunkStatus(ctx context.Context, status core.ChunkStatus, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+2)
	args = append(args, int(status), string(s.tenant))
	for _, id := range ids {
		args = append(args, id)
	}
	query := "UPDATE chunks SET status = ? WHERE tenant_id = ? AND chunk_id IN (" +
		strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")"
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating chunk status: %w", err)
	}
	return nil
}

// CountDocuments returns the number of documents in the store.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM documents WHERE tenant_id = ?")
}

// CountChunks returns the number of chunks in the store.
func (s *Store) CountChunks(ctx context.Context) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM chunks WHERE tenant_id = ?")
}

func (s *Store) count(ctx context.Context, query string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, string(s.tenant)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Categories returns the registered categories in name order.
func (s *Store) Categories(ctx context.Context) ([]core.Category, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM categories WHERE tenant_id = ? ORDER BY name", string(s.tenant))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, core.Category(name))
	}
	return out, rows.Err()
}

// MetadataColumns returns the promoted metadata column names in sorted order.
func (s *Store) MetadataColumns(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.columns), nil
}

func (s *Store) queryChunks(ctx context.Context, query string, args ...any) ([]*core.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.Chunk
	for rows.Next() {
		var (
			c               core.Chunk
			tenant          string
			status, ordinal int
		)
		if err := rows.Scan(&c.ID, &c.DocID, &tenant, &ordinal, &c.Text, &c.Span.Start, &c.Span.End, &status); err != nil {
			return nil, err
		}
		c.TenantID = core.TenantID(tenant)
		c.Ordinal = ordinal
		c.Status = core.ChunkStatus(status)
		out = append(out, &c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*core.DocumentRecord, error) {
	var (
		doc                  core.DocumentRecord
		tenant, sourceFileID string
		category             string
		contentType, method  int
		metadata             []byte
		loadedAt             int64
	)
	err := row.Scan(&doc.DocID, &tenant, &sourceFileID, &doc.ObjectKey, &doc.ContentHash, &doc.Signature,
		&doc.Title, &contentType, &category, &doc.Classification.Confidence, &method,
		&doc.Classification.Rationale, &doc.Degraded, &metadata, &doc.ChunkCount, &loadedAt)
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseUint(sourceFileID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: source file id %q", storage.ErrSerializationFailed, sourceFileID)
	}
	doc.TenantID = core.TenantID(tenant)
	doc.SourceFileID = core.ID(id)
	doc.ContentType = core.ContentType(contentType)
	doc.Classification.Category = core.Category(category)
	doc.Classification.Method = core.ClassificationMethod(method)
	doc.LoadedAt = time.UnixMicro(loadedAt)
	if len(metadata) > 0 {
		if doc.Metadata, err = storage.UnmarshalMetadata(metadata); err != nil {
			return nil, err
		}
	}
	return &doc, nil
}

const metadataPrefix = "meta_"

// metadataColumn maps a metadata key to a column name, or "" when nothing
// usable survives sanitizing.
func metadataColumn(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '-' || r == '.' || r == ' ':
			b.WriteByte('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return ""
	}
	if len(name) > 48 {
		name = name[:48]
	}
	return metadataPrefix + name
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
