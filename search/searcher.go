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

package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/embed"
	"github.com/poiesic/ingestor/storage"
)

const (
	// DefaultLimit is the number of results returned when a query sets none.
	DefaultLimit = 10

	// verbatimBoost is added to chunks containing every query word.
	verbatimBoost = 0.3

	// overfetch widens the vector search so boosted chunks can move up.
	overfetch = 3
)

// Query is a tenant-scoped similarity query.
type Query struct {
	Tenant     core.TenantID
	Text       string
	Categories []core.Category // Empty searches every category
	Limit      int
	MinScore   float32
}

// Searcher runs similarity queries against a tenant's stores.
type Searcher struct {
	tenants storage.TenantProvider
	client  *embed.Client
	logger  *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "search")
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(tenants storage.TenantProvider, client *embed.Client, opts ...Option) (*Searcher, error) {
	if tenants == nil {
		return nil, ErrTenantProviderRequired
	}
	if client == nil {
		return nil, ErrEmbedderRequired
	}
	s := &Searcher{
		tenants: tenants,
		client:  client,
		logger:  slog.Default().With("component", "search"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// FindSimilar returns the chunks of q.Tenant most similar to q.Text,
// highest score first.
func (s *Searcher) FindSimilar(ctx context.Context, q Query) ([]*core.SearchResult, error) {
	return s.FindSimilarWithMonitor(ctx, q, nil)
}

// FindSimilarWithMonitor is FindSimilar with callbacks at each step.
func (s *Searcher) FindSimilarWithMonitor(ctx context.Context, q Query, monitor SearchMonitor) ([]*core.SearchResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if err := core.ValidateTenantID(q.Tenant); err != nil {
		return nil, err
	}
	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrEmptyQuery
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	monitor.Start(q)

	store, err := s.tenants.Lookup(ctx, q.Tenant)
	if errors.Is(err, storage.ErrNotFound) {
		// Nothing was ever loaded for the tenant.
		monitor.Finish(nil)
		return []*core.SearchResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening stores for %s: %w", q.Tenant, err)
	}

	vector, err := s.client.EmbedQuery(ctx, q.Text)
	if err != nil {
		s.logger.Error("error embedding query", "tenant", string(q.Tenant), "err", err)
		return nil, err
	}

	matches, err := store.Vectors.Search(ctx, vector, storage.VectorFilter{
		Categories: q.Categories,
		MinScore:   q.MinScore,
	}, q.Limit*overfetch)
	if err != nil {
		s.logger.Error("error querying vector index", "tenant", string(q.Tenant), "err", err)
		return nil, err
	}
	monitor.AfterVectorSearch(matches)
	if len(matches) == 0 {
		monitor.Finish(nil)
		return []*core.SearchResult{}, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ChunkID
	}
	chunks, err := store.Structured.GetChunks(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("retrieving chunks: %w", err)
	}
	monitor.AfterChunkRetrieval(chunks)
	byID := make(map[string]*core.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	docs := make(map[string]*core.DocumentRecord)
	results := make([]*core.SearchResult, 0, len(matches))
	for _, m := range matches {
		c, ok := byID[m.ChunkID]
		if !ok {
			// A vector without its row belongs to a load still in flight.
			s.logger.Debug("vector without chunk row", "chunk_id", m.ChunkID)
			continue
		}
		doc, ok := docs[m.DocID]
		if !ok {
			doc, err = store.Structured.GetDocument(ctx, m.DocID)
			if err != nil {
				s.logger.Debug("vector without document row", "doc_id", m.DocID, "err", err)
				continue
			}
			docs[m.DocID] = doc
		}

		result := &core.SearchResult{Chunk: c, Document: doc, Score: m.Score}
		if containsAllQueryWords(c.Text, q.Text) {
			result.Score += verbatimBoost
			monitor.VerbatimHit(result)
		}
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	monitor.Finish(results)
	return results, nil
}
