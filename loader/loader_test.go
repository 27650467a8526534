package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/storage"
	"github.com/poiesic/ingestor/storage/tenants"
)

// flakyIndex wraps a vector index and fails upserts while fail is set.
type flakyIndex struct {
	storage.VectorIndex
	fail    atomic.Bool
	upserts atomic.Int32
}

func (f *flakyIndex) Upsert(ctx context.Context, entries []storage.VectorEntry) error {
	f.upserts.Add(1)
	if f.fail.Load() {
		return errors.New("vector store unavailable")
	}
	return f.VectorIndex.Upsert(ctx, entries)
}

// flakyStructured fails document deletes while failDelete is set.
type flakyStructured struct {
	storage.StructuredStore
	failDelete atomic.Bool
}

func (f *flakyStructured) DeleteDocument(ctx context.Context, docID string) error {
	if f.failDelete.Load() {
		return errors.New("structured store unavailable")
	}
	return f.StructuredStore.DeleteDocument(ctx, docID)
}

// wrappingProvider hands out tenant stores whose structured store is a
// shared flakyStructured.
type wrappingProvider struct {
	storage.TenantProvider
	structured *flakyStructured
}

func (w *wrappingProvider) Open(ctx context.Context, tenant core.TenantID) (*storage.TenantStore, error) {
	ts, err := w.TenantProvider.Open(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if w.structured.StructuredStore == nil {
		w.structured.StructuredStore = ts.Structured
	}
	return &storage.TenantStore{Tenant: ts.Tenant, Structured: w.structured, Vectors: ts.Vectors}, nil
}

type fixture struct {
	provider *tenants.Provisioner
	indexes  sync.Map // tenant -> *flakyIndex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	base := tenants.BadgerVectors(true)
	p, err := tenants.New(t.TempDir(), tenants.WithVectorIndexFactory(
		func(ctx context.Context, tenant core.TenantID, dir string) (storage.VectorIndex, error) {
			idx, err := base(ctx, tenant, dir)
			if err != nil {
				return nil, err
			}
			flaky := &flakyIndex{VectorIndex: idx}
			f.indexes.Store(tenant, flaky)
			return flaky, nil
		}))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	f.provider = p
	return f
}

func (f *fixture) index(t *testing.T, tenant core.TenantID) *flakyIndex {
	t.Helper()
	_, err := f.provider.Open(context.Background(), tenant)
	require.NoError(t, err)
	v, ok := f.indexes.Load(tenant)
	require.True(t, ok)
	return v.(*flakyIndex)
}

func (f *fixture) store(t *testing.T, tenant core.TenantID) *storage.TenantStore {
	t.Helper()
	ts, err := f.provider.Open(context.Background(), tenant)
	require.NoError(t, err)
	return ts
}

// request builds a two-chunk document over "alpha beta".
func request(tenant core.TenantID, docID string, source core.ID) *Request {
	text := "alpha beta"
	doc := &core.ExtractedDocument{
		DocID:        docID,
		TenantID:     tenant,
		SourceFileID: source,
		ObjectKey:    "docs/a.txt",
		ContentHash:  "hash-" + docID,
		Signature:    "text/plain",
		Title:        "a",
		Text:         text,
		ContentType:  core.ContentTypeProse,
		Metadata:     map[string]string{"author": "kim"},
	}
	chunks := []*core.Chunk{
		{ID: docID + ":00000", DocID: docID, TenantID: tenant, Ordinal: 0, Text: "alpha", Span: core.Span{Start: 0, End: 5}, Vector: []float32{1, 0}},
		{ID: docID + ":00001", DocID: docID, TenantID: tenant, Ordinal: 1, Text: "beta", Span: core.Span{Start: 6, End: 10}, Vector: []float32{0, 1}},
	}
	return &Request{
		Document:       doc,
		Classification: core.Classification{Category: core.CategoryLegal, Confidence: 0.9, Method: core.MethodRule},
		Chunks:         chunks,
	}
}

func TestLoad_WritesBothStores(t *testing.T) {
	f := newFixture(t)
	l, err := New(f.provider)
	require.NoError(t, err)
	ctx := context.Background()

	res, err := l.Load(ctx, request("acme", "d1", 7))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, 2, res.Vectors)
	assert.Empty(t, res.Superseded)

	ts := f.store(t, "acme")
	doc, err := ts.Structured.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, core.CategoryLegal, doc.Classification.Category)
	assert.Equal(t, 2, doc.ChunkCount)

	chunks, err := ts.Structured.GetChunks(ctx, "d1:00000", "d1:00001")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.Equal(t, core.ChunkEmbedded, c.Status)
	}

	n, err := ts.Vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	matches, err := ts.Vectors.Search(ctx, []float32{1, 0}, storage.VectorFilter{Categories: []core.Category{core.CategoryLegal}}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "d1:00000", matches[0].ChunkID)
}

func TestLoad_CompensatesFailedVectorUpsert(t *testing.T) {
	f := newFixture(t)
	l, err := New(f.provider)
	require.NoError(t, err)
	ctx := context.Background()

	f.index(t, "acme").fail.Store(true)
	_, err = l.Load(ctx, request("acme", "d1", 7))
	require.ErrorIs(t, err, ErrLoadFailed)

	ts := f.store(t, "acme")
	_, err = ts.Structured.GetDocument(ctx, "d1")
	assert.ErrorIs(t, err, storage.ErrNotFound, "structured row must be compensated")
	chunks, err := ts.Structured.GetChunks(ctx, "d1:00000")
	require.NoError(t, err)
	assert.Empty(t, chunks)
	n, err := ts.Vectors.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// A retry after the outage loads cleanly.
	f.index(t, "acme").fail.Store(false)
	_, err = l.Load(ctx, request("acme", "d1", 7))
	require.NoError(t, err)
}

func TestLoad_RetryAfterFailedCompensation(t *testing.T) {
	f := newFixture(t)
	provider := &wrappingProvider{TenantProvider: f.provider, structured: &flakyStructured{}}
	l, err := New(provider)
	require.NoError(t, err)
	ctx := context.Background()

	// Open once so the wrapped store exists before deletes start failing.
	_, err = provider.Open(ctx, "acme")
	require.NoError(t, err)

	f.index(t, "acme").fail.Store(true)
	provider.structured.failDelete.Store(true)
	_, err = l.Load(ctx, request("acme", "d1", 7))
	require.ErrorIs(t, err, ErrLoadFailed)
	assert.Contains(t, err.Error(), "structured store unavailable")

	// Compensation failed, so the row is still there.
	ts := f.store(t, "acme")
	_, err = ts.Structured.GetDocument(ctx, "d1")
	require.NoError(t, err)

	f.index(t, "acme").fail.Store(false)
	provider.structured.failDelete.Store(false)
	res, err := l.Load(ctx, request("acme", "d1", 7))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Vectors)

	n, err := ts.Structured.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	chunks, err := ts.Structured.GetChunks(ctx, "d1:00000", "d1:00001")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	n, err = ts.Vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLoad_SupersedesOlderDocumentOfSameSource(t *testing.T) {
	f := newFixture(t)
	l, err := New(f.provider)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = l.Load(ctx, request("acme", "old", 7))
	require.NoError(t, err)
	_, err = l.Load(ctx, request("acme", "other", 8))
	require.NoError(t, err)

	res, err := l.Load(ctx, request("acme", "new", 7))
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, res.Superseded)

	ts := f.store(t, "acme")
	_, err = ts.Structured.GetDocument(ctx, "old")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = ts.Structured.GetDocument(ctx, "other")
	assert.NoError(t, err)
	n, err := ts.Vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestLoad_IncompleteEmbedding(t *testing.T) {
	ctx := context.Background()

	t.Run("rejected by default", func(t *testing.T) {
		f := newFixture(t)
		l, err := New(f.provider)
		require.NoError(t, err)

		req := request("acme", "d1", 7)
		req.Chunks[1].Vector = nil
		req.Chunks[1].Status = core.ChunkEmbeddingFailed
		_, err = l.Load(ctx, req)
		assert.ErrorIs(t, err, ErrLoadFailed)
		assert.ErrorIs(t, err, ErrIncompleteEmbedding)

		_, err = f.store(t, "acme").Structured.GetDocument(ctx, "d1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("partial policy keeps embedded chunks", func(t *testing.T) {
		f := newFixture(t)
		l, err := New(f.provider, WithAllowPartialLoad(true))
		require.NoError(t, err)

		req := request("acme", "d1", 7)
		req.Chunks[1].Vector = nil
		res, err := l.Load(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Vectors)
		assert.Equal(t, 1, res.MissingVector)

		ts := f.store(t, "acme")
		chunks, err := ts.Structured.GetChunks(ctx, "d1:00001")
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, core.ChunkEmbeddingFailed, chunks[0].Status)
		n, err := ts.Vectors.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestLoad_EmptyDocument(t *testing.T) {
	f := newFixture(t)
	l, err := New(f.provider)
	require.NoError(t, err)
	ctx := context.Background()

	req := request("acme", "d1", 7)
	req.Chunks = nil
	res, err := l.Load(ctx, req)
	require.NoError(t, err)
	assert.Zero(t, res.Chunks)
	assert.Zero(t, f.index(t, "acme").upserts.Load())
}

func TestLoad_RejectsInvalidChunks(t *testing.T) {
	f := newFixture(t)
	l, err := New(f.provider)
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*Request)
		target error
	}{
		{"foreign tenant", func(r *Request) { r.Chunks[0].TenantID = "globex" }, storage.ErrTenantMismatch},
		{"foreign document", func(r *Request) { r.Chunks[0].DocID = "zzz" }, core.ErrInvalidChunk},
		{"text outside span", func(r *Request) { r.Chunks[0].Text = "alphx" }, core.ErrInvalidChunk},
		{"mixed dimensions", func(r *Request) { r.Chunks[1].Vector = []float32{1, 0, 0} }, storage.ErrDimensionMismatch},
		{"invalid tenant", func(r *Request) { r.Document.TenantID = "../x" }, core.ErrInvalidTenant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request("acme", "d1", 7)
			tt.mutate(req)
			_, err := l.Load(ctx, req)
			assert.ErrorIs(t, err, ErrLoadFailed)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestLoad_ConcurrentTenantsStayIsolated(t *testing.T) {
	f := newFixture(t)
	l, err := New(f.provider)
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 10 {
		for _, tenant := range []core.TenantID{"acme", "globex"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := l.Load(ctx, request(tenant, fmt.Sprintf("%s-%d", tenant, i), core.ID(i+1)))
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()
	assert.Zero(t, l.locks.held())

	for _, tenant := range []core.TenantID{"acme", "globex"} {
		ts := f.store(t, tenant)
		n, err := ts.Structured.CountDocuments(ctx)
		require.NoError(t, err)
		assert.Equal(t, 10, n)

		chunks, err := ts.Structured.ListChunks(ctx, "", 100)
		require.NoError(t, err)
		for _, c := range chunks {
			assert.Equal(t, tenant, c.TenantID)
		}
	}
}

func TestNew_RequiresProvider(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrProviderRequired)
}
