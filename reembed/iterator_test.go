package reembed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ingestor/ai/mock"
	"github.com/poiesic/ingestor/chunk"
	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/loader"
	"github.com/poiesic/ingestor/storage"
	"github.com/poiesic/ingestor/storage/tenants"
)

func setupProvider(t *testing.T) *tenants.Provisioner {
	t.Helper()
	p, err := tenants.New(t.TempDir(), tenants.WithVectorIndexFactory(tenants.BadgerVectors(true)))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

// seed loads a document with n chunks of the form "word-<i>" under the
// old model's vectors.
func seed(t *testing.T, p *tenants.Provisioner, tenant core.TenantID, docID string, source core.ID, category core.Category, n int) {
	t.Helper()
	l, err := loader.New(p)
	require.NoError(t, err)

	doc := &core.ExtractedDocument{
		DocID:        docID,
		TenantID:     tenant,
		SourceFileID: source,
		ObjectKey:    "docs/" + docID + ".txt",
		ContentHash:  "hash-" + docID,
		Signature:    "text/plain",
		Title:        docID,
		ContentType:  core.ContentTypeProse,
	}
	chunks := make([]*core.Chunk, n)
	for i := range chunks {
		text := fmt.Sprintf("%s-word-%03d", docID, i)
		start := len(doc.Text)
		doc.Text += text + " "
		chunks[i] = &core.Chunk{
			ID:       chunk.ChunkID(docID, i),
			DocID:    docID,
			TenantID: tenant,
			Ordinal:  i,
			Text:     text,
			Span:     core.Span{Start: start, End: start + len(text)},
			Vector:   mock.DeterministicVector("old:"+text, 8),
		}
	}
	_, err = l.Load(context.Background(), &loader.Request{
		Document:       doc,
		Classification: core.Classification{Category: category, Confidence: 1, Method: core.MethodRule},
		Chunks:         chunks,
	})
	require.NoError(t, err)
}

func openStore(t *testing.T, p *tenants.Provisioner, tenant core.TenantID) *storage.TenantStore {
	t.Helper()
	ts, err := p.Open(context.Background(), tenant)
	require.NoError(t, err)
	return ts
}

func TestChunkIterator_PagesInOrder(t *testing.T) {
	p := setupProvider(t)
	seed(t, p, "acme", "d1", 1, core.CategoryLegal, 7)
	store := openStore(t, p, "acme")

	var pages []int
	var ids []string
	err := NewChunkIterator(store.Structured, 3).ForEach(context.Background(), func(chunks []*core.Chunk) error {
		pages = append(pages, len(chunks))
		for _, c := range chunks {
			ids = append(ids, c.ID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1}, pages)
	require.Len(t, ids, 7)
	assert.IsIncreasing(t, ids)
}

func TestChunkIterator_ExactMultipleOfBatch(t *testing.T) {
	p := setupProvider(t)
	seed(t, p, "acme", "d1", 1, core.CategoryLegal, 4)
	store := openStore(t, p, "acme")

	calls := 0
	err := NewChunkIterator(store.Structured, 2).ForEach(context.Background(), func(chunks []*core.Chunk) error {
		calls++
		assert.Len(t, chunks, 2)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestChunkIterator_Empty(t *testing.T) {
	p := setupProvider(t)
	store := openStore(t, p, "acme")

	called := false
	err := NewChunkIterator(store.Structured, 0).ForEach(context.Background(), func([]*core.Chunk) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestChunkIterator_StopsOnError(t *testing.T) {
	p := setupProvider(t)
	seed(t, p, "acme", "d1", 1, core.CategoryLegal, 5)
	store := openStore(t, p, "acme")

	boom := errors.New("boom")
	calls := 0
	err := NewChunkIterator(store.Structured, 2).ForEach(context.Background(), func([]*core.Chunk) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestChunkIterator_Cancelled(t *testing.T) {
	p := setupProvider(t)
	seed(t, p, "acme", "d1", 1, core.CategoryLegal, 5)
	store := openStore(t, p, "acme")

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := NewChunkIterator(store.Structured, 2).ForEach(ctx, func([]*core.Chunk) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
