package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, tenant core.TenantID, opts ...Option) *Store {
	t.Helper()
	s, err := open(t.TempDir(), tenant, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testDocument(tenant core.TenantID, docID string, n int) (*core.DocumentRecord, []*core.Chunk) {
	doc := &core.DocumentRecord{
		DocID:        docID,
		TenantID:     tenant,
		SourceFileID: core.SourceFileID(tenant, docID+".txt"),
		ObjectKey:    docID + ".txt",
		ContentHash:  "hash-" + docID,
		Signature:    ".txt",
		Title:        docID,
		ContentType:  core.ContentTypeProse,
		Classification: core.Classification{
			Category:   core.CategoryTax,
			Confidence: 0.9,
			Method:     core.MethodRule,
		},
	}
	chunks := make([]*core.Chunk, n)
	for i := range chunks {
		chunks[i] = &core.Chunk{
			ID:       fmt.Sprintf("%s:%05d", docID, i),
			DocID:    docID,
			TenantID: tenant,
			Ordinal:  i,
			Text:     fmt.Sprintf("chunk %d", i),
			Span:     core.Span{Start: i * 10, End: i*10 + 7},
		}
	}
	return doc, chunks
}

func TestOpen_RejectsInvalidTenant(t *testing.T) {
	_, err := Open(t.TempDir(), "Bad/Tenant")
	assert.ErrorIs(t, err, core.ErrInvalidTenant)
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "acme")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir, "acme")
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestInsertDocument_RoundTrip(t *testing.T) {
	s := newTestStore(t, "acme")
	ctx := context.Background()

	doc, chunks := testDocument("acme", "d1", 3)
	doc.Metadata = map[string]string{"author": "jo", "page-count": "4"}
	require.NoError(t, s.InsertDocument(ctx, doc, chunks))

	got, err := s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, doc.SourceFileID, got.SourceFileID)
	assert.Equal(t, core.CategoryTax, got.Classification.Category)
	assert.Equal(t, core.MethodRule, got.Classification.Method)
	assert.Equal(t, 3, got.ChunkCount)
	assert.Equal(t, "jo", got.Metadata["author"])

	n, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	cats, err := s.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.Category{core.CategoryTax}, cats)

	cols, err := s.MetadataColumns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"meta_author", "meta_page_count"}, cols)
}

func TestInsertDocument_SchemaOnlyGrows(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := open(dir, "acme")
	require.NoError(t, err)
	doc, chunks := testDocument("acme", "d1", 1)
	doc.Metadata = map[string]string{"author": "jo"}
	require.NoError(t, s.InsertDocument(ctx, doc, chunks))
	require.NoError(t, s.Close())

	s, err = open(dir, "acme")
	require.NoError(t, err)
	defer s.Close()

	doc, chunks = testDocument("acme", "d2", 1)
	doc.Metadata = map[string]string{"lang": "de"}
	doc.Classification.Category = core.CategoryLegal
	require.NoError(t, s.InsertDocument(ctx, doc, chunks))

	cols, err := s.MetadataColumns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"meta_author", "meta_lang"}, cols)

	cats, err := s.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.Category{core.CategoryLegal, core.CategoryTax}, cats)
}

func TestInsertDocument_MetadataColumnCap(t *testing.T) {
	s := newTestStore(t, "acme", WithMaxMetadataColumns(1))
	ctx := context.Background()

	doc, chunks := testDocument("acme", "d1", 1)
	doc.Metadata = map[string]string{"a": "1", "b": "2", "a.": "collides"}
	require.NoError(t, s.InsertDocument(ctx, doc, chunks))

	cols, err := s.MetadataColumns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"meta_a"}, cols)

	got, err := s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "2", got.Metadata["b"], "blob keeps keys past the cap")
}

func TestInsertDocument_FailureLeavesNothing(t *testing.T) {
	s := newTestStore(t, "acme")
	ctx := context.Background()

	doc, chunks := testDocument("acme", "d1", 2)
	chunks[1].ID = chunks[0].ID // primary key violation on the second chunk
	doc.Metadata = map[string]string{"author": "jo"}
	require.Error(t, s.InsertDocument(ctx, doc, chunks))

	_, err := s.GetDocument(ctx, "d1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	n, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	cols, err := s.MetadataColumns(ctx)
	require.NoError(t, err)
	assert.Empty(t, cols)
}

func TestInsertDocument_TenantMismatch(t *testing.T) {
	s := newTestStore(t, "acme")
	doc, chunks := testDocument("globex", "d1", 1)
	err := s.InsertDocument(context.Background(), doc, chunks)
	assert.ErrorIs(t, err, storage.ErrTenantMismatch)
}

func TestDeleteDocument_CascadesChunks(t *testing.T) {
	s := newTestStore(t, "acme")
	ctx := context.Background()

	doc, chunks := testDocument("acme", "d1", 4)
	require.NoError(t, s.InsertDocument(ctx, doc, chunks))
	require.NoError(t, s.DeleteDocument(ctx, "d1"))
	require.NoError(t, s.DeleteDocument(ctx, "d1"), "deleting twice is fine")

	n, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDocumentsForSource(t *testing.T) {
	s := newTestStore(t, "acme")
	ctx := context.Background()

	doc, chunks := testDocument("acme", "d1", 1)
	require.NoError(t, s.InsertDocument(ctx, doc, chunks))

	ids, err := s.DocumentsForSource(ctx, doc.SourceFileID)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, ids)

	ids, err = s.DocumentsForSource(ctx, core.ID(42))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestChunks_ListGetAndStatus(t *testing.T) {
	s := newTestStore(t, "acme")
	ctx := context.Background()

	doc, chunks := testDocument("acme", "d1", 5)
	require.NoError(t, s.InsertDocument(ctx, doc, chunks))

	page, err := s.ListChunks(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "d1:00000", page[0].ID)

	page, err = s.ListChunks(ctx, page[1].ID, 10)
	require.NoError(t, err)
	assert.Len(t, page, 3)

	require.NoError(t, s.SetChunkStatus(ctx, core.ChunkEmbedded, "d1:00000", "d1:00004"))
	got, err := s.GetChunks(ctx, "d1:00000", "d1:00004", "missing")
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, c := range got {
		assert.Equal(t, core.ChunkEmbedded, c.Status)
		assert.Equal(t, core.TenantID("acme"), c.TenantID)
	}

	_, err = s.ListChunks(ctx, "", 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestMetadataColumn(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"author", "meta_author"},
		{"Page-Count", "meta_page_count"},
		{"x.y z", "meta_x_y_z"},
		{"__", ""},
		{"ümlaut", "meta_mlaut"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, metadataColumn(tt.key))
		})
	}
}
