package pgvector

import (
	"context"
	"os"
	"testing"

	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableName(t *testing.T) {
	assert.Equal(t, "chunk_vectors_acme_eu", TableName("acme-eu"))
}

// TestIndex_Postgres runs against a live database when INGESTOR_TEST_POSTGRES_DSN is set.
func TestIndex_Postgres(t *testing.T) {
	dsn := os.Getenv("INGESTOR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("INGESTOR_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	tenant := core.TenantID("pgtest")
	_, err = pool.Exec(ctx, "DROP TABLE IF EXISTS "+TableName(tenant))
	require.NoError(t, err)

	idx, err := New(ctx, pool, tenant)
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(ctx, []storage.VectorEntry{
		{ChunkID: "d1:00000", DocID: "d1", Category: core.CategoryTax, Vector: []float32{1, 0}},
		{ChunkID: "d2:00000", DocID: "d2", Category: core.CategoryLegal, Vector: []float32{0, 1}},
	}))

	matches, err := idx.Search(ctx, []float32{1, 0}, storage.VectorFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "d1:00000", matches[0].ChunkID)

	matches, err = idx.Search(ctx, []float32{1, 0}, storage.VectorFilter{Categories: []core.Category{core.CategoryLegal}}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "d2", matches[0].DocID)

	err = idx.Upsert(ctx, []storage.VectorEntry{{ChunkID: "x", DocID: "x", Vector: []float32{1, 0, 0}}})
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	require.NoError(t, idx.DeleteDocument(ctx, "d1"))
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
