package reembed

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ingestor/ai/mock"
	"github.com/poiesic/ingestor/core"
)

func TestReembedder_Run(t *testing.T) {
	p := setupProvider(t)
	seed(t, p, "acme", "d1", 1, core.CategoryLegal, 6)
	seed(t, p, "acme", "d2", 2, core.CategoryFinance, 4)
	seed(t, p, "globex", "g1", 1, core.CategoryLegal, 3)

	embedder := mock.NewMockEmbedder()
	embedder.Dims = 8
	var buf bytes.Buffer
	r, err := NewReembedder(p, newClient(t, embedder), &Config{BatchSize: 3, ReportInterval: 3}, &buf)
	require.NoError(t, err)

	summary, err := r.Run(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 10, summary.Chunks)
	assert.Equal(t, 10, summary.Reembedded)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 10, embedder.TextCount(), "other tenants are untouched")
	assert.Equal(t, 4, embedder.CallCount())

	output := buf.String()
	assert.Contains(t, output, "10/10")
	assert.Contains(t, output, "mock-embedder")
	assert.Contains(t, output, "Re-embedding complete")
}

func TestReembedder_EmptyTenant(t *testing.T) {
	p := setupProvider(t)
	embedder := mock.NewMockEmbedder()
	var buf bytes.Buffer
	r, err := NewReembedder(p, newClient(t, embedder), nil, &buf)
	require.NoError(t, err)

	summary, err := r.Run(context.Background(), "acme")
	require.NoError(t, err)
	assert.Zero(t, summary.Chunks)
	assert.Contains(t, buf.String(), "No chunks found")
	assert.Zero(t, embedder.CallCount())
}

func TestReembedder_InvalidTenant(t *testing.T) {
	p := setupProvider(t)
	r, err := NewReembedder(p, newClient(t, mock.NewMockEmbedder()), nil, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), "Bad Tenant")
	assert.ErrorIs(t, err, core.ErrInvalidTenant)
}

func TestReembedder_Cancelled(t *testing.T) {
	p := setupProvider(t)
	seed(t, p, "acme", "d1", 1, core.CategoryLegal, 4)
	r, err := NewReembedder(p, newClient(t, mock.NewMockEmbedder()), &Config{BatchSize: 2, ReportInterval: 1}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Run(ctx, "acme")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewReembedder(t *testing.T) {
	p := setupProvider(t)
	client := newClient(t, mock.NewMockEmbedder())

	_, err := NewReembedder(nil, client, nil, nil)
	assert.Equal(t, ErrTenantProviderRequired, err)

	_, err = NewReembedder(p, nil, nil, nil)
	assert.Equal(t, ErrEmbedderRequired, err)

	r, err := NewReembedder(p, client, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), r.config)
}
