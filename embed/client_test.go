package embed

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ingestor/ai"
	"github.com/poiesic/ingestor/ai/mock"
)

func fastConfig(opts ...ConfigOption) *Config {
	return NewConfig(append([]ConfigOption{WithBackoff(time.Millisecond, 2*time.Millisecond)}, opts...)...)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.Equal(t, []float32{0, 0}, Normalize([]float32{0, 0}))
}

func TestUsable(t *testing.T) {
	assert.True(t, usable([]float32{1, 0}, 2))
	assert.False(t, usable([]float32{1, 0}, 3), "wrong width")
	assert.False(t, usable([]float32{0, 0}, 2), "all zeros")
	assert.False(t, usable([]float32{float32(math.NaN()), 1}, 2))
	assert.False(t, usable(nil, 0))
}

func TestEmbedBatches(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	client, err := New(embedder, fastConfig(WithBatchSize(3)))
	require.NoError(t, err)

	texts := []string{"a", "b", "c", "d", "e", "f", "g"}
	res, err := client.Embed(context.Background(), texts, ai.EmbedDocument)
	require.NoError(t, err)

	assert.Equal(t, 3, embedder.CallCount())
	assert.Equal(t, 7, embedder.TextCount())
	assert.Zero(t, res.FailedCount)
	require.Len(t, res.Vectors, 7)
	for i, v := range res.Vectors {
		assert.Len(t, v, mock.DefaultDimensions)
		assert.InDelta(t, 1.0, norm(v), 1e-5)
		assert.Equal(t, mock.DeterministicVector(texts[i], mock.DefaultDimensions), v)
	}
}

func TestEmbedNormalizes(t *testing.T) {
	embedder := &mock.MockEmbedder{
		Dims: 2,
		EmbedTextsFunc: func(_ context.Context, texts []string, _ ai.EmbedMode) ([][]float32, error) {
			out := make([][]float32, len(texts))
			for i := range out {
				out[i] = []float32{3, 4}
			}
			return out, nil
		},
	}
	client, err := New(embedder, fastConfig())
	require.NoError(t, err)

	res, err := client.Embed(context.Background(), []string{"x"}, ai.EmbedDocument)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, res.Vectors[0][0], 1e-6)
}

func TestEmbedRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	embedder := &mock.MockEmbedder{
		EmbedTextsFunc: func(_ context.Context, texts []string, _ ai.EmbedMode) ([][]float32, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("503")
			}
			out := make([][]float32, len(texts))
			for i, text := range texts {
				out[i] = mock.DeterministicVector(text, mock.DefaultDimensions)
			}
			return out, nil
		},
	}
	client, err := New(embedder, fastConfig())
	require.NoError(t, err)

	res, err := client.Embed(context.Background(), []string{"a", "b"}, ai.EmbedDocument)
	require.NoError(t, err)
	assert.Zero(t, res.FailedCount)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedMarksExhaustedBatchFailed(t *testing.T) {
	embedder := &mock.MockEmbedder{
		EmbedTextsFunc: func(_ context.Context, texts []string, _ ai.EmbedMode) ([][]float32, error) {
			for _, text := range texts {
				if text == "poison" {
					return nil, errors.New("rejected")
				}
			}
			out := make([][]float32, len(texts))
			for i, text := range texts {
				out[i] = mock.DeterministicVector(text, mock.DefaultDimensions)
			}
			return out, nil
		},
	}
	client, err := New(embedder, fastConfig(WithBatchSize(2), WithMaxAttempts(2)))
	require.NoError(t, err)

	res, err := client.Embed(context.Background(), []string{"a", "b", "poison", "c", "d"}, ai.EmbedDocument)
	require.NoError(t, err)
	assert.Equal(t, 2, res.FailedCount)
	assert.Equal(t, []bool{false, false, true, true, false}, res.Failed)
	assert.Nil(t, res.Vectors[2])
	assert.Nil(t, res.Vectors[3])
	assert.NotNil(t, res.Vectors[4])
	// Two calls for the poisoned batch, one for each healthy batch.
	assert.Equal(t, 4, embedder.CallCount())
}

func TestEmbedRejectsBadVectors(t *testing.T) {
	embedder := &mock.MockEmbedder{
		Dims: 4,
		EmbedTextsFunc: func(_ context.Context, texts []string, _ ai.EmbedMode) ([][]float32, error) {
			return [][]float32{{1, 2}}, nil
		},
	}
	client, err := New(embedder, fastConfig(WithMaxAttempts(1)))
	require.NoError(t, err)

	res, err := client.Embed(context.Background(), []string{"a", "b"}, ai.EmbedDocument)
	require.NoError(t, err)
	assert.Equal(t, 2, res.FailedCount)
}

func TestEmbedCallTimeout(t *testing.T) {
	embedder := &mock.MockEmbedder{
		EmbedTextsFunc: func(ctx context.Context, _ []string, _ ai.EmbedMode) ([][]float32, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	client, err := New(embedder, fastConfig(WithCallTimeout(10*time.Millisecond), WithMaxAttempts(2)))
	require.NoError(t, err)

	res, err := client.Embed(context.Background(), []string{"a"}, ai.EmbedDocument)
	require.NoError(t, err, "a call timeout is a failed batch, not a cancelled job")
	assert.True(t, res.Failed[0])
}

func TestEmbedCancelled(t *testing.T) {
	client, err := New(mock.NewMockEmbedder(), fastConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Embed(ctx, []string{"a"}, ai.EmbedDocument)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbedQuery(t *testing.T) {
	var mode ai.EmbedMode = -1
	embedder := &mock.MockEmbedder{
		EmbedTextsFunc: func(_ context.Context, texts []string, m ai.EmbedMode) ([][]float32, error) {
			mode = m
			return [][]float32{mock.DeterministicVector(texts[0], mock.DefaultDimensions)}, nil
		},
	}
	client, err := New(embedder, fastConfig())
	require.NoError(t, err)

	v, err := client.EmbedQuery(context.Background(), "where is the invoice")
	require.NoError(t, err)
	assert.Len(t, v, mock.DefaultDimensions)
	assert.Equal(t, ai.EmbedQuery, mode)

	embedder.EmbedTextsFunc = func(context.Context, []string, ai.EmbedMode) ([][]float32, error) {
		return nil, errors.New("down")
	}
	_, err = client.EmbedQuery(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestEmbedRateLimit(t *testing.T) {
	client, err := New(mock.NewMockEmbedder(), fastConfig(WithBatchSize(1), WithRateLimit(50, 1)))
	require.NoError(t, err)

	start := time.Now()
	_, err = client.Embed(context.Background(), []string{"a", "b", "c", "d"}, ai.EmbedDocument)
	require.NoError(t, err)
	// Four calls at 50/s with a burst of one need at least three intervals.
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
	_, err = New(mock.NewMockEmbedder(), NewConfig(WithBatchSize(0)))
	assert.Error(t, err)
	_, err = New(mock.NewMockEmbedder(), NewConfig(WithRateLimit(10, 0)))
	assert.Error(t, err)
}
