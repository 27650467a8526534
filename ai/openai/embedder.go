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

package openai

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/poiesic/ingestor/ai"
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
// Texts are prefixed according to the embedding mode before they are sent.
type Embedder struct {
	embedder embeddings.Embedder
	config   *ai.Config
	dims     atomic.Int64
	logger   *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(config.APIKey),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	e := &Embedder{
		embedder: embedder,
		config:   config,
		logger:   slog.Default().With("component", "openai-embedder", "model", config.EmbeddingModel),
	}
	e.dims.Store(int64(config.Dimensions))
	return e, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string, mode ai.EmbedMode) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text}, mode)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", ai.ErrMalformedResponse)
	}
	return vectors[0], nil
}

// EmbedTexts generates embeddings for a batch of texts.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string, mode ai.EmbedMode) ([][]float32, error) {
	e.logger.Debug("generating embeddings", "count", len(texts), "mode", mode.String())

	prefix := e.config.Prefix(mode)
	inputs := texts
	if prefix != "" {
		inputs = make([]string, len(texts))
		for i, t := range texts {
			inputs[i] = prefix + t
		}
	}

	ctx, cancel := withTimeout(ctx, e.config.RequestTimeout)
	defer cancel()

	vectors, err := e.embedder.EmbedDocuments(ctx, inputs)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %d embeddings for %d texts", ai.ErrMalformedResponse, len(vectors), len(texts))
	}

	want := int(e.dims.Load())
	for i, v := range vectors {
		if want == 0 {
			want = len(v)
			e.dims.CompareAndSwap(0, int64(want))
		}
		if len(v) != want {
			return nil, fmt.Errorf("%w: embedding %d has %d dimensions, expected %d", ai.ErrMalformedResponse, i, len(v), want)
		}
	}
	return vectors, nil
}

// Dimensions returns the embedding width, or 0 before the first call when not configured.
func (e *Embedder) Dimensions() int {
	return int(e.dims.Load())
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.config.EmbeddingModel
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
