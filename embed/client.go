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

package embed

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/poiesic/ingestor/ai"
)

// Result holds one vector per input text. Texts whose batch exhausted its
// retries have a nil vector and Failed set.
type Result struct {
	Vectors     [][]float32
	Failed      []bool
	FailedCount int
}

// Client batches texts to an embedding service with retries, throttling
// and per-call timeouts.
type Client struct {
	embedder ai.Embedder
	config   *Config
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger.With("component", "embed")
		}
		return nil
	}
}

// New creates a client. A nil config uses the defaults.
func New(embedder ai.Embedder, config *Config, opts ...Option) (*Client, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		embedder: embedder,
		config:   config,
		logger:   slog.Default().With("component", "embed"),
	}
	if config.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst)
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Dimensions returns the width of the vectors produced, or 0 if not yet known.
func (c *Client) Dimensions() int {
	return c.embedder.Dimensions()
}

// Model identifies the embedding model.
func (c *Client) Model() string {
	return c.embedder.Model()
}

// Embed encodes texts in mode. Failed batches are reported per text in
// the result; an error is returned only when ctx ends.
func (c *Client) Embed(ctx context.Context, texts []string, mode ai.EmbedMode) (*Result, error) {
	res := &Result{
		Vectors: make([][]float32, len(texts)),
		Failed:  make([]bool, len(texts)),
	}
	for start := 0; start < len(texts); start += c.config.BatchSize {
		end := min(start+c.config.BatchSize, len(texts))
		vectors, err := c.embedBatch(ctx, texts[start:end], mode)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			c.logger.Warn("embedding batch failed", "texts", end-start, "mode", mode.String(), "err", err)
			for i := start; i < end; i++ {
				res.Failed[i] = true
			}
			res.FailedCount += end - start
			continue
		}
		copy(res.Vectors[start:end], vectors)
	}
	return res, nil
}

// EmbedQuery encodes a single search query.
func (c *Client) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	res, err := c.Embed(ctx, []string{query}, ai.EmbedQuery)
	if err != nil {
		return nil, err
	}
	if res.Failed[0] {
		return nil, fmt.Errorf("%w: query", ErrEmbeddingFailed)
	}
	return res.Vectors[0], nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string, mode ai.EmbedMode) ([][]float32, error) {
	var vectors [][]float32
	err := RetryWithBackoff(ctx, func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return Permanent(err)
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
		defer cancel()

		out, err := c.embedder.EmbedTexts(callCtx, texts, mode)
		if err != nil {
			return err
		}
		if len(out) != len(texts) {
			return fmt.Errorf("%w: got %d vectors for %d texts", ErrBadVector, len(out), len(texts))
		}
		dim := c.embedder.Dimensions()
		for i, v := range out {
			if !usable(v, dim) {
				return fmt.Errorf("%w: text %d", ErrBadVector, i)
			}
			if c.config.Normalize {
				out[i] = Normalize(v)
			}
		}
		vectors = out
		return nil
	}, c.config.MaxAttempts, c.config.BaseDelay, c.config.MaxDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}
