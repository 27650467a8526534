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

package ai

import (
	"errors"
	"strings"
	"time"
)

// Config holds configuration for the hosted model services.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for a local OpenAI-compatible server
	EmbeddingHost string

	// ClassifierHost is the base URL for the category model.
	ClassifierHost string

	// CodegenHost is the base URL for the code-generation model.
	// Defaults to ClassifierHost.
	CodegenHost string

	// VisionHost is the base URL for image transcription.
	// Defaults to ClassifierHost.
	VisionHost string

	// APIKey is sent as the bearer token. Local servers accept any value.
	APIKey string

	EmbeddingModel  string
	ClassifierModel string
	CodegenModel    string

	// VisionModel enables image transcription when non-empty.
	VisionModel string

	// QueryPrefix and DocumentPrefix are prepended to texts for asymmetric
	// embedding models. Either may be empty.
	QueryPrefix    string
	DocumentPrefix string

	// Dimensions is the expected embedding width. Zero means it is learned
	// from the first response.
	Dimensions int

	// RequestTimeout bounds every call to a hosted model.
	RequestTimeout time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithClassifierHost sets the category model host URL.
func WithClassifierHost(host string) ConfigOption {
	return func(c *Config) {
		c.ClassifierHost = host
	}
}

// WithCodegenHost sets the code-generation host URL.
func WithCodegenHost(host string) ConfigOption {
	return func(c *Config) {
		c.CodegenHost = host
	}
}

// WithHost points every service at the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.ClassifierHost = host
		c.CodegenHost = host
		c.VisionHost = host
	}
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithClassifierModel sets the category model identifier.
func WithClassifierModel(model string) ConfigOption {
	return func(c *Config) {
		c.ClassifierModel = model
	}
}

// WithCodegenModel sets the code-generation model identifier.
func WithCodegenModel(model string) ConfigOption {
	return func(c *Config) {
		c.CodegenModel = model
	}
}

// WithVisionModel enables image transcription with the given model.
func WithVisionModel(model string) ConfigOption {
	return func(c *Config) {
		c.VisionModel = model
	}
}

// WithPrefixes sets the query and document prefixes of an asymmetric embedding model.
func WithPrefixes(query, document string) ConfigOption {
	return func(c *Config) {
		c.QueryPrefix = query
		c.DocumentPrefix = document
	}
}

// WithDimensions fixes the expected embedding width.
func WithDimensions(n int) ConfigOption {
	return func(c *Config) {
		c.Dimensions = n
	}
}

// WithRequestTimeout sets the per-call timeout.
func WithRequestTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.RequestTimeout = d
	}
}

// DefaultConfig returns a Config for a local OpenAI-compatible server.
// The default embedding model is asymmetric and uses its documented task prefixes.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingHost:   defaultHost,
		ClassifierHost:  defaultHost,
		CodegenHost:     defaultHost,
		VisionHost:      defaultHost,
		APIKey:          "none",
		EmbeddingModel:  "embeddinggemma",
		ClassifierModel: "qwen2.5:3b",
		CodegenModel:    "qwen2.5-coder:7b",
		QueryPrefix:     "task: search result | query: ",
		DocumentPrefix:  "title: none | text: ",
		RequestTimeout:  60 * time.Second,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithEmbeddingModel("nomic-embed-text"),
//	    WithPrefixes("search_query: ", "search_document: "),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize fills derived defaults and appends the /v1 suffix that
// OpenAI-compatible servers (Ollama, LocalAI, vLLM) expect.
func (c *Config) Normalize() {
	if c.CodegenHost == "" {
		c.CodegenHost = c.ClassifierHost
	}
	if c.VisionHost == "" {
		c.VisionHost = c.ClassifierHost
	}
	if c.APIKey == "" {
		c.APIKey = "none"
	}
	c.EmbeddingHost = withV1(c.EmbeddingHost)
	c.ClassifierHost = withV1(c.ClassifierHost)
	c.CodegenHost = withV1(c.CodegenHost)
	c.VisionHost = withV1(c.VisionHost)
}

func withV1(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate normalizes the configuration and checks that it is complete.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.ClassifierHost == "" {
		return errors.New("ai config: ClassifierHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.ClassifierModel == "" {
		return errors.New("ai config: ClassifierModel is required")
	}
	if c.CodegenModel == "" {
		return errors.New("ai config: CodegenModel is required")
	}
	if c.Dimensions < 0 {
		return errors.New("ai config: Dimensions must be >= 0")
	}
	if c.RequestTimeout < 0 {
		return errors.New("ai config: RequestTimeout must be >= 0")
	}
	return nil
}

// Prefix returns the text prefix for an embedding mode.
func (c *Config) Prefix(mode EmbedMode) string {
	if mode == EmbedQuery {
		return c.QueryPrefix
	}
	return c.DocumentPrefix
}
