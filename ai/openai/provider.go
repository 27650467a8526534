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
	"log/slog"

	"github.com/poiesic/ingestor/ai"
)

// Provider implements ai.AIProvider using OpenAI-compatible services.
type Provider struct {
	config      *ai.Config
	embedder    *Embedder
	classifier  *CategoryModel
	codegen     *CodeGenerator
	transcriber *ImageTranscriber // nil without a vision model
	logger      *slog.Logger
}

// NewProvider creates a provider with every configured service.
// The config is validated and normalized before use.
//
// Returns ai.AIProvider interface (not *Provider) to enforce abstraction
// and prevent coupling to OpenAI-specific implementation details.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}
	classifier, err := newCategoryModel(config)
	if err != nil {
		return nil, err
	}
	codegen, err := newCodeGenerator(config)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		config:     config,
		embedder:   embedder,
		classifier: classifier,
		codegen:    codegen,
		logger:     slog.Default().With("component", "openai-provider"),
	}
	if config.VisionModel != "" {
		if p.transcriber, err = newImageTranscriber(config); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// CategoryModel returns the classification fallback model.
func (p *Provider) CategoryModel() ai.CategoryModel {
	return p.classifier
}

// CodeGenerator returns the handler synthesis model.
func (p *Provider) CodeGenerator() ai.CodeGenerator {
	return p.codegen
}

// ImageTranscriber returns nil when no vision model is configured.
func (p *Provider) ImageTranscriber() ai.ImageTranscriber {
	if p.transcriber == nil {
		return nil
	}
	return p.transcriber
}

// Close releases resources held by the provider.
// Currently a no-op as the underlying clients don't require explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return nil
}
