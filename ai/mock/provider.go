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

package mock

import "github.com/poiesic/ingestor/ai"

// MockProvider is a test double for ai.AIProvider.
type MockProvider struct {
	embedder    *MockEmbedder
	classifier  *MockCategoryModel
	codegen     *MockCodeGenerator
	transcriber *MockImageTranscriber
}

// NewMockProvider creates a provider with default mocks and no image transcriber.
//
// Returns concrete type so tests can reach the individual mocks.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		embedder:   NewMockEmbedder(),
		classifier: NewMockCategoryModel(),
		codegen:    NewMockCodeGenerator(""),
	}
}

// WithTranscriber enables image transcription.
func (p *MockProvider) WithTranscriber(t *MockImageTranscriber) *MockProvider {
	p.transcriber = t
	return p
}

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// CategoryModel returns the mock category model.
func (p *MockProvider) CategoryModel() ai.CategoryModel {
	return p.classifier
}

// CodeGenerator returns the mock code generator.
func (p *MockProvider) CodeGenerator() ai.CodeGenerator {
	return p.codegen
}

// ImageTranscriber returns nil unless WithTranscriber was called.
func (p *MockProvider) ImageTranscriber() ai.ImageTranscriber {
	if p.transcriber == nil {
		return nil
	}
	return p.transcriber
}

// Close is a no-op for mock provider.
func (p *MockProvider) Close() error {
	return nil
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// GetMockCategoryModel returns the underlying mock category model.
func (p *MockProvider) GetMockCategoryModel() *MockCategoryModel {
	return p.classifier
}

// GetMockCodeGenerator returns the underlying mock code generator.
func (p *MockProvider) GetMockCodeGenerator() *MockCodeGenerator {
	return p.codegen
}

var _ ai.AIProvider = (*MockProvider)(nil)
