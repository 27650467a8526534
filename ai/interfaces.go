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

import "context"

// EmbedMode selects how a text is encoded by an asymmetric embedding model.
type EmbedMode int

const (
	EmbedDocument EmbedMode = iota
	EmbedQuery
)

func (m EmbedMode) String() string {
	if m == EmbedQuery {
		return "query"
	}
	return "document"
}

// Embedder generates vector embeddings from text.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string, mode EmbedMode) ([]float32, error)

	// EmbedTexts generates embeddings for a batch of texts. The returned
	// slice is in input order.
	EmbedTexts(ctx context.Context, texts []string, mode EmbedMode) ([][]float32, error)

	// Dimensions returns the width of the vectors produced, or 0 if not yet known.
	Dimensions() int

	// Model identifies the embedding model.
	Model() string
}

// CategoryModel picks one category from a closed set for a document excerpt.
type CategoryModel interface {
	Classify(ctx context.Context, req ClassifyRequest) (*CategoryAnswer, error)
}

// CodeGenerator writes extraction routines for unknown file formats.
type CodeGenerator interface {
	// GenerateHandler returns the source of a script defining extract(data).
	GenerateHandler(ctx context.Context, req CodeRequest) (string, error)
}

// ImageTranscriber turns an image into the text it shows.
type ImageTranscriber interface {
	Transcribe(ctx context.Context, mimeType string, data []byte) (string, error)
}

// AIProvider aggregates the hosted model services.
type AIProvider interface {
	Embedder() Embedder
	CategoryModel() CategoryModel
	CodeGenerator() CodeGenerator

	// ImageTranscriber returns nil when no vision model is configured.
	ImageTranscriber() ImageTranscriber

	// Close releases resources held by the provider and its services.
	Close() error
}
