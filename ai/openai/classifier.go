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
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/poiesic/ingestor/ai"
)

// maxParseAttempts bounds how often a malformed JSON answer is re-requested.
const maxParseAttempts = 3

// CategoryModel implements ai.CategoryModel with a chat model in JSON mode.
type CategoryModel struct {
	client llms.Model
	config *ai.Config
	logger *slog.Logger
}

// categoryAnswer matches the JSON object the model is asked to produce.
type categoryAnswer struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

func newCategoryModel(config *ai.Config) (*CategoryModel, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ClassifierHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.ClassifierModel),
	)
	if err != nil {
		return nil, err
	}

	return &CategoryModel{
		client: client,
		config: config,
		logger: slog.Default().With("component", "openai-classifier"),
	}, nil
}

// NewCategoryModel creates a category model using the provided configuration.
//
// Returns ai.CategoryModel interface to enforce abstraction.
func NewCategoryModel(config *ai.Config) (ai.CategoryModel, error) {
	return newCategoryModel(config)
}

// Classify asks the model for one category out of req.Categories.
// An answer outside the closed set is reported as ai.ErrMalformedResponse.
func (m *CategoryModel) Classify(ctx context.Context, req ai.ClassifyRequest) (*ai.CategoryAnswer, error) {
	if len(req.Categories) == 0 {
		return nil, fmt.Errorf("classify: no categories given")
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, buildClassifierPrompt(req.Categories)),
		llms.TextParts(llms.ChatMessageTypeHuman, buildClassifierInput(req)),
	}

	ctx, cancel := withTimeout(ctx, m.config.RequestTimeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= maxParseAttempts; attempt++ {
		response, err := m.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			m.logger.Error("failed to generate content", "attempt", attempt, "err", err)
			return nil, err
		}
		if len(response.Choices) < 1 {
			return nil, fmt.Errorf("%w: no choices returned", ai.ErrMalformedResponse)
		}

		text := repairJSON(stripFences(response.Choices[0].Content))
		var answer categoryAnswer
		if err := json.Unmarshal([]byte(text), &answer); err != nil {
			lastErr = fmt.Errorf("%w: %w", ai.ErrMalformedResponse, err)
			m.logger.Warn("error parsing classifier response", "attempt", attempt, "response", text, "err", err)
			continue
		}

		category := strings.ToLower(strings.TrimSpace(answer.Category))
		if !slices.Contains(req.Categories, category) {
			return nil, fmt.Errorf("%w: category %q not in %v", ai.ErrMalformedResponse, answer.Category, req.Categories)
		}
		confidence := answer.Confidence
		if confidence < 0 || confidence > 1 {
			confidence = 0
		}
		return &ai.CategoryAnswer{
			Category:   category,
			Confidence: confidence,
			Rationale:  answer.Rationale,
		}, nil
	}

	m.logger.Error("failed to parse classifier response after retries", "err", lastErr)
	return nil, lastErr
}
