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

package classify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/ingestor/ai"
	"github.com/poiesic/ingestor/core"
)

// Input is what a classifier sees of a document.
type Input struct {
	ObjectKey string // Full object key; file name and path are derived from it
	Text      string
}

// Classifier assigns a document to a category.
type Classifier interface {
	Classify(ctx context.Context, in Input) (*core.Classification, error)
}

// Stage is one link of a cascade. Its answer is accepted when its
// confidence reaches MinConfidence.
type Stage struct {
	Classifier    Classifier
	MinConfidence float64
}

// Cascade runs stages in order and returns the first accepted answer.
// When no stage answers, the fallback category is assigned.
type Cascade struct {
	stages   []Stage
	fallback core.Category
	logger   *slog.Logger
}

var _ Classifier = (*Cascade)(nil)

// NewCascade creates a cascade over stages.
func NewCascade(fallback core.Category, logger *slog.Logger, stages ...Stage) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cascade{stages: stages, fallback: fallback, logger: logger.With("component", "classifier")}
}

// New builds the standard cascade: keyword rules, then the model when
// one is given. A nil model leaves the rules as the only stage.
func New(config *Config, model ai.CategoryModel, logger *slog.Logger) (*Cascade, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	stages := []Stage{{Classifier: NewRuleClassifier(config), MinConfidence: config.Threshold}}
	if model != nil {
		mc, err := NewModelClassifier(config, model)
		if err != nil {
			return nil, err
		}
		stages = append(stages, Stage{Classifier: mc})
	}
	return NewCascade(config.Fallback, logger, stages...), nil
}

// Classify never fails for a document; only context cancellation is returned.
func (c *Cascade) Classify(ctx context.Context, in Input) (*core.Classification, error) {
	reason := "no stage reached its threshold"
	for i, stage := range c.stages {
		result, err := stage.Classifier.Classify(ctx, in)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			c.logger.Warn("classification stage failed", "stage", i, "key", in.ObjectKey, "err", err)
			reason = err.Error()
			continue
		}
		if result.Confidence >= stage.MinConfidence {
			return result, nil
		}
	}
	return &core.Classification{
		Category:  c.fallback,
		Method:    core.MethodFallback,
		Rationale: reason,
	}, nil
}

// ModelClassifier asks a hosted model to pick from the category set.
type ModelClassifier struct {
	model      ai.CategoryModel
	categories []string
	allowed    map[string]core.Category
	config     *Config
}

var _ Classifier = (*ModelClassifier)(nil)

// NewModelClassifier wraps model as a cascade stage.
func NewModelClassifier(config *Config, model ai.CategoryModel) (*ModelClassifier, error) {
	if model == nil {
		return nil, ErrModelRequired
	}
	m := &ModelClassifier{
		model:   model,
		allowed: make(map[string]core.Category, len(config.Categories)),
		config:  config,
	}
	for _, cat := range config.Categories {
		m.categories = append(m.categories, string(cat))
		m.allowed[string(cat)] = cat
	}
	return m, nil
}

func (m *ModelClassifier) Classify(ctx context.Context, in Input) (*core.Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.ModelTimeout)
	defer cancel()

	filename, dir := splitKey(in.ObjectKey)
	answer, err := m.model.Classify(ctx, ai.ClassifyRequest{
		Filename:   filename,
		Path:       dir,
		Excerpt:    excerpt(in.Text, m.config.ExcerptRunes),
		Categories: m.categories,
	})
	if err != nil {
		return nil, err
	}
	cat, ok := m.allowed[answer.Category]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, answer.Category)
	}
	confidence := answer.Confidence
	if confidence <= 0 {
		confidence = m.config.ModelConfidence
	}
	return &core.Classification{
		Category:   cat,
		Confidence: confidence,
		Method:     core.MethodModel,
		Rationale:  answer.Rationale,
	}, nil
}

// excerpt returns at most n runes from the start of text.
func excerpt(text string, n int) string {
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}
