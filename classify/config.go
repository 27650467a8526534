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
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/poiesic/ingestor/core"
)

// Config controls the classification cascade.
type Config struct {
	// Categories is the closed set every classification comes from. It
	// must contain Fallback.
	Categories []core.Category

	// Fallback is assigned when no stage reaches its threshold.
	Fallback core.Category

	// Threshold is the rule confidence at which the cascade stops
	// before consulting the model.
	Threshold float64

	// SampleBytes bounds how much document text the rule stage scans.
	SampleBytes int

	// ExcerptRunes bounds the excerpt sent to the model.
	ExcerptRunes int

	// ModelTimeout is the per-call limit for the model stage.
	ModelTimeout time.Duration

	// ModelConfidence is assumed when the model reports no confidence.
	ModelConfidence float64
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// DefaultConfig returns the default cascade configuration.
func DefaultConfig() *Config {
	return &Config{
		Categories:      slices.Clone(core.DefaultCategories),
		Fallback:        core.CategoryGeneral,
		Threshold:       0.6,
		SampleBytes:     8 << 10,
		ExcerptRunes:    2000,
		ModelTimeout:    20 * time.Second,
		ModelConfidence: 0.75,
	}
}

// NewConfig creates a config from the defaults and opts.
func NewConfig(opts ...ConfigOption) *Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func WithCategories(categories ...core.Category) ConfigOption {
	return func(c *Config) { c.Categories = categories }
}

func WithThreshold(t float64) ConfigOption {
	return func(c *Config) { c.Threshold = t }
}

func WithModelTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.ModelTimeout = d }
}

func WithExcerptRunes(n int) ConfigOption {
	return func(c *Config) { c.ExcerptRunes = n }
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if len(c.Categories) == 0 {
		return ErrNoCategories
	}
	if !slices.Contains(c.Categories, c.Fallback) {
		return fmt.Errorf("fallback category %q must be in the category set", c.Fallback)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return errors.New("threshold must be within [0, 1]")
	}
	if c.ModelConfidence <= 0 || c.ModelConfidence > 1 {
		return errors.New("model confidence must be within (0, 1]")
	}
	if c.SampleBytes < 1 || c.ExcerptRunes < 1 {
		return errors.New("sample and excerpt sizes must be positive")
	}
	if c.ModelTimeout <= 0 {
		return errors.New("model timeout must be positive")
	}
	return nil
}
