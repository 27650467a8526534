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
	"errors"
	"time"
)

// Config controls batching, retries and throttling of embedding calls.
type Config struct {
	// BatchSize is the largest number of texts sent in one call.
	BatchSize int

	// MaxAttempts is how often a batch is tried before its texts are
	// marked failed.
	MaxAttempts int

	// BaseDelay is the first backoff delay; it doubles up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// CallTimeout bounds a single call to the service.
	CallTimeout time.Duration

	// RequestsPerSecond throttles calls; zero disables throttling.
	RequestsPerSecond float64
	Burst             int

	// Normalize scales returned vectors to unit length.
	Normalize bool
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:   32,
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		CallTimeout: 60 * time.Second,
		Burst:       1,
		Normalize:   true,
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

func WithBatchSize(n int) ConfigOption {
	return func(c *Config) { c.BatchSize = n }
}

func WithMaxAttempts(n int) ConfigOption {
	return func(c *Config) { c.MaxAttempts = n }
}

func WithBackoff(base, maxDelay time.Duration) ConfigOption {
	return func(c *Config) {
		c.BaseDelay = base
		c.MaxDelay = maxDelay
	}
}

func WithCallTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.CallTimeout = d }
}

func WithRateLimit(perSecond float64, burst int) ConfigOption {
	return func(c *Config) {
		c.RequestsPerSecond = perSecond
		c.Burst = burst
	}
}

func WithNormalize(normalize bool) ConfigOption {
	return func(c *Config) { c.Normalize = normalize }
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case c.BatchSize < 1:
		return errors.New("batch size must be at least 1")
	case c.MaxAttempts < 1:
		return ErrInvalidMaxAttempts
	case c.BaseDelay < 0 || c.MaxDelay < 0:
		return errors.New("backoff delays cannot be negative")
	case c.CallTimeout <= 0:
		return errors.New("call timeout must be positive")
	case c.RequestsPerSecond < 0:
		return errors.New("rate limit cannot be negative")
	case c.RequestsPerSecond > 0 && c.Burst < 1:
		return errors.New("burst must be at least 1 when rate limited")
	}
	return nil
}
