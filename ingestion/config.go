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

package ingestion

import (
	"errors"
	"runtime"
	"time"
)

// Config sizes the stage pools and sets the per-file retry policy.
type Config struct {
	// CPUWorkers sizes the extraction and chunking pools.
	CPUWorkers int

	// NetworkWorkers sizes the classification, embedding and load pools.
	NetworkWorkers int

	// QueueSize bounds the channel in front of every stage.
	QueueSize int

	// MaxAttempts is how often a failing stage is tried per file before
	// the file is dead-lettered.
	MaxAttempts int

	// RetryBaseDelay is the first backoff delay; it doubles up to RetryMaxDelay.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// StageTimeout bounds a single extraction attempt, including synthesis.
	StageTimeout time.Duration

	// AllowPartialLoad loads documents whose embedding failed for some
	// chunks. A document none of whose chunks embedded is never loaded.
	AllowPartialLoad bool
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// DefaultConfig returns the default orchestration settings.
func DefaultConfig() *Config {
	return &Config{
		CPUWorkers:     max(runtime.NumCPU(), 1),
		NetworkWorkers: 4,
		QueueSize:      64,
		MaxAttempts:    3,
		RetryBaseDelay: time.Second,
		RetryMaxDelay:  time.Minute,
		StageTimeout:   5 * time.Minute,
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

// WithWorkers sets the CPU-bound and network-bound pool sizes.
func WithWorkers(cpu, network int) ConfigOption {
	return func(c *Config) {
		c.CPUWorkers = cpu
		c.NetworkWorkers = network
	}
}

func WithQueueSize(n int) ConfigOption {
	return func(c *Config) { c.QueueSize = n }
}

func WithMaxAttempts(n int) ConfigOption {
	return func(c *Config) { c.MaxAttempts = n }
}

func WithRetryDelay(base, maxDelay time.Duration) ConfigOption {
	return func(c *Config) {
		c.RetryBaseDelay = base
		c.RetryMaxDelay = maxDelay
	}
}

func WithStageTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.StageTimeout = d }
}

func WithAllowPartialLoad(allow bool) ConfigOption {
	return func(c *Config) { c.AllowPartialLoad = allow }
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case c.CPUWorkers < 1 || c.NetworkWorkers < 1:
		return errors.New("worker counts must be at least 1")
	case c.QueueSize < 1:
		return errors.New("queue size must be at least 1")
	case c.MaxAttempts < 1:
		return errors.New("max attempts must be at least 1")
	case c.RetryBaseDelay < 0 || c.RetryMaxDelay < 0:
		return errors.New("retry delays cannot be negative")
	case c.StageTimeout <= 0:
		return errors.New("stage timeout must be positive")
	}
	return nil
}
