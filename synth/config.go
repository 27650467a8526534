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

package synth

import (
	"errors"
	"time"
)

// Config bounds generation and sandboxed execution of synthesized handlers.
type Config struct {
	// MaxAttempts is the number of generate/validate/test rounds before a
	// signature is rejected.
	MaxAttempts int

	// SampleWindow is how many leading bytes of the triggering file are sent
	// to the code generator and used as the sandbox test input.
	SampleWindow int

	// MaxSourceBytes caps the size of a generated script.
	MaxSourceBytes int

	// MaxSteps caps Starlark execution steps per run.
	MaxSteps uint64

	// Timeout is the wall-clock limit for one run.
	Timeout time.Duration

	// MaxOutputBytes caps the text a run may return.
	MaxOutputBytes int

	// MaxMemoryBytes caps the memory a script may allocate on top of its
	// input. Scripts run in a child process whose data segment is limited
	// accordingly.
	MaxMemoryBytes int64

	// MinTextLength is the minimum number of non-space runes a sandbox test
	// must produce.
	MinTextLength int

	// RejectionTTL is how long a rejection is honoured before synthesis is
	// tried again for the signature.
	RejectionTTL time.Duration
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// DefaultConfig returns the default synthesis limits.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:    3,
		SampleWindow:   16 << 10,
		MaxSourceBytes: 64 << 10,
		MaxSteps:       50_000_000,
		Timeout:        10 * time.Second,
		MaxOutputBytes: 16 << 20,
		MaxMemoryBytes: 256 << 20,
		MinTextLength:  16,
		RejectionTTL:   time.Hour,
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

func WithMaxAttempts(n int) ConfigOption {
	return func(c *Config) { c.MaxAttempts = n }
}

func WithSampleWindow(n int) ConfigOption {
	return func(c *Config) { c.SampleWindow = n }
}

func WithMaxSteps(n uint64) ConfigOption {
	return func(c *Config) { c.MaxSteps = n }
}

func WithTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.Timeout = d }
}

func WithMaxOutputBytes(n int) ConfigOption {
	return func(c *Config) { c.MaxOutputBytes = n }
}

func WithMaxMemoryBytes(n int64) ConfigOption {
	return func(c *Config) { c.MaxMemoryBytes = n }
}

func WithMinTextLength(n int) ConfigOption {
	return func(c *Config) { c.MinTextLength = n }
}

func WithRejectionTTL(d time.Duration) ConfigOption {
	return func(c *Config) { c.RejectionTTL = d }
}

// Validate checks that every limit is positive.
func (c *Config) Validate() error {
	switch {
	case c.MaxAttempts < 1:
		return errors.New("max attempts must be at least 1")
	case c.SampleWindow < 1:
		return errors.New("sample window must be positive")
	case c.MaxSourceBytes < 1:
		return errors.New("max source bytes must be positive")
	case c.MaxSteps < 1:
		return errors.New("max steps must be positive")
	case c.Timeout <= 0:
		return errors.New("timeout must be positive")
	case c.MaxOutputBytes < 1:
		return errors.New("max output bytes must be positive")
	case c.MaxMemoryBytes < 1<<20:
		return errors.New("max memory bytes must be at least 1 MiB")
	case c.MinTextLength < 0:
		return errors.New("min text length cannot be negative")
	case c.RejectionTTL < 0:
		return errors.New("rejection ttl cannot be negative")
	}
	return nil
}
