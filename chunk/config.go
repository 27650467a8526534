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

package chunk

import "errors"

// Config sizes chunks. All sizes are in bytes of UTF-8 text.
type Config struct {
	// TargetSize is the preferred chunk length.
	TargetSize int

	// MaxSpan is the longest chunk allowed. A chunk is hard cut here only
	// when no boundary exists before it.
	MaxSpan int

	// Overlap is how much of the previous chunk's tail the next chunk
	// repeats. Tabular content never overlaps.
	Overlap int
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// DefaultConfig returns the default chunk sizes.
func DefaultConfig() *Config {
	return &Config{
		TargetSize: 1000,
		MaxSpan:    1600,
		Overlap:    100,
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

func WithTargetSize(n int) ConfigOption {
	return func(c *Config) { c.TargetSize = n }
}

func WithMaxSpan(n int) ConfigOption {
	return func(c *Config) { c.MaxSpan = n }
}

func WithOverlap(n int) ConfigOption {
	return func(c *Config) { c.Overlap = n }
}

// Validate checks that the sizes are consistent.
func (c *Config) Validate() error {
	if c.TargetSize < 16 {
		return errors.New("target size must be at least 16 bytes")
	}
	if c.MaxSpan < c.TargetSize {
		return errors.New("max span must not be smaller than target size")
	}
	if c.Overlap < 0 || c.Overlap >= c.TargetSize/2 {
		return errors.New("overlap must be within [0, target size / 2)")
	}
	return nil
}
