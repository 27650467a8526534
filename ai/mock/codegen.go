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

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/poiesic/ingestor/ai"
)

// ErrNoScript is returned by MockCodeGenerator when no script is configured.
var ErrNoScript = errors.New("mock code generator has no script")

// MockCodeGenerator is a test double for ai.CodeGenerator.
type MockCodeGenerator struct {
	GenerateFunc func(ctx context.Context, req ai.CodeRequest) (string, error)

	// Script is returned when GenerateFunc is nil.
	Script string

	callCount atomic.Int64
}

var _ ai.CodeGenerator = (*MockCodeGenerator)(nil)

// NewMockCodeGenerator creates a generator that always returns script.
func NewMockCodeGenerator(script string) *MockCodeGenerator {
	return &MockCodeGenerator{Script: script}
}

// GenerateHandler returns GenerateFunc's result or Script.
func (m *MockCodeGenerator) GenerateHandler(ctx context.Context, req ai.CodeRequest) (string, error) {
	m.callCount.Add(1)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	if m.Script == "" {
		return "", ErrNoScript
	}
	return m.Script, nil
}

// CallCount returns the number of GenerateHandler calls.
func (m *MockCodeGenerator) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the counter.
func (m *MockCodeGenerator) Reset() {
	m.callCount.Store(0)
}
