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
	"sync/atomic"

	"github.com/poiesic/ingestor/ai"
)

// MockCategoryModel is a test double for ai.CategoryModel.
// By default it answers "general" with no reported confidence.
type MockCategoryModel struct {
	ClassifyFunc func(ctx context.Context, req ai.ClassifyRequest) (*ai.CategoryAnswer, error)

	callCount atomic.Int64
}

var _ ai.CategoryModel = (*MockCategoryModel)(nil)

// NewMockCategoryModel creates a mock category model.
func NewMockCategoryModel() *MockCategoryModel {
	return &MockCategoryModel{}
}

// Classify returns the ClassifyFunc result or "general".
func (m *MockCategoryModel) Classify(ctx context.Context, req ai.ClassifyRequest) (*ai.CategoryAnswer, error) {
	m.callCount.Add(1)
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, req)
	}
	return &ai.CategoryAnswer{Category: "general", Rationale: "mock"}, nil
}

// CallCount returns the number of Classify calls.
func (m *MockCategoryModel) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the counter and custom behavior.
func (m *MockCategoryModel) Reset() {
	m.callCount.Store(0)
	m.ClassifyFunc = nil
}
