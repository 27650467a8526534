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

// MockImageTranscriber is a test double for ai.ImageTranscriber.
type MockImageTranscriber struct {
	// Text is returned for every image.
	Text string

	callCount atomic.Int64
}

var _ ai.ImageTranscriber = (*MockImageTranscriber)(nil)

// Transcribe returns Text.
func (m *MockImageTranscriber) Transcribe(ctx context.Context, _ string, _ []byte) (string, error) {
	m.callCount.Add(1)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.Text, nil
}

// CallCount returns the number of Transcribe calls.
func (m *MockImageTranscriber) CallCount() int {
	return int(m.callCount.Load())
}
