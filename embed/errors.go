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

import "errors"

var (
	// ErrEmbeddingFailed indicates texts could not be embedded after all retries.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrEmbedderRequired indicates a client was built without an embedder.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrBadVector indicates the service returned an unusable vector.
	ErrBadVector = errors.New("unusable embedding vector")
)
