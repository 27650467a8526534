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

package loader

import "errors"

var (
	// ErrLoadFailed is returned when a document could not be written to both stores.
	ErrLoadFailed = errors.New("load failed")

	// ErrIncompleteEmbedding is returned when chunks lack vectors and partial loads are disabled.
	ErrIncompleteEmbedding = errors.New("document has chunks without embeddings")

	// ErrProviderRequired is returned when no tenant provider is supplied.
	ErrProviderRequired = errors.New("tenant provider is required")
)
