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

package search

import "errors"

var (
	// ErrTenantProviderRequired is returned when no tenant provider is given.
	ErrTenantProviderRequired = errors.New("tenant provider required")

	// ErrEmbedderRequired is returned when no embedding client is given.
	ErrEmbedderRequired = errors.New("embedding client required")

	// ErrEmptyQuery is returned for a blank query text.
	ErrEmptyQuery = errors.New("query text is empty")
)
