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

import "errors"

var (
	// ErrJobNotFound is returned when a job ID is unknown.
	ErrJobNotFound = errors.New("job not found")

	// ErrReleased is returned when a job is started on a released orchestrator.
	ErrReleased = errors.New("orchestrator released")

	// ErrMissingDependency is returned when a required component is not provided.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrDocumentNotEmbedded is returned when too few chunks of a document were embedded to load it.
	ErrDocumentNotEmbedded = errors.New("document not embedded")
)
