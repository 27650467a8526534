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

package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidTenant indicates a tenant ID is empty or not a safe slug.
	ErrInvalidTenant = errors.New("invalid tenant id")

	// ErrInvalidSourceFile indicates a SourceFile failed validation.
	ErrInvalidSourceFile = errors.New("invalid source file")

	// ErrEmptyObjectKey indicates the ObjectKey field is empty.
	ErrEmptyObjectKey = errors.New("object key cannot be empty")

	// ErrEmptyContentHash indicates the ContentHash field is empty.
	ErrEmptyContentHash = errors.New("content hash cannot be empty")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidSpan indicates a span is empty, inverted or out of range.
	ErrInvalidSpan = errors.New("invalid span")

	// ErrInvalidTransition indicates a state change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidCategory indicates a category outside the configured set.
	ErrInvalidCategory = errors.New("invalid category")
)
