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

import (
	"fmt"
	"regexp"
	"slices"
)

var tenantPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// ValidateTenantID checks that a tenant ID is a lowercase slug.
//
// Tenant IDs become directory names and key prefixes, so separators,
// dots and uppercase letters are rejected outright.
func ValidateTenantID(tenant TenantID) error {
	if !tenantPattern.MatchString(string(tenant)) {
		return fmt.Errorf("%w: %q", ErrInvalidTenant, tenant)
	}
	return nil
}

// ValidateSourceFile validates a SourceFile according to domain rules.
//
// Validation rules:
//   - TenantID must be valid
//   - ObjectKey must not be empty
//   - ContentHash must not be empty
func ValidateSourceFile(file *SourceFile) error {
	if file == nil {
		return fmt.Errorf("%w: file is nil", ErrInvalidSourceFile)
	}
	if err := ValidateTenantID(file.TenantID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSourceFile, err)
	}
	if file.ObjectKey == "" {
		return fmt.Errorf("%w: %w", ErrInvalidSourceFile, ErrEmptyObjectKey)
	}
	if file.ContentHash == "" {
		return fmt.Errorf("%w: %w", ErrInvalidSourceFile, ErrEmptyContentHash)
	}
	return nil
}

// ValidateChunk checks that a chunk belongs to a document and that its
// text is exactly the spanned slice of the document text.
func ValidateChunk(chunk *Chunk, text string) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if chunk.DocID == "" {
		return fmt.Errorf("%w: missing document id", ErrInvalidChunk)
	}
	if err := ValidateSpan(chunk.Span, len(text)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, err)
	}
	if text[chunk.Span.Start:chunk.Span.End] != chunk.Text {
		return fmt.Errorf("%w: text does not match span %d-%d", ErrInvalidChunk, chunk.Span.Start, chunk.Span.End)
	}
	return nil
}

// ValidateSpan checks 0 <= start < end <= length.
func ValidateSpan(span Span, length int) error {
	if span.Start < 0 || span.End > length || span.Start >= span.End {
		return fmt.Errorf("%w: %d-%d of %d", ErrInvalidSpan, span.Start, span.End, length)
	}
	return nil
}

// ValidateCategory checks that category is one of allowed.
func ValidateCategory(category Category, allowed []Category) error {
	if !slices.Contains(allowed, category) {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	return nil
}
