package core

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateTenantID(t *testing.T) {
	tests := []struct {
		name    string
		tenant  TenantID
		wantErr bool
	}{
		{"simple", "acme", false},
		{"with digits and dashes", "acme-2_eu", false},
		{"empty", "", true},
		{"uppercase", "Acme", true},
		{"path traversal", "../etc", true},
		{"slash", "a/b", true},
		{"leading dash", "-acme", true},
		{"too long", TenantID(strings.Repeat("a", 70)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTenantID(tt.tenant)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTenantID(%q) error = %v, wantErr %v", tt.tenant, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTenant) {
				t.Errorf("expected ErrInvalidTenant, got %v", err)
			}
		})
	}
}

func TestValidateSourceFile(t *testing.T) {
	tests := []struct {
		name    string
		file    *SourceFile
		wantErr error
	}{
		{
			name:    "nil file",
			file:    nil,
			wantErr: ErrInvalidSourceFile,
		},
		{
			name:    "bad tenant",
			file:    &SourceFile{TenantID: "Bad Tenant", ObjectKey: "a.txt", ContentHash: "abc"},
			wantErr: ErrInvalidTenant,
		},
		{
			name:    "empty key",
			file:    &SourceFile{TenantID: "acme", ContentHash: "abc"},
			wantErr: ErrEmptyObjectKey,
		},
		{
			name:    "empty hash",
			file:    &SourceFile{TenantID: "acme", ObjectKey: "a.txt"},
			wantErr: ErrEmptyContentHash,
		},
		{
			name: "valid",
			file: &SourceFile{TenantID: "acme", ObjectKey: "a.txt", ContentHash: "abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSourceFile(tt.file)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateSourceFile() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateSourceFile() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateChunk(t *testing.T) {
	text := "alpha beta gamma"

	ok := &Chunk{DocID: "d1", Text: "beta", Span: Span{Start: 6, End: 10}}
	if err := ValidateChunk(ok, text); err != nil {
		t.Errorf("ValidateChunk() unexpected error: %v", err)
	}

	mismatch := &Chunk{DocID: "d1", Text: "gamma", Span: Span{Start: 6, End: 10}}
	if err := ValidateChunk(mismatch, text); !errors.Is(err, ErrInvalidChunk) {
		t.Errorf("expected ErrInvalidChunk, got %v", err)
	}

	outOfRange := &Chunk{DocID: "d1", Text: "x", Span: Span{Start: 10, End: 99}}
	if err := ValidateChunk(outOfRange, text); !errors.Is(err, ErrInvalidSpan) {
		t.Errorf("expected ErrInvalidSpan, got %v", err)
	}

	orphan := &Chunk{Text: "beta", Span: Span{Start: 6, End: 10}}
	if err := ValidateChunk(orphan, text); !errors.Is(err, ErrInvalidChunk) {
		t.Errorf("expected ErrInvalidChunk, got %v", err)
	}
}

func TestValidateCategory(t *testing.T) {
	if err := ValidateCategory(CategoryTax, DefaultCategories); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateCategory("astrology", DefaultCategories); !errors.Is(err, ErrInvalidCategory) {
		t.Errorf("expected ErrInvalidCategory, got %v", err)
	}
}
