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
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// SourceFileID derives the stable identity of an object within a tenant.
func SourceFileID(tenant TenantID, objectKey string) ID {
	return IDFromContent(string(tenant) + "\x00" + objectKey)
}

// ContentHash returns the hex encoded BLAKE2b-256 digest of data.
func ContentHash(data []byte) string {
	h, _ := blake2b.New(32, nil)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TenantID names an isolated customer namespace. It is used verbatim in
// store paths and lock keys, so it must pass ValidateTenantID.
type TenantID string

func (t TenantID) String() string {
	return string(t)
}

// FileState tracks a source file through the ingestion pipeline.
type FileState int

const (
	FileStateDiscovered FileState = iota + 1
	FileStateExtracting
	FileStateExtracted
	FileStateExtractionFailed
	FileStateClassifying
	FileStateClassified
	FileStateChunking
	FileStateChunked
	FileStateEmbedding
	FileStateEmbedded
	FileStateLoading
	FileStateLoaded
	FileStateLoadFailed
)

var fileStateNames = map[FileState]string{
	FileStateDiscovered:       "discovered",
	FileStateExtracting:       "extracting",
	FileStateExtracted:        "extracted",
	FileStateExtractionFailed: "extraction_failed",
	FileStateClassifying:      "classifying",
	FileStateClassified:       "classified",
	FileStateChunking:         "chunking",
	FileStateChunked:          "chunked",
	FileStateEmbedding:        "embedding",
	FileStateEmbedded:         "embedded",
	FileStateLoading:          "loading",
	FileStateLoaded:           "loaded",
	FileStateLoadFailed:       "load_failed",
}

func (s FileState) String() string {
	if name, ok := fileStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// fileTransitions lists the edges of the file state machine. A failed
// classify or chunk attempt falls back to the state it started from.
// Every state may also return to FileStateDiscovered when a new job
// rediscovers the file.
var fileTransitions = map[FileState][]FileState{
	FileStateDiscovered:       {FileStateExtracting},
	FileStateExtracting:       {FileStateExtracted, FileStateExtractionFailed},
	FileStateExtractionFailed: {FileStateExtracting},
	FileStateExtracted:        {FileStateClassifying},
	FileStateClassifying:      {FileStateClassified, FileStateExtracted},
	FileStateClassified:       {FileStateChunking},
	FileStateChunking:         {FileStateChunked, FileStateClassified},
	FileStateChunked:          {FileStateEmbedding},
	FileStateEmbedding:        {FileStateEmbedded, FileStateLoadFailed},
	FileStateEmbedded:         {FileStateLoading},
	FileStateLoading:          {FileStateLoaded, FileStateLoadFailed},
	FileStateLoadFailed:       {FileStateEmbedding, FileStateLoading},
}

// CanTransition reports whether the state machine permits moving from s to next.
func (s FileState) CanTransition(next FileState) bool {
	if next == FileStateDiscovered {
		return true
	}
	for _, allowed := range fileTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SourceFile is a single object discovered in a tenant's source.
type SourceFile struct {
	Id           ID
	TenantID     TenantID
	ObjectKey    string
	ContentHash  string
	Size         int64
	Signature    string // Format signature chosen at extraction time
	State        FileState
	Attempts     int
	LastError    string
	JobID        string
	DocID        string // Document currently loaded for this file, if any
	Degraded     bool   // Extracted by the best-effort fallback
	DeadLettered bool
	DiscoveredAt time.Time
	UpdatedAt    time.Time
}

// Terminal reports whether the file needs no further work in its current job.
func (f *SourceFile) Terminal() bool {
	return f.State == FileStateLoaded || f.DeadLettered
}

// HandlerOrigin records where an extraction handler came from.
type HandlerOrigin int

const (
	HandlerOriginBuiltin HandlerOrigin = iota + 1
	HandlerOriginSynthesized
	HandlerOriginFallback
)

func (o HandlerOrigin) String() string {
	switch o {
	case HandlerOriginBuiltin:
		return "builtin"
	case HandlerOriginSynthesized:
		return "synthesized"
	case HandlerOriginFallback:
		return "fallback"
	}
	return "unknown"
}

// SynthesisState is the lifecycle of a synthesized handler.
type SynthesisState int

const (
	SynthesisUnknown SynthesisState = iota
	SynthesisGenerating
	SynthesisValidating
	SynthesisSandboxTesting
	SynthesisRegistered
	SynthesisRejected
)

var synthesisTransitions = map[SynthesisState][]SynthesisState{
	SynthesisUnknown:        {SynthesisGenerating},
	SynthesisGenerating:     {SynthesisValidating, SynthesisRejected},
	SynthesisValidating:     {SynthesisSandboxTesting, SynthesisGenerating, SynthesisRejected},
	SynthesisSandboxTesting: {SynthesisRegistered, SynthesisGenerating, SynthesisRejected},
	SynthesisRejected:       {SynthesisGenerating},
}

func (s SynthesisState) String() string {
	switch s {
	case SynthesisGenerating:
		return "generating"
	case SynthesisValidating:
		return "validating"
	case SynthesisSandboxTesting:
		return "sandbox_testing"
	case SynthesisRegistered:
		return "registered"
	case SynthesisRejected:
		return "rejected"
	}
	return "unknown"
}

// CanTransition reports whether synthesis may move from s to next.
// Registered is final.
func (s SynthesisState) CanTransition(next SynthesisState) bool {
	for _, allowed := range synthesisTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// HandlerRecord is the persisted form of an extraction handler.
// Built-in handlers are never persisted; synthesized ones are scoped to a tenant.
type HandlerRecord struct {
	TenantID  TenantID
	Signature string
	Origin    HandlerOrigin
	State     SynthesisState
	Code      string
	Version   int
	Reason    string // Last validation or sandbox failure
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContentType hints the chunker at the structure of extracted text.
type ContentType int

const (
	ContentTypeUnknown ContentType = iota
	ContentTypeProse
	ContentTypeTabular
	ContentTypeCode
)

func (c ContentType) String() string {
	switch c {
	case ContentTypeProse:
		return "prose"
	case ContentTypeTabular:
		return "tabular"
	case ContentTypeCode:
		return "code"
	}
	return "unknown"
}

// ExtractedDocument is the normalized text form of one source file.
type ExtractedDocument struct {
	DocID        string
	TenantID     TenantID
	SourceFileID ID
	ObjectKey    string
	ContentHash  string
	Signature    string
	Title        string
	Text         string
	ContentType  ContentType
	Metadata     map[string]string
	Degraded     bool
	ExtractedAt  time.Time
}

// Category is a document class drawn from a closed, configurable set.
type Category string

const (
	CategoryTax     Category = "tax"
	CategoryLegal   Category = "legal"
	CategoryProduct Category = "product"
	CategoryHR      Category = "hr"
	CategoryFinance Category = "finance"
	CategoryGeneral Category = "general"
)

// DefaultCategories is the category set used when none is configured.
var DefaultCategories = []Category{
	CategoryTax,
	CategoryLegal,
	CategoryProduct,
	CategoryHR,
	CategoryFinance,
	CategoryGeneral,
}

// ClassificationMethod records which cascade stage produced a classification.
type ClassificationMethod int

const (
	MethodRule ClassificationMethod = iota + 1
	MethodModel
	MethodFallback
)

func (m ClassificationMethod) String() string {
	switch m {
	case MethodRule:
		return "rule"
	case MethodModel:
		return "model"
	case MethodFallback:
		return "fallback"
	}
	return "unknown"
}

// Classification assigns a document to a category.
type Classification struct {
	Category   Category
	Confidence float64
	Method     ClassificationMethod
	Rationale  string
}

// Span is a half-open byte range [Start, End) into a document's text.
type Span struct {
	Start int
	End   int
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// ChunkStatus tracks a chunk's embedding.
type ChunkStatus int

const (
	ChunkPending ChunkStatus = iota
	ChunkEmbedded
	ChunkEmbeddingFailed
)

func (s ChunkStatus) String() string {
	switch s {
	case ChunkEmbedded:
		return "embedded"
	case ChunkEmbeddingFailed:
		return "embedding_failed"
	}
	return "pending"
}

// Chunk is a contiguous slice of one document's text.
type Chunk struct {
	ID       string
	DocID    string
	TenantID TenantID
	Ordinal  int
	Text     string
	Span     Span
	Status   ChunkStatus
	Vector   []float32 // Populated by the embedding stage, not persisted in the structured store
}

// DocumentRecord is a loaded document as kept in a tenant's structured store.
type DocumentRecord struct {
	DocID          string
	TenantID       TenantID
	SourceFileID   ID
	ObjectKey      string
	ContentHash    string
	Signature      string
	Title          string
	ContentType    ContentType
	Classification Classification
	Degraded       bool
	Metadata       map[string]string
	ChunkCount     int
	LoadedAt       time.Time
}

// JobStatus is the lifecycle of an ingestion job.
type JobStatus int

const (
	JobPending JobStatus = iota + 1
	JobRunning
	JobCompleted
	JobFailed
	JobCancelled
)

func (s JobStatus) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobRunning:
		return "running"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	case JobCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Done reports whether the job has reached a final status.
func (s JobStatus) Done() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// SourceSpec identifies the object source a job crawls.
type SourceSpec struct {
	Kind     string   // "fs" or a caller-registered kind
	Root     string   // Root location understood by the source kind
	Prefixes []string // Key prefixes to crawl; empty means everything

	// Recursive descends below each prefix. When false only objects directly
	// under a prefix are crawled.
	Recursive bool
}

// JobCounts aggregates per-file outcomes for a job. Failed counts files
// that failed at least one attempt; FailedAttempts counts every failed
// attempt, retries included.
type JobCounts struct {
	Discovered     int
	Skipped        int
	Unreadable     int
	Extracted      int
	Degraded       int
	Failed         int
	Loaded         int
	DeadLettered   int
	FailedAttempts int
}

// IngestionJob is one crawl-and-ingest run for a tenant.
type IngestionJob struct {
	ID          string
	TenantID    TenantID
	Source      SourceSpec
	Status      JobStatus
	Counts      JobCounts
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
	UpdatedAt   time.Time
}

// DeadLetter records a file that exhausted its retries.
type DeadLetter struct {
	TenantID     TenantID
	JobID        string
	SourceFileID ID
	ObjectKey    string
	State        FileState
	Attempts     int
	Error        string
	At           time.Time
}

// SearchResult is a chunk returned by a tenant-scoped similarity query.
type SearchResult struct {
	Chunk    *Chunk
	Document *DocumentRecord
	Score    float32
}
