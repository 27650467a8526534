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

package chunk

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/ingestor/core"
)

// boundary is a kind of place where a chunk may end.
type boundary int

const (
	paragraphBoundary boundary = iota
	sentenceBoundary
	lineBoundary
	wordBoundary
)

// Chunker splits document text into spans along structural boundaries.
type Chunker struct {
	config *Config
}

// New creates a chunker. A nil config uses the defaults.
func New(config *Config) (*Chunker, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{config: config}, nil
}

// ChunkID returns the ID of a document's chunk at ordinal.
func ChunkID(docID string, ordinal int) string {
	return fmt.Sprintf("%s:%05d", docID, ordinal)
}

// Chunk splits text into ordered chunks owned by the document. Each
// chunk's Text is exactly text[Span.Start:Span.End]. Empty or whitespace
// only text yields no chunks.
func (c *Chunker) Chunk(tenant core.TenantID, docID, text string, hint core.ContentType) []*core.Chunk {
	spans := c.Split(text, hint)
	chunks := make([]*core.Chunk, len(spans))
	for i, span := range spans {
		chunks[i] = &core.Chunk{
			ID:       ChunkID(docID, i),
			DocID:    docID,
			TenantID: tenant,
			Ordinal:  i,
			Text:     text[span.Start:span.End],
			Span:     span,
			Status:   core.ChunkPending,
		}
	}
	return chunks
}

// Split returns the chunk spans of text. Spans never start or end in
// whitespace and together cover every non-space byte of text.
func (c *Chunker) Split(text string, hint core.ContentType) []core.Span {
	if hint == core.ContentTypeUnknown {
		hint = DetectContentType(text)
	}
	kinds, overlap := c.strategy(hint)

	var (
		spans []core.Span
		end   int
	)
	start := skipSpace(text, 0)
	for start < len(text) {
		end = c.nextEnd(text, start, end, kinds)
		trimmed := trimSpace(text, start, end)
		spans = append(spans, core.Span{Start: start, End: trimmed})

		next := skipSpace(text, end)
		if next >= len(text) {
			break
		}
		if overlap > 0 {
			if o := overlapStart(text, start, trimmed, overlap); o > 0 {
				next = o
			}
		}
		start = next
	}
	return spans
}

func (c *Chunker) strategy(hint core.ContentType) ([]boundary, int) {
	switch hint {
	case core.ContentTypeTabular:
		return []boundary{lineBoundary}, 0
	case core.ContentTypeCode:
		return []boundary{paragraphBoundary, lineBoundary}, c.config.Overlap
	}
	return []boundary{paragraphBoundary, sentenceBoundary, lineBoundary, wordBoundary}, c.config.Overlap
}

// nextEnd picks where the chunk starting at start ends. For each boundary
// kind in priority order it takes the last boundary not past the target
// size, or failing that the first one before the max span. Without any
// boundary the chunk is cut at the max span. The end always lies beyond
// prevEnd so an overlapping chunk is never contained in its predecessor.
func (c *Chunker) nextEnd(text string, start, prevEnd int, kinds []boundary) int {
	if len(text)-start <= c.config.TargetSize {
		return len(text)
	}
	target := start + c.config.TargetSize
	limit := min(start+c.config.MaxSpan, len(text))
	floor := max(start+c.config.TargetSize/4, prevEnd)

	for _, kind := range kinds {
		best := -1
		for _, pos := range boundaries(text, start, limit, kind) {
			if pos <= floor {
				continue
			}
			if pos <= target {
				best = pos
				continue
			}
			if best < 0 {
				best = pos
			}
			break
		}
		if best > 0 {
			return best
		}
	}
	return runeFloor(text, limit)
}

// boundaries lists chunk end positions of kind within text[lo:hi].
func boundaries(text string, lo, hi int, kind boundary) []int {
	var out []int
	for j := lo; j < hi; j++ {
		switch kind {
		case paragraphBoundary:
			if text[j] == '\n' && j+1 < len(text) && isBlankLineAhead(text, j+1) {
				out = append(out, j+1)
			}
		case sentenceBoundary:
			if (text[j] == '.' || text[j] == '!' || text[j] == '?') && j+1 < len(text) && isSpace(text[j+1]) {
				out = append(out, j+1)
			}
		case lineBoundary:
			if text[j] == '\n' {
				out = append(out, j+1)
			}
		case wordBoundary:
			if text[j] == ' ' || text[j] == '\t' {
				out = append(out, j+1)
			}
		}
	}
	return out
}

// isBlankLineAhead reports whether the line starting at i holds only spaces.
func isBlankLineAhead(text string, i int) bool {
	for ; i < len(text); i++ {
		switch text[i] {
		case ' ', '\t', '\r':
		case '\n':
			return true
		default:
			return false
		}
	}
	return true
}

// overlapStart returns where the chunk after [start, end) begins so that
// it repeats about overlap bytes, moved forward to a word start. It
// returns -1 when the chunk is too short to overlap.
func overlapStart(text string, start, end, overlap int) int {
	desired := end - overlap
	if desired <= start {
		return -1
	}
	for j := desired; j < end; j++ {
		if isSpace(text[j]) {
			if s := skipSpace(text, j); s < end {
				return s
			}
			return -1
		}
	}
	if s := runeCeil(text, desired); s < end {
		return s
	}
	return -1
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == '\v'
}

func skipSpace(text string, i int) int {
	for i < len(text) && isSpace(text[i]) {
		i++
	}
	return i
}

func trimSpace(text string, start, end int) int {
	for end > start && isSpace(text[end-1]) {
		end--
	}
	return end
}

func runeFloor(text string, i int) int {
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

func runeCeil(text string, i int) int {
	for i < len(text) && !utf8.RuneStart(text[i]) {
		i++
	}
	return i
}

// DetectContentType guesses the structure of text when the extractor gave
// no hint. Lines that mostly share a cell separator are tabular; lines
// that mostly end in code punctuation are code; everything else is prose.
func DetectContentType(text string) core.ContentType {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) < 3 {
		return core.ContentTypeProse
	}
	var cells, code, nonEmpty int
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		nonEmpty++
		if strings.Contains(line, " | ") || strings.Count(line, "\t") >= 2 || strings.Count(line, ",") >= 3 {
			cells++
		}
		switch line[len(line)-1] {
		case ';', '{', '}', ')', ':':
			code++
		}
	}
	switch {
	case cells*10 >= nonEmpty*8:
		return core.ContentTypeTabular
	case code*10 >= nonEmpty*6:
		return core.ContentTypeCode
	}
	return core.ContentTypeProse
}
