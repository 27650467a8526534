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

package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/poiesic/ingestor/core"
)

// DefaultMinRunLength is the shortest printable run the fallback keeps.
const DefaultMinRunLength = 4

// BestEffort pulls printable text runs out of any byte stream. It is the
// last resort for formats nothing else can read, and its output is
// always marked degraded.
type BestEffort struct {
	minLen int
}

var _ Handler = (*BestEffort)(nil)

// NewBestEffort creates the fallback handler.
func NewBestEffort() *BestEffort {
	return &BestEffort{minLen: DefaultMinRunLength}
}

func (b *BestEffort) Name() string               { return "best-effort" }
func (b *BestEffort) Origin() core.HandlerOrigin { return core.HandlerOriginFallback }

func (b *BestEffort) Extract(ctx context.Context, in Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	runs := PrintableRuns(in.Data, b.minLen)
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoText, in.ObjectKey)
	}
	return &Output{
		Title:       baseTitle(in.ObjectKey),
		Text:        strings.Join(runs, "\n"),
		ContentType: core.ContentTypeProse,
		Metadata:    map[string]string{"runs": strconv.Itoa(len(runs))},
	}, nil
}

// PrintableRuns returns the maximal runs of printable characters in data
// that are at least minLen runes long. Invalid UTF-8 and control
// characters other than tab end a run; leading and trailing spaces are trimmed.
func PrintableRuns(data []byte, minLen int) []string {
	if minLen < 1 {
		minLen = 1
	}
	var (
		runs  []string
		start = -1
	)
	flush := func(end int) {
		if start < 0 {
			return
		}
		run := strings.TrimSpace(string(data[start:end]))
		if utf8.RuneCountInString(run) >= minLen {
			runs = append(runs, run)
		}
		start = -1
	}
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError || !(unicode.IsPrint(r) || r == '\t') {
			flush(i)
		} else if start < 0 {
			start = i
		}
		i += size
	}
	flush(len(data))
	return runs
}
