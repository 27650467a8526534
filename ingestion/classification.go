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

import (
	"context"

	"github.com/poiesic/ingestor/chunk"
	"github.com/poiesic/ingestor/classify"
	"github.com/poiesic/ingestor/core"
)

// classifyProcessor assigns the document its category.
type classifyProcessor struct {
	classifier classify.Classifier
	tracker    *fileTracker
}

var _ processor = (*classifyProcessor)(nil)

func (p *classifyProcessor) name() string { return "classify" }

func (p *classifyProcessor) failState() core.FileState { return core.FileStateExtracted }

func (p *classifyProcessor) process(ctx context.Context, u *workItem) error {
	if err := p.tracker.advance(ctx, u, core.FileStateClassifying); err != nil {
		return err
	}
	c, err := p.classifier.Classify(ctx, classify.Input{ObjectKey: u.doc.ObjectKey, Text: u.doc.Text})
	if err != nil {
		return err
	}
	u.classification = *c
	return p.tracker.advance(ctx, u, core.FileStateClassified)
}

// chunkProcessor splits the document text into chunks.
type chunkProcessor struct {
	chunker *chunk.Chunker
	tracker *fileTracker
}

var _ processor = (*chunkProcessor)(nil)

func (p *chunkProcessor) name() string              { return "chunk" }
func (p *chunkProcessor) failState() core.FileState { return core.FileStateClassified }

func (p *chunkProcessor) process(ctx context.Context, u *workItem) error {
	if err := p.tracker.advance(ctx, u, core.FileStateChunking); err != nil {
		return err
	}
	u.chunks = p.chunker.Chunk(u.doc.TenantID, u.doc.DocID, u.doc.Text, u.doc.ContentType)
	return p.tracker.advance(ctx, u, core.FileStateChunked)
}
