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
	"fmt"
	"log/slog"

	"github.com/poiesic/ingestor/ai"
	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/embed"
)

// embedProcessor attaches document-mode vectors to a document's chunks.
type embedProcessor struct {
	client       *embed.Client
	allowPartial bool
	tracker      *fileTracker
	logger       *slog.Logger
}

var _ processor = (*embedProcessor)(nil)

func (p *embedProcessor) name() string              { return "embed" }
func (p *embedProcessor) failState() core.FileState { return core.FileStateLoadFailed }

func (p *embedProcessor) process(ctx context.Context, u *workItem) error {
	if err := p.tracker.advance(ctx, u, core.FileStateEmbedding); err != nil {
		return err
	}
	if len(u.chunks) == 0 {
		return p.tracker.advance(ctx, u, core.FileStateEmbedded)
	}

	texts := make([]string, len(u.chunks))
	for i, c := range u.chunks {
		texts[i] = c.Text
	}
	res, err := p.client.Embed(ctx, texts, ai.EmbedDocument)
	if err != nil {
		return err
	}

	for i, c := range u.chunks {
		if res.Failed[i] {
			c.Status = core.ChunkEmbeddingFailed
			c.Vector = nil
			continue
		}
		c.Status = core.ChunkEmbedded
		c.Vector = res.Vectors[i]
	}
	if res.FailedCount == len(u.chunks) || (res.FailedCount > 0 && !p.allowPartial) {
		return fmt.Errorf("%w: %w: %d of %d chunks", ErrDocumentNotEmbedded, embed.ErrEmbeddingFailed, res.FailedCount, len(u.chunks))
	}
	if res.FailedCount > 0 {
		p.logger.Warn("loading document with unembedded chunks",
			"tenant", string(u.file.TenantID), "key", u.file.ObjectKey, "failed", res.FailedCount, "chunks", len(u.chunks))
	}
	return p.tracker.advance(ctx, u, core.FileStateEmbedded)
}
