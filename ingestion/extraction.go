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
	"errors"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/poiesic/ingestor/chunk"
	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/handler"
	"github.com/poiesic/ingestor/synth"
)

// extractProcessor turns file bytes into an ExtractedDocument. Unknown
// formats go to the synthesizer; when synthesis is rejected, or a handler
// cannot make sense of the bytes, the best-effort handler takes over and
// the document is marked degraded.
type extractProcessor struct {
	registry *handler.Registry
	synth    *synth.Synthesizer // nil disables synthesis
	tracker  *fileTracker
	timeout  time.Duration
	logger   *slog.Logger
}

var _ processor = (*extractProcessor)(nil)

func (p *extractProcessor) name() string              { return "extract" }
func (p *extractProcessor) failState() core.FileState { return core.FileStateExtractionFailed }

func (p *extractProcessor) process(ctx context.Context, u *workItem) error {
	if err := p.tracker.advance(ctx, u, core.FileStateExtracting); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	logger := p.logger.With("tenant", string(u.file.TenantID), "key", u.file.ObjectKey)
	in := handler.Input{
		TenantID:  u.file.TenantID,
		ObjectKey: u.file.ObjectKey,
		Signature: handler.Detect(u.file.ObjectKey, u.data),
		Data:      u.data,
	}

	h, err := p.resolve(ctx, in, logger)
	if err != nil {
		return err
	}
	out, err := h.Extract(ctx, in)
	if err != nil && h.Origin() != core.HandlerOriginFallback && unusable(err) {
		logger.Warn("handler could not extract, using best-effort handler", "handler", h.Name(), "err", err)
		h = p.registry.Fallback()
		out, err = h.Extract(ctx, in)
	}
	if err != nil {
		return err
	}

	contentType := out.ContentType
	if contentType == core.ContentTypeUnknown {
		contentType = chunk.DetectContentType(out.Text)
	}
	isDegraded := h.Origin() == core.HandlerOriginFallback
	metadata := maps.Clone(out.Metadata)
	if metadata == nil {
		metadata = make(map[string]string)
	}
	metadata["handler"] = h.Name()

	u.doc = &core.ExtractedDocument{
		DocID:        uuid.NewString(),
		TenantID:     u.file.TenantID,
		SourceFileID: u.file.Id,
		ObjectKey:    u.file.ObjectKey,
		ContentHash:  u.file.ContentHash,
		Signature:    in.Signature,
		Title:        out.Title,
		Text:         out.Text,
		ContentType:  contentType,
		Metadata:     metadata,
		Degraded:     isDegraded,
		ExtractedAt:  time.Now(),
	}
	u.file.Signature = in.Signature
	u.file.Degraded = isDegraded
	// The raw bytes are no longer needed once the text exists.
	u.data = nil

	if err := p.tracker.advance(ctx, u, core.FileStateExtracted); err != nil {
		return err
	}
	if isDegraded {
		u.run.incr(extracted, degraded)
	} else {
		u.run.incr(extracted)
	}
	logger.Debug("extracted", "handler", h.Name(), "signature", in.Signature, "bytes", len(out.Text), "degraded", isDegraded)
	return nil
}

// resolve finds the handler for in, synthesizing one for unknown formats.
func (p *extractProcessor) resolve(ctx context.Context, in handler.Input, logger *slog.Logger) (handler.Handler, error) {
	h, err := p.registry.Resolve(in.TenantID, in.Signature)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, handler.ErrNotFound) {
		return nil, err
	}
	if p.synth == nil {
		return p.registry.Fallback(), nil
	}

	h, err = p.synth.Resolve(ctx, in.TenantID, in.Signature, in.Data)
	if err == nil {
		return h, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	logger.Warn("no handler synthesized, using best-effort handler", "signature", in.Signature, "err", err)
	return p.registry.Fallback(), nil
}

// unusable reports whether a handler failed on the content itself rather
// than on something a retry could fix.
func unusable(err error) bool {
	return errors.Is(err, handler.ErrCorrupt) ||
		errors.Is(err, handler.ErrNoText) ||
		errors.Is(err, synth.ErrSandbox) ||
		errors.Is(err, synth.ErrOutputTooLarge)
}
