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
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strconv"
	"strings"

	"github.com/poiesic/ingestor/ai"
	"github.com/poiesic/ingestor/core"
)

// ImageSignatures are served by the image handler when a vision model is configured.
var ImageSignatures = []string{".png", ".jpg", ".jpeg", ".gif", ".tif", ".tiff", ".webp", ".bmp"}

// ImageHandler transcribes images with a vision model.
type ImageHandler struct {
	transcriber ai.ImageTranscriber
}

var _ Handler = (*ImageHandler)(nil)

// NewImageHandler creates an image handler backed by t.
func NewImageHandler(t ai.ImageTranscriber) *ImageHandler {
	return &ImageHandler{transcriber: t}
}

func (h *ImageHandler) Name() string               { return "image" }
func (h *ImageHandler) Origin() core.HandlerOrigin { return core.HandlerOriginBuiltin }

func (h *ImageHandler) Extract(ctx context.Context, in Input) (*Output, error) {
	mime := http.DetectContentType(in.Data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%w: not an image (%s)", ErrCorrupt, mime)
	}

	meta := map[string]string{"mime": mime}
	// Dimensions are best effort; only the stdlib decoders are registered.
	if cfg, format, err := image.DecodeConfig(bytes.NewReader(in.Data)); err == nil {
		meta["width"] = strconv.Itoa(cfg.Width)
		meta["height"] = strconv.Itoa(cfg.Height)
		meta["format"] = format
	}

	text, err := h.transcriber.Transcribe(ctx, mime, in.Data)
	if err != nil {
		return nil, fmt.Errorf("transcribing image: %w", err)
	}
	return &Output{
		Title:       baseTitle(in.ObjectKey),
		Text:        normalizeNewlines(strings.TrimSpace(text)),
		ContentType: core.ContentTypeProse,
		Metadata:    meta,
	}, nil
}
