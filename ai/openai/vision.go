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

package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/poiesic/ingestor/ai"
)

// ImageTranscriber implements ai.ImageTranscriber with a vision chat model.
type ImageTranscriber struct {
	client llms.Model
	config *ai.Config
	logger *slog.Logger
}

func newImageTranscriber(config *ai.Config) (*ImageTranscriber, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.VisionModel == "" {
		return nil, fmt.Errorf("ai config: VisionModel is required for image transcription")
	}

	client, err := openai.New(
		openai.WithBaseURL(config.VisionHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.VisionModel),
	)
	if err != nil {
		return nil, err
	}

	return &ImageTranscriber{
		client: client,
		config: config,
		logger: slog.Default().With("component", "openai-vision"),
	}, nil
}

// NewImageTranscriber creates a transcriber using the provided configuration.
//
// Returns ai.ImageTranscriber interface to enforce abstraction.
func NewImageTranscriber(config *ai.Config) (ai.ImageTranscriber, error) {
	return newImageTranscriber(config)
}

// Transcribe returns the text visible in the image.
func (t *ImageTranscriber) Transcribe(ctx context.Context, mimeType string, data []byte) (string, error) {
	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(visionPrompt),
				llms.ImageURLPart("data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)),
			},
		},
	}

	ctx, cancel := withTimeout(ctx, t.config.RequestTimeout)
	defer cancel()

	response, err := t.client.GenerateContent(ctx, content, llms.WithTemperature(0.0))
	if err != nil {
		t.logger.Error("failed to transcribe image", "mime", mimeType, "err", err)
		return "", err
	}
	if len(response.Choices) < 1 {
		return "", fmt.Errorf("%w: no choices returned", ai.ErrMalformedResponse)
	}
	return strings.TrimSpace(stripFences(response.Choices[0].Content)), nil
}
