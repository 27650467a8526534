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
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/poiesic/ingestor/ai"
)

// CodeGenerator implements ai.CodeGenerator with a chat model.
type CodeGenerator struct {
	client llms.Model
	config *ai.Config
	logger *slog.Logger
}

func newCodeGenerator(config *ai.Config) (*CodeGenerator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.CodegenHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.CodegenModel),
	)
	if err != nil {
		return nil, err
	}

	return &CodeGenerator{
		client: client,
		config: config,
		logger: slog.Default().With("component", "openai-codegen"),
	}, nil
}

// NewCodeGenerator creates a code generator using the provided configuration.
//
// Returns ai.CodeGenerator interface to enforce abstraction.
func NewCodeGenerator(config *ai.Config) (ai.CodeGenerator, error) {
	return newCodeGenerator(config)
}

// GenerateHandler returns the script source with any markdown fences removed.
func (g *CodeGenerator) GenerateHandler(ctx context.Context, req ai.CodeRequest) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, codegenSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, buildCodegenInput(req)),
	}

	ctx, cancel := withTimeout(ctx, g.config.RequestTimeout)
	defer cancel()

	response, err := g.client.GenerateContent(ctx, content, llms.WithTemperature(0.2))
	if err != nil {
		g.logger.Error("failed to generate handler", "signature", req.Signature, "err", err)
		return "", err
	}
	if len(response.Choices) < 1 {
		return "", fmt.Errorf("%w: no choices returned", ai.ErrMalformedResponse)
	}

	code := stripFences(response.Choices[0].Content)
	if code == "" {
		return "", fmt.Errorf("%w: empty handler", ai.ErrMalformedResponse)
	}
	g.logger.Debug("generated handler", "signature", req.Signature, "bytes", len(code))
	return code, nil
}
