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

package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/poiesic/ingestor/ai"
	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/handler"
	"github.com/poiesic/ingestor/storage"
)

// ScriptHandler is a registered synthesized handler.
type ScriptHandler struct {
	signature string
	version   int
	code      string
	sandbox   *Sandbox
}

var _ handler.Handler = (*ScriptHandler)(nil)

func (h *ScriptHandler) Name() string {
	return fmt.Sprintf("synthesized%s@v%d", h.signature, h.version)
}

func (h *ScriptHandler) Origin() core.HandlerOrigin { return core.HandlerOriginSynthesized }

func (h *ScriptHandler) Extract(ctx context.Context, in handler.Input) (*handler.Output, error) {
	text, err := h.sandbox.Run(ctx, h.code, in.Data)
	if err != nil {
		return nil, err
	}
	return &handler.Output{
		Text:        text,
		ContentType: core.ContentTypeProse,
		Metadata:    map[string]string{"handler_version": fmt.Sprint(h.version)},
	}, nil
}

// Synthesizer generates, validates and sandbox-tests handlers for
// signatures the registry cannot resolve.
type Synthesizer struct {
	generator ai.CodeGenerator
	records   storage.HandlerRepository
	registry  *handler.Registry
	sandbox   *Sandbox
	config    *Config
	logger    *slog.Logger
	now       func() time.Time

	group    singleflight.Group
	attempts atomic.Int64
}

// Option configures a Synthesizer.
type Option func(*Synthesizer) error

// WithConfig replaces the default limits.
func WithConfig(config *Config) Option {
	return func(s *Synthesizer) error {
		if config == nil {
			return errors.New("config cannot be nil")
		}
		if err := config.Validate(); err != nil {
			return err
		}
		s.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synthesizer) error {
		if logger != nil {
			s.logger = logger.With("component", "synthesizer")
		}
		return nil
	}
}

// New creates a synthesizer that registers its handlers in registry and
// persists them in records.
func New(generator ai.CodeGenerator, records storage.HandlerRepository, registry *handler.Registry, opts ...Option) (*Synthesizer, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	if records == nil {
		return nil, ErrRepositoryRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	s := &Synthesizer{
		generator: generator,
		records:   records,
		registry:  registry,
		config:    DefaultConfig(),
		logger:    slog.Default().With("component", "synthesizer"),
		now:       time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.sandbox = NewSandbox(s.config)
	return s, nil
}

// Generations reports how many code generation calls have been made.
func (s *Synthesizer) Generations() int {
	return int(s.attempts.Load())
}

// Restore registers every persisted handler of the tenant that reached
// the registered state. It returns the number restored.
func (s *Synthesizer) Restore(ctx context.Context, tenant core.TenantID) (int, error) {
	records, err := s.records.ListHandlers(ctx, tenant)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range records {
		if rec.State != core.SynthesisRegistered {
			continue
		}
		if err := Validate(rec.Code, s.config.MaxSourceBytes); err != nil {
			s.logger.Warn("persisted handler no longer validates", "tenant", string(tenant), "signature", rec.Signature, "err", err)
			continue
		}
		s.registry.RegisterSynthesized(tenant, rec.Signature, s.scriptHandler(rec))
		n++
	}
	return n, nil
}

// Resolve returns a handler for the tenant's signature, synthesizing one
// from sample when none exists. Concurrent calls for the same tenant and
// signature share one synthesis. Returns ErrRejected when no handler
// could be produced.
func (s *Synthesizer) Resolve(ctx context.Context, tenant core.TenantID, signature string, sample []byte) (handler.Handler, error) {
	if h, err := s.registry.Resolve(tenant, signature); err == nil {
		return h, nil
	}
	ch := s.group.DoChan(string(tenant)+"/"+signature, func() (any, error) {
		return s.resolve(ctx, tenant, signature, sample)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(handler.Handler), nil
	}
}

func (s *Synthesizer) resolve(ctx context.Context, tenant core.TenantID, signature string, sample []byte) (handler.Handler, error) {
	// A previous flight may have registered the handler while this one queued.
	if h, err := s.registry.Resolve(tenant, signature); err == nil {
		return h, nil
	}

	rec, err := s.records.GetHandler(ctx, tenant, signature)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		rec = &core.HandlerRecord{TenantID: tenant, Signature: signature, Origin: core.HandlerOriginSynthesized}
	case err != nil:
		return nil, err
	case rec.State == core.SynthesisRegistered:
		if verr := Validate(rec.Code, s.config.MaxSourceBytes); verr == nil {
			h := s.scriptHandler(rec)
			s.registry.RegisterSynthesized(tenant, signature, h)
			return h, nil
		}
		rec.State = core.SynthesisRejected
	case rec.State == core.SynthesisRejected && s.now().Sub(rec.UpdatedAt) < s.config.RejectionTTL:
		return nil, fmt.Errorf("%w: %s: %s", ErrRejected, signature, rec.Reason)
	}

	return s.synthesize(ctx, rec, sample)
}

// synthesize drives generating -> validating -> sandbox_testing until the
// script registers or attempts run out. Every transition is persisted.
func (s *Synthesizer) synthesize(ctx context.Context, rec *core.HandlerRecord, sample []byte) (handler.Handler, error) {
	logger := s.logger.With("tenant", string(rec.TenantID), "signature", rec.Signature)
	if len(sample) > s.config.SampleWindow {
		sample = sample[:s.config.SampleWindow]
	}

	var (
		feedback string
		previous string
	)
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.transition(ctx, rec, core.SynthesisGenerating); err != nil {
			return nil, err
		}

		s.attempts.Add(1)
		code, err := s.generator.GenerateHandler(ctx, ai.CodeRequest{
			Signature:    rec.Signature,
			Sample:       sample,
			Feedback:     feedback,
			PreviousCode: previous,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Warn("code generation failed", "attempt", attempt, "err", err)
			feedback = err.Error()
			continue
		}
		previous = code

		if err := s.transition(ctx, rec, core.SynthesisValidating); err != nil {
			return nil, err
		}
		if err := Validate(code, s.config.MaxSourceBytes); err != nil {
			logger.Info("generated handler failed validation", "attempt", attempt, "err", err)
			feedback = err.Error()
			continue
		}

		if err := s.transition(ctx, rec, core.SynthesisSandboxTesting); err != nil {
			return nil, err
		}
		if err := s.sampleTest(ctx, code, sample); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Info("generated handler failed sandbox test", "attempt", attempt, "err", err)
			feedback = err.Error()
			continue
		}

		rec.Code = code
		rec.Version++
		rec.Reason = ""
		if err := s.transition(ctx, rec, core.SynthesisRegistered); err != nil {
			return nil, err
		}
		h := s.scriptHandler(rec)
		s.registry.RegisterSynthesized(rec.TenantID, rec.Signature, h)
		logger.Info("handler synthesized", "version", rec.Version, "attempts", attempt)
		return h, nil
	}

	rec.Reason = feedback
	if err := s.transition(ctx, rec, core.SynthesisRejected); err != nil {
		return nil, err
	}
	logger.Warn("handler synthesis rejected", "reason", feedback)
	return nil, fmt.Errorf("%w: %s: %s", ErrRejected, rec.Signature, feedback)
}

func (s *Synthesizer) sampleTest(ctx context.Context, code string, sample []byte) error {
	text, err := s.sandbox.Run(ctx, code, sample)
	if err != nil {
		return err
	}
	if n := textLength(text); n < s.config.MinTextLength {
		return fmt.Errorf("%w: %d of %d characters", ErrTooLittleText, n, s.config.MinTextLength)
	}
	return nil
}

func (s *Synthesizer) transition(ctx context.Context, rec *core.HandlerRecord, next core.SynthesisState) error {
	if rec.State != next && !rec.State.CanTransition(next) {
		return fmt.Errorf("%w: synthesis %s -> %s", core.ErrInvalidTransition, rec.State, next)
	}
	rec.State = next
	// Persisting must survive job cancellation so the record never stays mid-flight.
	return s.records.SaveHandler(context.WithoutCancel(ctx), rec)
}

func (s *Synthesizer) scriptHandler(rec *core.HandlerRecord) *ScriptHandler {
	return &ScriptHandler{
		signature: rec.Signature,
		version:   rec.Version,
		code:      rec.Code,
		sandbox:   s.sandbox,
	}
}
