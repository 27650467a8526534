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
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/poiesic/ingestor/ai"
	"github.com/poiesic/ingestor/core"
)

// Registry maps format signatures to handlers. Built-in handlers are shared
// by every tenant; synthesized handlers are visible only to the tenant they
// were synthesized for.
type Registry struct {
	builtins    map[string]Handler
	fallback    Handler
	transcriber ai.ImageTranscriber
	logger      *slog.Logger

	mu          sync.RWMutex
	synthesized map[core.TenantID]map[string]Handler
}

// Option configures a Registry.
type Option func(*Registry) error

// WithImageTranscriber enables the image handlers.
func WithImageTranscriber(t ai.ImageTranscriber) Option {
	return func(r *Registry) error {
		r.transcriber = t
		return nil
	}
}

// WithBuiltin registers or replaces a built-in handler for signatures.
func WithBuiltin(h Handler, signatures ...string) Option {
	return func(r *Registry) error {
		if h == nil {
			return fmt.Errorf("handler cannot be nil")
		}
		for _, sig := range signatures {
			r.builtins[sig] = h
		}
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) error {
		if logger != nil {
			r.logger = logger.With("component", "handler-registry")
		}
		return nil
	}
}

// NewRegistry creates a registry holding every built-in handler.
func NewRegistry(opts ...Option) (*Registry, error) {
	r := &Registry{
		builtins:    make(map[string]Handler),
		fallback:    NewBestEffort(),
		logger:      slog.Default().With("component", "handler-registry"),
		synthesized: make(map[core.TenantID]map[string]Handler),
	}
	registerBuiltins(r.builtins)

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	// Image handlers never replace a built-in registered through WithBuiltin.
	if r.transcriber != nil {
		image := NewImageHandler(r.transcriber)
		for _, sig := range ImageSignatures {
			if _, taken := r.builtins[sig]; !taken {
				r.builtins[sig] = image
			}
		}
	}
	return r, nil
}

// Resolve returns the handler for signature, preferring built-ins over the
// tenant's synthesized handlers. Returns ErrNotFound when neither exists.
func (r *Registry) Resolve(tenant core.TenantID, signature string) (Handler, error) {
	if h, ok := r.builtins[signature]; ok {
		return h, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.synthesized[tenant][signature]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, signature)
}

// RegisterSynthesized makes h available for the tenant's signature.
func (r *Registry) RegisterSynthesized(tenant core.TenantID, signature string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byTenant, ok := r.synthesized[tenant]
	if !ok {
		byTenant = make(map[string]Handler)
		r.synthesized[tenant] = byTenant
	}
	byTenant[signature] = h
	r.logger.Info("synthesized handler registered", "tenant", string(tenant), "signature", signature, "handler", h.Name())
}

// Fallback returns the best-effort handler.
func (r *Registry) Fallback() Handler {
	return r.fallback
}

// BuiltinSignatures lists the signatures with a built-in handler.
func (r *Registry) BuiltinSignatures() []string {
	sigs := make([]string, 0, len(r.builtins))
	for sig := range r.builtins {
		sigs = append(sigs, sig)
	}
	sort.Strings(sigs)
	return sigs
}
