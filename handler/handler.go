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

	"github.com/poiesic/ingestor/core"
)

// Input is one file handed to a handler.
type Input struct {
	TenantID  core.TenantID
	ObjectKey string
	Signature string
	Data      []byte
}

// Output is the normalized text of a file.
type Output struct {
	Title       string
	Text        string
	ContentType core.ContentType
	Metadata    map[string]string
}

// Handler converts the bytes of one file format into text.
// Implementations must be safe for concurrent use.
type Handler interface {
	// Name identifies the handler in logs and listings.
	Name() string

	// Origin reports whether the handler is built in, synthesized or the fallback.
	Origin() core.HandlerOrigin

	Extract(ctx context.Context, in Input) (*Output, error)
}

// Func adapts a function to a built-in Handler.
type Func struct {
	name string
	fn   func(ctx context.Context, in Input) (*Output, error)
}

var _ Handler = (*Func)(nil)

// NewFunc returns a built-in handler named name.
func NewFunc(name string, fn func(ctx context.Context, in Input) (*Output, error)) *Func {
	return &Func{name: name, fn: fn}
}

func (f *Func) Name() string               { return f.name }
func (f *Func) Origin() core.HandlerOrigin { return core.HandlerOriginBuiltin }

func (f *Func) Extract(ctx context.Context, in Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.fn(ctx, in)
}
