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
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode"

	"go.starlark.net/starlark"

	"github.com/poiesic/ingestor/handler"
)

// builtins are the only names a handler script can reach besides the
// Starlark universe. None of them performs I/O.
var builtins = starlark.StringDict{
	"decode_text":    starlark.NewBuiltin("decode_text", decodeText),
	"printable_runs": starlark.NewBuiltin("printable_runs", printableRuns),
	"strip_markup":   starlark.NewBuiltin("strip_markup", stripMarkup),
	"u16le":          starlark.NewBuiltin("u16le", u16le),
	"u32le":          starlark.NewBuiltin("u32le", u32le),
}

// Sandbox runs handler scripts in a child process under step, time,
// output and memory limits. The child is this executable started again,
// so every binary that synthesizes handlers must call ChildMain first
// thing in main (and in TestMain).
type Sandbox struct {
	limits limits
}

type limits struct {
	MaxSteps  uint64        `json:"max_steps"`
	Timeout   time.Duration `json:"timeout"`
	MaxOutput int           `json:"max_output"`
	MaxMemory int64         `json:"max_memory"`
}

// childStartup is the time allowed on top of the script timeout for the
// child process to start and report back.
const childStartup = 5 * time.Second

// NewSandbox creates a sandbox with the limits from config.
func NewSandbox(config *Config) *Sandbox {
	return &Sandbox{limits: limits{
		MaxSteps:  config.MaxSteps,
		Timeout:   config.Timeout,
		MaxOutput: config.MaxOutputBytes,
		MaxMemory: config.MaxMemoryBytes,
	}}
}

// Run executes code in a child process and returns extract(data). The
// script must already have passed Validate.
func (s *Sandbox) Run(ctx context.Context, code string, data []byte) (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("%w: locating executable: %w", ErrSandbox, err)
	}
	header, err := json.Marshal(childRequest{Code: code, Limits: s.limits, DataLen: len(data)})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSandbox, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.limits.Timeout+childStartup)
	defer cancel()

	// JSON escapes at most six bytes per byte of text.
	stdout := &cappedBuffer{max: 6*s.limits.MaxOutput + 4096}
	stderr := &cappedBuffer{max: 16 << 10}
	cmd := exec.CommandContext(ctx, exe)
	cmd.Env = append(os.Environ(), childEnv+"=1")
	cmd.Stdin = io.MultiReader(bytes.NewReader(header), strings.NewReader("\n"), bytes.NewReader(data))
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	runErr := cmd.Run()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", fmt.Errorf("%w: %w", ErrSandbox, ctxErr)
	}
	if stdout.overflow {
		return "", fmt.Errorf("%w: response exceeds %d bytes", ErrOutputTooLarge, stdout.max)
	}
	var resp childResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		if strings.Contains(stderr.String(), "out of memory") {
			return "", fmt.Errorf("%w: %w", ErrSandbox, ErrMemoryLimit)
		}
		return "", fmt.Errorf("%w: child exited: %v: %s", ErrSandbox, runErr, lastLine(stderr.String()))
	}
	return resp.result()
}

// runScript executes code in the calling process. Only the sandbox child
// calls it, after its memory limit is in place.
func runScript(ctx context.Context, lim limits, code string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, lim.Timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name:  "synthesized-handler",
		Print: func(*starlark.Thread, string) {},
	}
	thread.SetMaxExecutionSteps(lim.MaxSteps)
	stop := context.AfterFunc(ctx, func() { thread.Cancel(ctx.Err().Error()) })
	defer stop()

	globals, err := starlark.ExecFile(thread, scriptName, code, builtins)
	if err != nil {
		return "", runError(ctx, err)
	}
	fn, ok := globals[entryPoint].(starlark.Callable)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a function", ErrSandbox, entryPoint)
	}

	result, err := starlark.Call(thread, fn, starlark.Tuple{starlark.Bytes(data)}, nil)
	if err != nil {
		return "", runError(ctx, err)
	}

	var text string
	switch v := result.(type) {
	case starlark.String:
		text = string(v)
	case starlark.Bytes:
		text = strings.ToValidUTF8(string(v), "\uFFFD")
	default:
		return "", fmt.Errorf("%w: %s returned %s, want string", ErrSandbox, entryPoint, result.Type())
	}
	if len(text) > lim.MaxOutput {
		return "", fmt.Errorf("%w: %d bytes", ErrOutputTooLarge, len(text))
	}
	return text, nil
}

func runError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrSandbox, ctxErr)
	}
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return fmt.Errorf("%w: %s", ErrSandbox, evalErr.Backtrace())
	}
	return fmt.Errorf("%w: %w", ErrSandbox, err)
}

// cappedBuffer keeps the first max bytes written and drops the rest.
type cappedBuffer struct {
	bytes.Buffer
	max      int
	overflow bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.Len(); len(p) > room {
		b.overflow = true
		b.Buffer.Write(p[:max(room, 0)])
		return len(p), nil
	}
	return b.Buffer.Write(p)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// textLength counts the non-space runes of s.
func textLength(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// bytesArg accepts bytes or a string for helpers that read raw data.
func bytesArg(v starlark.Value) ([]byte, error) {
	switch t := v.(type) {
	case starlark.Bytes:
		return []byte(t), nil
	case starlark.String:
		return []byte(t), nil
	}
	return nil, fmt.Errorf("want bytes or string, got %s", v.Type())
}

func decodeText(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		data     starlark.Value
		encoding = "utf-8"
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "data", &data, "encoding?", &encoding); err != nil {
		return nil, err
	}
	raw, err := bytesArg(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	text, err := handler.DecodeText(raw, encoding)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.String(text), nil
}

func printableRuns(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		data   starlark.Value
		minLen = handler.DefaultMinRunLength
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "data", &data, "min_len?", &minLen); err != nil {
		return nil, err
	}
	raw, err := bytesArg(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	runs := handler.PrintableRuns(raw, minLen)
	elems := make([]starlark.Value, len(runs))
	for i, r := range runs {
		elems[i] = starlark.String(r)
	}
	return starlark.NewList(elems), nil
}

func stripMarkup(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var text string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "text", &text); err != nil {
		return nil, err
	}
	return starlark.String(handler.StripMarkup(text)), nil
}

func u16le(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	raw, off, err := unpackOffset(b, args, kwargs, 2)
	if err != nil {
		return nil, err
	}
	return starlark.MakeInt(int(binary.LittleEndian.Uint16(raw[off:]))), nil
}

func u32le(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	raw, off, err := unpackOffset(b, args, kwargs, 4)
	if err != nil {
		return nil, err
	}
	return starlark.MakeUint64(uint64(binary.LittleEndian.Uint32(raw[off:]))), nil
}

func unpackOffset(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple, width int) ([]byte, int, error) {
	var (
		data   starlark.Value
		offset int
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "data", &data, "offset", &offset); err != nil {
		return nil, 0, err
	}
	raw, err := bytesArg(data)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if offset < 0 || offset+width > len(raw) {
		return nil, 0, fmt.Errorf("%s: offset %d out of range for %d bytes", b.Name(), offset, len(raw))
	}
	return raw, offset, nil
}
