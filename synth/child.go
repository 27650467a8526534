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
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// childEnv marks a process started by Sandbox.Run.
const childEnv = "INGESTOR_SANDBOX_CHILD"

type childRequest struct {
	Code    string `json:"code"`
	Limits  limits `json:"limits"`
	DataLen int    `json:"data_len"`
}

type childResponse struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

const (
	kindSandbox = "sandbox"
	kindOutput  = "output"
)

func (r *childResponse) result() (string, error) {
	switch r.Kind {
	case "":
		return r.Text, nil
	case kindOutput:
		return "", fmt.Errorf("%w: %s", ErrOutputTooLarge, trimSentinel(r.Error, ErrOutputTooLarge))
	default:
		return "", fmt.Errorf("%w: %s", ErrSandbox, trimSentinel(r.Error, ErrSandbox))
	}
}

func trimSentinel(msg string, sentinel error) string {
	return strings.TrimPrefix(msg, sentinel.Error()+": ")
}

// ChildMain runs one sandboxed script and exits when the process was
// started by Sandbox.Run. Otherwise it returns immediately.
func ChildMain() {
	if os.Getenv(childEnv) != "1" {
		return
	}
	os.Exit(serveChild(os.Stdin, os.Stdout, os.Stderr))
}

// serveChild reads a request header line followed by the raw input, limits
// the process memory and writes one JSON response.
func serveChild(r io.Reader, w, errw io.Writer) int {
	in := bufio.NewReader(r)
	line, err := in.ReadBytes('\n')
	if err != nil {
		fmt.Fprintf(errw, "reading request: %v\n", err)
		return 2
	}
	var req childRequest
	if err := json.Unmarshal(line, &req); err != nil {
		fmt.Fprintf(errw, "decoding request: %v\n", err)
		return 2
	}
	data := make([]byte, req.DataLen)
	if _, err := io.ReadFull(in, data); err != nil {
		fmt.Fprintf(errw, "reading input: %v\n", err)
		return 2
	}

	// The script sees one more copy of the input as a Starlark value.
	if err := limitMemory(req.Limits.MaxMemory + 2*int64(req.DataLen)); err != nil {
		fmt.Fprintf(errw, "limiting memory: %v\n", err)
		return 2
	}

	var resp childResponse
	text, err := runScript(context.Background(), req.Limits, req.Code, data)
	switch {
	case errors.Is(err, ErrOutputTooLarge):
		resp.Error, resp.Kind = err.Error(), kindOutput
	case err != nil:
		resp.Error, resp.Kind = err.Error(), kindSandbox
	default:
		resp.Text = text
	}
	if err := json.NewEncoder(w).Encode(&resp); err != nil {
		fmt.Fprintf(errw, "writing response: %v\n", err)
		return 2
	}
	return 0
}
