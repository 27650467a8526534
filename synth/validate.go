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
	"fmt"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// entryPoint is the function every handler script must define.
const entryPoint = "extract"

// scriptName is the file name reported in Starlark errors.
const scriptName = "handler.star"

// denied names are rejected even if a script defines them itself.
var denied = map[string]bool{
	"open":       true,
	"exec":       true,
	"eval":       true,
	"compile":    true,
	"input":      true,
	"globals":    true,
	"locals":     true,
	"__import__": true,
}

// Validate statically checks a handler script without running it.
//
// A script is accepted when it parses, contains no load statements, uses
// no denied identifier, defines extract(data) at top level and refers only
// to its own names, the sandbox builtins and the Starlark universe.
func Validate(code string, maxSourceBytes int) error {
	if len(code) == 0 {
		return fmt.Errorf("%w: empty script", ErrInvalidScript)
	}
	if maxSourceBytes > 0 && len(code) > maxSourceBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrInvalidScript, len(code), maxSourceBytes)
	}

	f, err := syntax.Parse(scriptName, code, 0)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}

	hasEntry := false
	for _, stmt := range f.Stmts {
		switch s := stmt.(type) {
		case *syntax.LoadStmt:
			return fmt.Errorf("%w: load statements are not allowed", ErrInvalidScript)
		case *syntax.DefStmt:
			if s.Name.Name == entryPoint {
				if len(s.Params) != 1 {
					return fmt.Errorf("%w: %s must take exactly one parameter", ErrInvalidScript, entryPoint)
				}
				hasEntry = true
			}
		}
	}
	if !hasEntry {
		return fmt.Errorf("%w: no top-level %s(data) function", ErrInvalidScript, entryPoint)
	}

	var bad string
	syntax.Walk(f, func(n syntax.Node) bool {
		if id, ok := n.(*syntax.Ident); ok && denied[id.Name] && bad == "" {
			bad = id.Name
		}
		return bad == ""
	})
	if bad != "" {
		return fmt.Errorf("%w: identifier %q is not allowed", ErrInvalidScript, bad)
	}

	if err := resolve.File(f, builtins.Has, starlark.Universe.Has); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}
	return nil
}
