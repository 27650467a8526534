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

// Package synth synthesizes extraction handlers for unknown file formats.
//
// A code generation model is asked for a Starlark script defining
// extract(data). The script is validated statically, run against a sample
// of the triggering file inside a sandbox, and registered per tenant when
// it produces enough text. The sandbox is a child process running this
// executable again (see ChildMain) with a capped data segment, plus step,
// time and output limits on the interpreter.
// Records move through generating, validating and sandbox_testing to
// registered or rejected, and every transition is persisted.
package synth
