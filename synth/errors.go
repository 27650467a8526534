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

import "errors"

var (
	// ErrRejected indicates synthesis failed for a signature, now or within
	// the rejection TTL. Callers fall back to the best-effort handler.
	ErrRejected = errors.New("handler synthesis rejected")

	// ErrInvalidScript indicates generated code failed static validation.
	ErrInvalidScript = errors.New("invalid handler script")

	// ErrSandbox indicates a script failed while running in the sandbox.
	ErrSandbox = errors.New("sandbox execution failed")

	// ErrMemoryLimit indicates a script was stopped for exceeding its memory cap.
	ErrMemoryLimit = errors.New("handler exceeded memory limit")

	// ErrOutputTooLarge indicates a script produced more text than allowed.
	ErrOutputTooLarge = errors.New("handler output too large")

	// ErrTooLittleText indicates a script produced less text than the minimum.
	ErrTooLittleText = errors.New("handler output below minimum length")

	// ErrGeneratorRequired indicates a synthesizer was built without a code generator.
	ErrGeneratorRequired = errors.New("code generator required")

	// ErrRepositoryRequired indicates a synthesizer was built without a handler repository.
	ErrRepositoryRequired = errors.New("handler repository required")

	// ErrRegistryRequired indicates a synthesizer was built without a registry.
	ErrRegistryRequired = errors.New("handler registry required")
)
