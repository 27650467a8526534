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

import "errors"

var (
	// ErrNotFound indicates no handler is registered for a signature.
	ErrNotFound = errors.New("no handler for signature")

	// ErrNoText indicates a file holds no extractable text at all.
	ErrNoText = errors.New("no extractable text")

	// ErrCorrupt indicates a file could not be parsed as its format.
	ErrCorrupt = errors.New("corrupt or unsupported file")
)
