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

package crawler

import "errors"

var (
	// ErrSourceUnreachable indicates a source could not be listed. It is fatal to the job.
	ErrSourceUnreachable = errors.New("source unreachable")

	// ErrObjectTooLarge indicates an object exceeds the configured size limit.
	ErrObjectTooLarge = errors.New("object too large")

	// ErrUnknownSourceKind indicates no opener is registered for a source kind.
	ErrUnknownSourceKind = errors.New("unknown source kind")
)
