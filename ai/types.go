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

package ai

import "errors"

// ErrMalformedResponse is returned when a model answer cannot be parsed.
var ErrMalformedResponse = errors.New("malformed model response")

// ClassifyRequest is the bounded input sent to a CategoryModel.
type ClassifyRequest struct {
	Filename   string
	Path       string
	Excerpt    string
	Categories []string // The closed set the answer must come from
}

// CategoryAnswer is a model's classification.
// Confidence is zero when the model did not report one.
type CategoryAnswer struct {
	Category   string
	Confidence float64
	Rationale  string
}

// CodeRequest asks for an extraction routine.
type CodeRequest struct {
	Signature string
	Sample    []byte // Bounded prefix of the triggering file

	// Feedback and PreviousCode are set when an earlier attempt was rejected.
	Feedback     string
	PreviousCode string
}
