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

package classify

import "errors"

var (
	// ErrNoCategories indicates a classifier was configured with an empty category set.
	ErrNoCategories = errors.New("category set cannot be empty")

	// ErrUnknownCategory indicates a stage answered with a category outside the set.
	ErrUnknownCategory = errors.New("category not in configured set")

	// ErrModelRequired indicates a model stage was built without a model.
	ErrModelRequired = errors.New("category model required")
)
