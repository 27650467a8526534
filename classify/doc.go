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

// Package classify assigns documents to a closed category set.
//
// Classification is a cascade of stages. Keyword rules over the object key
// and a text sample run first; when they are not confident enough a hosted
// model picks a category from the set. A failing or unsure cascade
// assigns the fallback category with method fallback.
package classify
