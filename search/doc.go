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

// Package search answers tenant-scoped similarity queries over ingested
// documents.
//
// A query is embedded in query mode, matched against the tenant's vector
// index (optionally narrowed to categories) and joined back to chunk and
// document rows from the tenant's structured store. Chunks that contain
// every significant query word get a small verbatim boost.
package search
