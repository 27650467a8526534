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

// Package sqlite is the per-tenant structured store. Each tenant gets its
// own SQLite database holding documents, chunks and registered categories.
// Metadata keys seen for the first time are promoted to meta_* columns with
// additive ALTER TABLE statements in the same transaction as the insert.
package sqlite
