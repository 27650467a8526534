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

// Package loader writes classified, chunked and embedded documents into a
// tenant's structured store and vector index.
//
// The structured write happens first. If the vector upsert then fails the
// structured rows are deleted again, so a reader never sees a document in
// one store but not the other. Writes are serialized per tenant table and
// run in parallel across tenants.
package loader
