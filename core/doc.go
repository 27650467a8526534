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

// Package core defines the domain entities shared by every ingestion stage:
// source files and their state machine, handler records, extracted
// documents, classifications, chunks, jobs and dead letters.
//
// The package has no storage or service dependencies. Identity helpers
// (IDFromContent, SourceFileID, ContentHash) use BLAKE2b so that the same
// tenant, key or bytes always produce the same identifier.
package core
