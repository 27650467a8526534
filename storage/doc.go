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

// Package storage provides the storage abstraction layer for the ingestion engine.
//
// Two kinds of storage are involved:
//
//   - Control-plane repositories hold pipeline state: SourceFileRepository,
//     JobRepository, HandlerRepository and DeadLetterRepository. They are
//     shared across tenants and every key they write is prefixed by tenant.
//   - Tenant stores hold the ingested output: a StructuredStore (document and
//     chunk tables) and a VectorIndex (chunk embeddings). A TenantProvider
//     hands out one pair per tenant, provisioning it on first use. There is
//     no API that reads or writes two tenants' stores at once.
//
// # Constructor Return Type Pattern
//
// Public constructors return the interfaces defined here:
//
//	files, err := badger.NewSourceFileRepository(backend) // storage.SourceFileRepository
//
// Internal constructors may return concrete types since they're only used
// within the implementation package.
//
// # Serialization
//
// Control-plane records are encoded with MUS primitives (see
// serialization.go). Each record starts with a version byte.
//
// # Thread Safety
//
// All implementations must be thread-safe. Every method accepts a
// context.Context for cancellation.
package storage
