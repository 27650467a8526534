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

// Package badger implements the control-plane repositories and a per-tenant
// vector index on BadgerDB.
//
// Key layout:
//
//	srcf:<tenant>:<object key>        source file record
//	srch:<tenant>:<content hash>      object key of the loaded file with that hash
//	job:<id>                          ingestion job
//	jobt:<tenant>:<inverted start>:id tenant job index, newest first
//	hndl:<tenant>:<signature>         synthesized handler record
//	dlq:<tenant>:<micros><file id>    dead letter
//	vec:<chunk id>                    chunk vector (vector index databases only)
//	vdoc:<doc id>:<chunk id>          document to chunk index
package badger
