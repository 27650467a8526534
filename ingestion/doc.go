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

// Package ingestion runs ingestion jobs.
//
// An Orchestrator crawls a tenant's source and moves every discovered file
// through extraction, classification, chunking, embedding and loading. Each
// stage is an ants worker pool fed by a bounded channel, so a slow stage
// throttles the ones before it down to the crawler. Every state change of a
// file is persisted; a failed stage is retried with exponential backoff and
// the file is dead-lettered once its attempts are spent. One file's failure
// never aborts the others.
//
// Jobs complete when every discovered file is loaded or dead-lettered. Only
// an unreachable source fails a job. Cancelling a job lets in-flight units
// finish their current step and leaves files where they are, so the next
// job over the same source resumes them.
package ingestion
