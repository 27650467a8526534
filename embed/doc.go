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

// Package embed batches texts to an embedding service.
//
// The Client splits input into batches, retries each batch with
// exponential backoff, throttles calls with a token bucket and bounds
// every call with a timeout. Vectors are validated and normalized to unit
// length. A batch that exhausts its retries marks only its own texts failed.
package embed
