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

// Package crawler walks a tenant's object source and decides, object by
// object, whether it needs to go through the pipeline.
//
// Objects are hashed with BLAKE2b-256. An object whose key already loaded
// with the same hash is skipped, and so is content already loaded under
// another key of the same tenant. Listing failures are fatal to the job;
// a single unreadable object is logged and reported but never stops the crawl.
package crawler
