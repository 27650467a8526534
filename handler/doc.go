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

// Package handler turns raw file bytes into normalized text.
//
// A Registry maps format signatures (a lowercased extension, a magic-byte
// signature or "mime:<type>") to handlers. Built-in handlers cover text,
// markdown, source code, delimited files, spreadsheets, JSON, HTML, XML,
// PDF and office documents, plus images when a vision model is available.
// Signatures nothing handles are either synthesized per tenant (see the
// synth package) or passed to the BestEffort fallback.
package handler
