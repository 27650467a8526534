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

// Package ai defines the narrow contracts the pipeline needs from hosted
// model services.
//
// Four services are consumed:
//
//   - Embedder: asymmetric text embeddings (query vs. document mode)
//   - CategoryModel: picks a category from a closed set for ambiguous documents
//   - CodeGenerator: writes extraction scripts for unknown file formats
//   - ImageTranscriber: reads text out of images (optional)
//
// ai/openai implements them against OpenAI-compatible endpoints using
// langchaingo; ai/mock provides deterministic, call-counting doubles.
//
// Public constructors return interfaces. Mock constructors return concrete
// types so tests can inject behavior and read call counts:
//
//	provider := mock.NewMockProvider()
//	provider.GetMockCategoryModel().ClassifyFunc = ...
//	calls := provider.GetMockCategoryModel().CallCount()
package ai
