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

// Package config loads the ingestor's configuration file.
//
// Files are YAML (.yaml, .yml) or TOML (.toml). Every field is optional;
// values not present in the file keep the component defaults. Environment
// variables written as ${NAME} are expanded before parsing, so secrets such
// as API keys can stay out of the file.
//
//	data_dir: /var/lib/ingestor
//	ai:
//	  host: http://localhost:11434/v1
//	  api_key: ${OPENAI_API_KEY}
//	pipeline:
//	  max_attempts: 5
//	  retry_base_delay: 2s
//	vectors:
//	  backend: pgvector
//	  postgres_url: postgres://ingestor@localhost/vectors
package config
