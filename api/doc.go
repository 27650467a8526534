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

// Package api exposes an Engine over HTTP.
//
// Routes, all JSON:
//
//	GET    /healthz
//	POST   /v1/tenants/{tenant}/jobs          start a job
//	GET    /v1/tenants/{tenant}/jobs          list the tenant's jobs
//	GET    /v1/jobs/{id}                      job status
//	DELETE /v1/jobs/{id}                      cancel a job
//	POST   /v1/tenants/{tenant}/search        similarity search
//	GET    /v1/tenants/{tenant}/handlers      synthesized handlers
//	GET    /v1/tenants/{tenant}/dead-letters  dead-lettered files
package api
