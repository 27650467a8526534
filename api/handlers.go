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

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/search"
)

var errBadRequest = errors.New("bad request")

func tenantParam(r *http.Request) core.TenantID {
	return core.TenantID(chi.URLParam(r, "tenant"))
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

// POST /v1/tenants/{tenant}/jobs
func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Root == "" {
		s.writeError(w, r, fmt.Errorf("%w: root is required", errBadRequest))
		return
	}
	job, err := s.engine.StartJob(r.Context(), tenantParam(r), core.SourceSpec{
		Kind:      req.Kind,
		Root:      req.Root,
		Prefixes:  req.Prefixes,
		Recursive: req.Recursive,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toJob(job))
}

// GET /v1/tenants/{tenant}/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.engine.ListJobs(r.Context(), tenantParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]Job, len(jobs))
	for i, j := range jobs {
		out[i] = toJob(j)
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /v1/jobs/{id}
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.engine.JobStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJob(job))
}

// DELETE /v1/jobs/{id}
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.CancelJob(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /v1/tenants/{tenant}/search
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	categories := make([]core.Category, len(req.Categories))
	for i, c := range req.Categories {
		categories[i] = core.Category(c)
	}
	results, err := s.engine.Search(r.Context(), search.Query{
		Tenant:     tenantParam(r),
		Text:       req.Query,
		Categories: categories,
		Limit:      req.Limit,
		MinScore:   req.MinScore,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]SearchHit, len(results))
	for i, res := range results {
		out[i] = toHit(res)
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /v1/tenants/{tenant}/handlers
func (s *Server) handleHandlers(w http.ResponseWriter, r *http.Request) {
	records, err := s.engine.Handlers(r.Context(), tenantParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]Handler, len(records))
	for i, h := range records {
		out[i] = toHandler(h)
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /v1/tenants/{tenant}/dead-letters
func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	letters, err := s.engine.DeadLetters(r.Context(), tenantParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]DeadLetter, len(letters))
	for i, d := range letters {
		out[i] = toDeadLetter(d)
	}
	writeJSON(w, http.StatusOK, out)
}
