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
	"time"

	"github.com/poiesic/ingestor/core"
)

// JobRequest is the body of a start-job call.
type JobRequest struct {
	Kind      string   `json:"kind,omitempty"`
	Root      string   `json:"root"`
	Prefixes  []string `json:"prefixes,omitempty"`
	Recursive bool     `json:"recursive"`
}

// SearchRequest is the body of a search call.
type SearchRequest struct {
	Query      string   `json:"query"`
	Categories []string `json:"categories,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	MinScore   float32  `json:"min_score,omitempty"`
}

// Job is the wire form of an ingestion job.
type Job struct {
	ID          string         `json:"id"`
	Tenant      string         `json:"tenant"`
	Status      string         `json:"status"`
	Source      JobRequest     `json:"source"`
	Counts      core.JobCounts `json:"counts"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// SearchHit is one search result.
type SearchHit struct {
	Score     float32           `json:"score"`
	ChunkID   string            `json:"chunk_id"`
	DocID     string            `json:"doc_id"`
	ObjectKey string            `json:"object_key"`
	Title     string            `json:"title,omitempty"`
	Category  string            `json:"category"`
	Text      string            `json:"text"`
	Start     int               `json:"start"`
	End       int               `json:"end"`
	Degraded  bool              `json:"degraded,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Handler is the wire form of a synthesized handler record.
type Handler struct {
	Signature string    `json:"signature"`
	Origin    string    `json:"origin"`
	State     string    `json:"state"`
	Version   int       `json:"version"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeadLetter is the wire form of a dead-lettered file.
type DeadLetter struct {
	JobID     string    `json:"job_id"`
	ObjectKey string    `json:"object_key"`
	State     string    `json:"state"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error"`
	At        time.Time `json:"at"`
}

// Error is the body of every non-2xx response.
type Error struct {
	Error string `json:"error"`
}

func toJob(j *core.IngestionJob) Job {
	out := Job{
		ID:     j.ID,
		Tenant: string(j.TenantID),
		Status: j.Status.String(),
		Source: JobRequest{
			Kind:      j.Source.Kind,
			Root:      j.Source.Root,
			Prefixes:  j.Source.Prefixes,
			Recursive: j.Source.Recursive,
		},
		Counts:    j.Counts,
		Error:     j.Error,
		StartedAt: j.StartedAt,
	}
	if !j.CompletedAt.IsZero() {
		completed := j.CompletedAt
		out.CompletedAt = &completed
	}
	return out
}

func toHit(r *core.SearchResult) SearchHit {
	hit := SearchHit{
		Score:   r.Score,
		ChunkID: r.Chunk.ID,
		DocID:   r.Chunk.DocID,
		Text:    r.Chunk.Text,
		Start:   r.Chunk.Span.Start,
		End:     r.Chunk.Span.End,
	}
	if d := r.Document; d != nil {
		hit.ObjectKey = d.ObjectKey
		hit.Title = d.Title
		hit.Category = string(d.Classification.Category)
		hit.Degraded = d.Degraded
		hit.Metadata = d.Metadata
	}
	return hit
}

func toHandler(h *core.HandlerRecord) Handler {
	return Handler{
		Signature: h.Signature,
		Origin:    h.Origin.String(),
		State:     h.State.String(),
		Version:   h.Version,
		Reason:    h.Reason,
		UpdatedAt: h.UpdatedAt,
	}
}

func toDeadLetter(d *core.DeadLetter) DeadLetter {
	return DeadLetter{
		JobID:     d.JobID,
		ObjectKey: d.ObjectKey,
		State:     d.State.String(),
		Attempts:  d.Attempts,
		Error:     d.Error,
		At:        d.At,
	}
}
