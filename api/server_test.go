package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/crawler"
	"github.com/poiesic/ingestor/ingestion"
	"github.com/poiesic/ingestor/search"
)

// fakeEngine answers from fixed data and records the last call's arguments.
type fakeEngine struct {
	jobs        map[string]*core.IngestionJob
	startErr    error
	lastSpec    core.SourceSpec
	lastQuery   search.Query
	cancelled   []string
	results     []*core.SearchResult
	handlers    []*core.HandlerRecord
	deadLetters []*core.DeadLetter
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{jobs: make(map[string]*core.IngestionJob)}
}

func (f *fakeEngine) StartJob(_ context.Context, tenant core.TenantID, spec core.SourceSpec) (*core.IngestionJob, error) {
	if err := core.ValidateTenantID(tenant); err != nil {
		return nil, err
	}
	f.lastSpec = spec
	if f.startErr != nil {
		return nil, f.startErr
	}
	job := &core.IngestionJob{
		ID:        fmt.Sprintf("job-%d", len(f.jobs)+1),
		TenantID:  tenant,
		Source:    spec,
		Status:    core.JobRunning,
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeEngine) JobStatus(_ context.Context, id string) (*core.IngestionJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ingestion.ErrJobNotFound, id)
	}
	return job, nil
}

func (f *fakeEngine) ListJobs(_ context.Context, tenant core.TenantID) ([]*core.IngestionJob, error) {
	var out []*core.IngestionJob
	for _, j := range f.jobs {
		if j.TenantID == tenant {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeEngine) CancelJob(ctx context.Context, id string) error {
	if _, err := f.JobStatus(ctx, id); err != nil {
		return err
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeEngine) Search(_ context.Context, q search.Query) ([]*core.SearchResult, error) {
	f.lastQuery = q
	if strings.TrimSpace(q.Text) == "" {
		return nil, search.ErrEmptyQuery
	}
	return f.results, nil
}

func (f *fakeEngine) Handlers(_ context.Context, tenant core.TenantID) ([]*core.HandlerRecord, error) {
	if err := core.ValidateTenantID(tenant); err != nil {
		return nil, err
	}
	return f.handlers, nil
}

func (f *fakeEngine) DeadLetters(_ context.Context, _ core.TenantID) ([]*core.DeadLetter, error) {
	return f.deadLetters, nil
}

func newTestServer(t *testing.T, engine Engine) *httptest.Server {
	t.Helper()
	s, err := New(engine)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestStartJobAndStatus(t *testing.T) {
	engine := newFakeEngine()
	srv := newTestServer(t, engine)

	resp := do(t, http.MethodPost, srv.URL+"/v1/tenants/acme/jobs", `{"root":"/data/acme","prefixes":["invoices/"],"recursive":true}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	job := decodeBody[Job](t, resp)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, "acme", job.Tenant)
	assert.Equal(t, "running", job.Status)
	assert.Nil(t, job.CompletedAt)
	assert.Equal(t, core.SourceSpec{Root: "/data/acme", Prefixes: []string{"invoices/"}, Recursive: true}, engine.lastSpec)

	resp = do(t, http.MethodGet, srv.URL+"/v1/jobs/job-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "job-1", decodeBody[Job](t, resp).ID)

	resp = do(t, http.MethodGet, srv.URL+"/v1/tenants/acme/jobs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]Job](t, resp), 1)

	resp = do(t, http.MethodDelete, srv.URL+"/v1/jobs/job-1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"job-1"}, engine.cancelled)
}

func TestErrorStatuses(t *testing.T) {
	engine := newFakeEngine()
	srv := newTestServer(t, engine)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		setup  func()
		status int
	}{
		{"unknown job", http.MethodGet, "/v1/jobs/missing", "", nil, http.StatusNotFound},
		{"cancel unknown job", http.MethodDelete, "/v1/jobs/missing", "", nil, http.StatusNotFound},
		{"invalid tenant", http.MethodPost, "/v1/tenants/Bad%20Tenant/jobs", `{"root":"/x"}`, nil, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/v1/tenants/acme/jobs", `{"root":`, nil, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/tenants/acme/jobs", `{"root":"/x","bucket":"b"}`, nil, http.StatusBadRequest},
		{"missing root", http.MethodPost, "/v1/tenants/acme/jobs", `{}`, nil, http.StatusBadRequest},
		{"empty query", http.MethodPost, "/v1/tenants/acme/search", `{"query":" "}`, nil, http.StatusBadRequest},
		{
			"unreachable source", http.MethodPost, "/v1/tenants/acme/jobs", `{"root":"/gone"}`,
			func() { engine.startErr = fmt.Errorf("%w: no such dir", crawler.ErrSourceUnreachable) },
			http.StatusUnprocessableEntity,
		},
		{
			"released", http.MethodPost, "/v1/tenants/acme/jobs", `{"root":"/x"}`,
			func() { engine.startErr = ingestion.ErrReleased },
			http.StatusServiceUnavailable,
		},
		{
			"internal", http.MethodPost, "/v1/tenants/acme/jobs", `{"root":"/x"}`,
			func() { engine.startErr = errors.New("disk on fire") },
			http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine.startErr = nil
			if tt.setup != nil {
				tt.setup()
			}
			resp := do(t, tt.method, srv.URL+tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, decodeBody[Error](t, resp).Error)
		})
	}
}

func TestSearch(t *testing.T) {
	engine := newFakeEngine()
	engine.results = []*core.SearchResult{{
		Chunk: &core.Chunk{ID: "d1:00000", DocID: "d1", Text: "invoice due", Span: core.Span{Start: 0, End: 11}},
		Document: &core.DocumentRecord{
			DocID:          "d1",
			ObjectKey:      "invoices/a.pdf",
			Title:          "A",
			Classification: core.Classification{Category: core.CategoryFinance},
			Metadata:       map[string]string{"author": "kim"},
		},
		Score: 0.9,
	}}
	srv := newTestServer(t, engine)

	resp := do(t, http.MethodPost, srv.URL+"/v1/tenants/acme/search", `{"query":"invoice","categories":["finance"],"limit":5,"min_score":0.2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	hits := decodeBody[[]SearchHit](t, resp)
	require.Len(t, hits, 1)
	assert.Equal(t, SearchHit{
		Score:     0.9,
		ChunkID:   "d1:00000",
		DocID:     "d1",
		ObjectKey: "invoices/a.pdf",
		Title:     "A",
		Category:  "finance",
		Text:      "invoice due",
		Start:     0,
		End:       11,
		Metadata:  map[string]string{"author": "kim"},
	}, hits[0])

	assert.Equal(t, search.Query{
		Tenant:     "acme",
		Text:       "invoice",
		Categories: []core.Category{core.CategoryFinance},
		Limit:      5,
		MinScore:   0.2,
	}, engine.lastQuery)
}

func TestHandlersAndDeadLetters(t *testing.T) {
	engine := newFakeEngine()
	engine.handlers = []*core.HandlerRecord{{
		TenantID:  "acme",
		Signature: ".xyz",
		Origin:    core.HandlerOriginSynthesized,
		State:     core.SynthesisRegistered,
		Version:   1,
	}}
	engine.deadLetters = []*core.DeadLetter{{
		TenantID:  "acme",
		JobID:     "job-1",
		ObjectKey: "blob.bin",
		State:     core.FileStateExtractionFailed,
		Attempts:  3,
		Error:     "no text",
	}}
	srv := newTestServer(t, engine)

	resp := do(t, http.MethodGet, srv.URL+"/v1/tenants/acme/handlers", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	handlers := decodeBody[[]Handler](t, resp)
	require.Len(t, handlers, 1)
	assert.Equal(t, ".xyz", handlers[0].Signature)
	assert.Equal(t, core.SynthesisRegistered.String(), handlers[0].State)

	resp = do(t, http.MethodGet, srv.URL+"/v1/tenants/acme/dead-letters", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	letters := decodeBody[[]DeadLetter](t, resp)
	require.Len(t, letters, 1)
	assert.Equal(t, "blob.bin", letters[0].ObjectKey)
	assert.Equal(t, 3, letters[0].Attempts)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, newFakeEngine())
	resp := do(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestListenAndServe_ShutsDownOnCancel(t *testing.T) {
	s, err := New(newFakeEngine())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0", time.Second) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestNew_RequiresEngine(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
