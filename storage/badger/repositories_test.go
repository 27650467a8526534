package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepositories(t *testing.T) *Repositories {
	t.Helper()
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos
}

func TestSourceFiles_SaveAndGet(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	file := &core.SourceFile{
		TenantID:    "acme",
		ObjectKey:   "tax/2023.pdf",
		ContentHash: "h1",
		State:       core.FileStateDiscovered,
	}
	require.NoError(t, repos.SourceFiles.SaveSourceFile(ctx, file))
	assert.NotZero(t, file.Id)
	assert.False(t, file.DiscoveredAt.IsZero())

	got, err := repos.SourceFiles.GetSourceFile(ctx, "acme", "tax/2023.pdf")
	require.NoError(t, err)
	assert.Equal(t, "h1", got.ContentHash)
	assert.Equal(t, core.FileStateDiscovered, got.State)

	_, err = repos.SourceFiles.GetSourceFile(ctx, "globex", "tax/2023.pdf")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSourceFiles_RejectsInvalid(t *testing.T) {
	repos := newTestRepositories(t)
	err := repos.SourceFiles.SaveSourceFile(context.Background(), &core.SourceFile{TenantID: "../x", ObjectKey: "a", ContentHash: "h"})
	assert.ErrorIs(t, err, core.ErrInvalidTenant)
}

func TestSourceFiles_FindLoadedByHash(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	file := &core.SourceFile{TenantID: "acme", ObjectKey: "a.txt", ContentHash: "same", State: core.FileStateExtracting}
	require.NoError(t, repos.SourceFiles.SaveSourceFile(ctx, file))

	_, err := repos.SourceFiles.FindLoadedByHash(ctx, "acme", "same")
	assert.ErrorIs(t, err, storage.ErrNotFound, "not loaded yet")

	file.State = core.FileStateLoaded
	require.NoError(t, repos.SourceFiles.SaveSourceFile(ctx, file))

	found, err := repos.SourceFiles.FindLoadedByHash(ctx, "acme", "same")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", found.ObjectKey)

	_, err = repos.SourceFiles.FindLoadedByHash(ctx, "globex", "same")
	assert.ErrorIs(t, err, storage.ErrNotFound, "hash index is tenant scoped")

	// Content changed under the same key: the stale index entry must not match.
	file.ContentHash = "changed"
	file.State = core.FileStateDiscovered
	require.NoError(t, repos.SourceFiles.SaveSourceFile(ctx, file))
	_, err = repos.SourceFiles.FindLoadedByHash(ctx, "acme", "same")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSourceFiles_ListIsTenantScoped(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	for _, key := range []string{"b.txt", "a.txt"} {
		require.NoError(t, repos.SourceFiles.SaveSourceFile(ctx, &core.SourceFile{TenantID: "acme", ObjectKey: key, ContentHash: key}))
	}
	require.NoError(t, repos.SourceFiles.SaveSourceFile(ctx, &core.SourceFile{TenantID: "acme2", ObjectKey: "c.txt", ContentHash: "c"}))

	files, err := repos.SourceFiles.ListSourceFiles(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.txt", files[0].ObjectKey)
	assert.Equal(t, "b.txt", files[1].ObjectKey)
}

func TestJobs_SaveGetList(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"job-old", "job-new"} {
		job := &core.IngestionJob{
			ID:        id,
			TenantID:  "acme",
			Status:    core.JobRunning,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repos.Jobs.SaveJob(ctx, job))
	}

	job, err := repos.Jobs.GetJob(ctx, "job-old")
	require.NoError(t, err)
	job.Status = core.JobCompleted
	job.Counts.Loaded = 3
	require.NoError(t, repos.Jobs.SaveJob(ctx, job))

	got, err := repos.Jobs.GetJob(ctx, "job-old")
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, got.Status)
	assert.Equal(t, 3, got.Counts.Loaded)

	jobs, err := repos.Jobs.ListJobs(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-new", jobs[0].ID, "newest first")

	_, err = repos.Jobs.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHandlers_SaveAndList(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	rec := &core.HandlerRecord{
		TenantID:  "acme",
		Signature: "xyz",
		Origin:    core.HandlerOriginSynthesized,
		State:     core.SynthesisRegistered,
		Code:      "def extract(data):\n    return decode_text(data)\n",
		Version:   1,
	}
	require.NoError(t, repos.Handlers.SaveHandler(ctx, rec))

	got, err := repos.Handlers.GetHandler(ctx, "acme", "xyz")
	require.NoError(t, err)
	assert.Equal(t, rec.Code, got.Code)
	assert.Equal(t, core.SynthesisRegistered, got.State)

	_, err = repos.Handlers.GetHandler(ctx, "globex", "xyz")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	list, err := repos.Handlers.ListHandlers(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDeadLetters_Chronological(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	at := time.Now().UTC()
	require.NoError(t, repos.DeadLetters.AddDeadLetter(ctx, &core.DeadLetter{TenantID: "acme", ObjectKey: "second", SourceFileID: 2, At: at.Add(time.Second)}))
	require.NoError(t, repos.DeadLetters.AddDeadLetter(ctx, &core.DeadLetter{TenantID: "acme", ObjectKey: "first", SourceFileID: 1, At: at}))
	require.NoError(t, repos.DeadLetters.AddDeadLetter(ctx, &core.DeadLetter{TenantID: "globex", ObjectKey: "other", SourceFileID: 3}))

	letters, err := repos.DeadLetters.ListDeadLetters(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, letters, 2)
	assert.Equal(t, "first", letters[0].ObjectKey)
	assert.Equal(t, "second", letters[1].ObjectKey)
}
