package storage

import (
	"testing"
	"time"

	"github.com/poiesic/ingestor/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceFileRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	in := &core.SourceFile{
		Id:           core.SourceFileID("acme", "docs/a.pdf"),
		TenantID:     "acme",
		ObjectKey:    "docs/a.pdf",
		ContentHash:  core.ContentHash([]byte("pdf bytes")),
		Size:         9,
		Signature:    "pdf",
		State:        core.FileStateLoadFailed,
		Attempts:     2,
		LastError:    "vector upsert: timeout",
		JobID:        "job-1",
		DocID:        "doc-1",
		Degraded:     true,
		DeadLettered: false,
		DiscoveredAt: now,
	}

	out, err := UnmarshalSourceFile(MarshalSourceFile(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestJobRoundTripKeepsCountsAndPrefixes(t *testing.T) {
	in := &core.IngestionJob{
		ID:       "job-7",
		TenantID: "acme",
		Source:   core.SourceSpec{Kind: "fs", Root: "/srv/acme", Prefixes: []string{"hr/", "tax/"}, Recursive: true},
		Status:   core.JobCompleted,
		Counts:   core.JobCounts{Discovered: 5, Skipped: 1, Extracted: 4, Loaded: 3, DeadLettered: 1, Failed: 1, FailedAttempts: 3},
	}

	out, err := UnmarshalJob(MarshalJob(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestVectorEntryRoundTrip(t *testing.T) {
	in := &VectorEntry{ChunkID: "d:00001", DocID: "d", Category: core.CategoryLegal, Vector: []float32{0.25, -1, 3.5}}

	out, err := UnmarshalVectorEntry(MarshalVectorEntry(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestMetadataIsDeterministic(t *testing.T) {
	m := map[string]string{"b": "2", "a": "1", "c": "3"}
	first := MarshalMetadata(m)
	for range 10 {
		assert.Equal(t, first, MarshalMetadata(m))
	}
	out, err := UnmarshalMetadata(first)
	require.NoError(t, err)
	assert.Equal(t, m, out)
}

func TestUnmarshalRejectsBadInput(t *testing.T) {
	_, err := UnmarshalHandler(nil)
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalHandler([]byte{99, 1, 2})
	assert.ErrorIs(t, err, ErrSerializationFailed)

	data := MarshalDeadLetter(&core.DeadLetter{TenantID: "acme", JobID: "j", ObjectKey: "k", Error: "boom"})
	_, err = UnmarshalDeadLetter(data[:len(data)/2])
	assert.ErrorIs(t, err, ErrSerializationFailed)
}
