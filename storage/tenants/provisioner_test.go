package tenants

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvisioner_OpenCachesHandles(t *testing.T) {
	p, err := New(t.TempDir(), WithVectorIndexFactory(BadgerVectors(true)))
	require.NoError(t, err)
	defer p.Close()
	ctx := context.Background()

	a1, err := p.Open(ctx, "acme")
	require.NoError(t, err)
	a2, err := p.Open(ctx, "acme")
	require.NoError(t, err)
	assert.Same(t, a1, a2)

	g, err := p.Open(ctx, "globex")
	require.NoError(t, err)
	assert.NotSame(t, a1.Structured, g.Structured)

	tenants, err := p.Tenants()
	require.NoError(t, err)
	assert.Equal(t, []core.TenantID{"acme", "globex"}, tenants)
}

func TestProvisioner_RejectsInvalidTenant(t *testing.T) {
	p, err := New(t.TempDir())
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Open(context.Background(), "../escape")
	assert.ErrorIs(t, err, core.ErrInvalidTenant)
}

func TestProvisioner_TenantsAreIsolated(t *testing.T) {
	p, err := New(t.TempDir(), WithVectorIndexFactory(BadgerVectors(true)))
	require.NoError(t, err)
	defer p.Close()
	ctx := context.Background()

	acme, err := p.Open(ctx, "acme")
	require.NoError(t, err)
	globex, err := p.Open(ctx, "globex")
	require.NoError(t, err)

	doc := &core.DocumentRecord{DocID: "d1", TenantID: "acme", ObjectKey: "a.txt", ContentHash: "h",
		Classification: core.Classification{Category: core.CategoryGeneral}}
	chunk := &core.Chunk{ID: "d1:00000", DocID: "d1", TenantID: "acme", Text: "hi", Span: core.Span{End: 2}}
	require.NoError(t, acme.Structured.InsertDocument(ctx, doc, []*core.Chunk{chunk}))
	require.NoError(t, acme.Vectors.Upsert(ctx, []storage.VectorEntry{{ChunkID: chunk.ID, DocID: "d1", Vector: []float32{1, 0}}}))

	n, err := globex.Structured.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = globex.Vectors.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = globex.Structured.GetDocument(ctx, "d1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProvisioner_VectorFactoryFailureClosesStructured(t *testing.T) {
	boom := errors.New("boom")
	p, err := New(t.TempDir(), WithVectorIndexFactory(func(context.Context, core.TenantID, string) (storage.VectorIndex, error) {
		return nil, boom
	}))
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Open(context.Background(), "acme")
	assert.ErrorIs(t, err, boom)
}

func TestProvisioner_OpenAfterClose(t *testing.T) {
	p, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = p.Open(context.Background(), "acme")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

// gatedVectors blocks provisioning of tenant slow until release is closed.
func gatedVectors(started chan<- struct{}, release <-chan struct{}) VectorIndexFactory {
	inner := BadgerVectors(true)
	return func(ctx context.Context, tenant core.TenantID, dir string) (storage.VectorIndex, error) {
		if tenant == "slow" {
			close(started)
			<-release
		}
		return inner(ctx, tenant, dir)
	}
}

func TestProvisioner_SlowTenantDoesNotBlockOthers(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	p, err := New(t.TempDir(), WithVectorIndexFactory(gatedVectors(started, release)))
	require.NoError(t, err)
	defer p.Close()

	fast, err := p.Open(context.Background(), "fast")
	require.NoError(t, err)

	slowDone := make(chan error, 1)
	go func() {
		_, err := p.Open(context.Background(), "slow")
		slowDone <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	again, err := p.Open(ctx, "fast")
	require.NoError(t, err, "a cached tenant must not wait for another tenant's provisioning")
	assert.Same(t, fast, again)
	_, err = p.Open(ctx, "other")
	require.NoError(t, err, "a new tenant must not wait for another tenant's provisioning")

	select {
	case <-slowDone:
		t.Fatal("slow tenant finished before release")
	default:
	}
	close(release)
	require.NoError(t, <-slowDone)
}

func TestProvisioner_ConcurrentOpenProvisionsOnce(t *testing.T) {
	var calls atomic.Int32
	inner := BadgerVectors(true)
	p, err := New(t.TempDir(), WithVectorIndexFactory(func(ctx context.Context, tenant core.TenantID, dir string) (storage.VectorIndex, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return inner(ctx, tenant, dir)
	}))
	require.NoError(t, err)
	defer p.Close()

	const n = 8
	stores := make([]*storage.TenantStore, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts, err := p.Open(context.Background(), "acme")
			assert.NoError(t, err)
			stores[i] = ts
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, ts := range stores[1:] {
		assert.Same(t, stores[0], ts)
	}
}

func TestProvisioner_FailedOpenIsRetried(t *testing.T) {
	var calls atomic.Int32
	inner := BadgerVectors(true)
	p, err := New(t.TempDir(), WithVectorIndexFactory(func(ctx context.Context, tenant core.TenantID, dir string) (storage.VectorIndex, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		return inner(ctx, tenant, dir)
	}))
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Open(context.Background(), "acme")
	require.Error(t, err)
	ts, err := p.Open(context.Background(), "acme")
	require.NoError(t, err)
	assert.NotNil(t, ts)
	assert.Equal(t, int32(2), calls.Load())
}

func TestProvisioner_CloseDuringProvisioning(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	p, err := New(t.TempDir(), WithVectorIndexFactory(gatedVectors(started, release)))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := p.Open(context.Background(), "slow")
		done <- err
	}()
	<-started
	require.NoError(t, p.Close())
	close(release)
	assert.ErrorIs(t, <-done, storage.ErrStorageClosed)
}

func TestProvisioner_Lookup(t *testing.T) {
	root := t.TempDir()
	p, err := New(root)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = p.Lookup(ctx, "acme")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	tenants, err := p.Tenants()
	require.NoError(t, err)
	assert.Empty(t, tenants, "lookup must not provision")

	_, err = p.Lookup(ctx, "../escape")
	assert.ErrorIs(t, err, core.ErrInvalidTenant)

	opened, err := p.Open(ctx, "acme")
	require.NoError(t, err)
	found, err := p.Lookup(ctx, "acme")
	require.NoError(t, err)
	assert.Same(t, opened, found)
	require.NoError(t, p.Close())

	reopened, err := New(root)
	require.NoError(t, err)
	defer reopened.Close()
	found, err = reopened.Lookup(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, core.TenantID("acme"), found.Tenant)
}
