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

package tenants

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/storage"
	"github.com/poiesic/ingestor/storage/badger"
	"github.com/poiesic/ingestor/storage/pgvector"
	"github.com/poiesic/ingestor/storage/sqlite"
)

// VectorIndexFactory opens a tenant's vector index. dir is the tenant's
// private directory.
type VectorIndexFactory func(ctx context.Context, tenant core.TenantID, dir string) (storage.VectorIndex, error)

// BadgerVectors keeps each tenant's vectors in a BadgerDB under dir/vectors.
func BadgerVectors(inMemory bool) VectorIndexFactory {
	return func(_ context.Context, _ core.TenantID, dir string) (storage.VectorIndex, error) {
		return badger.OpenVectorIndex(filepath.Join(dir, "vectors"), inMemory)
	}
}

// PgvectorVectors keeps each tenant's vectors in its own PostgreSQL table.
func PgvectorVectors(pool *pgxpool.Pool) VectorIndexFactory {
	return func(ctx context.Context, tenant core.TenantID, _ string) (storage.VectorIndex, error) {
		return pgvector.New(ctx, pool, tenant)
	}
}

// Provisioner lazily creates and caches the stores of each tenant.
// Every tenant lives under <root>/<tenant>/ and nothing is shared between them.
type Provisioner struct {
	root          string
	vectors       VectorIndexFactory
	sqliteOptions []sqlite.Option
	logger        *slog.Logger

	// mu guards entries and closed only. Provisioning runs outside it so
	// one tenant's slow open never blocks another tenant.
	mu      sync.Mutex
	entries map[core.TenantID]*entry
	closed  bool
}

// entry is one tenant's stores. ready is closed once store or err is set.
type entry struct {
	ready chan struct{}
	store *storage.TenantStore
	err   error
}

var _ storage.TenantProvider = (*Provisioner)(nil)

// Option configures a Provisioner.
type Option func(*Provisioner) error

// WithVectorIndexFactory replaces the default Badger vector backend.
func WithVectorIndexFactory(factory VectorIndexFactory) Option {
	return func(p *Provisioner) error {
		if factory == nil {
			return fmt.Errorf("vector index factory cannot be nil")
		}
		p.vectors = factory
		return nil
	}
}

// WithSQLiteOptions passes options to every tenant's structured store.
func WithSQLiteOptions(opts ...sqlite.Option) Option {
	return func(p *Provisioner) error {
		p.sqliteOptions = append(p.sqliteOptions, opts...)
		return nil
	}
}

// New returns a provisioner rooted at root.
func New(root string, opts ...Option) (*Provisioner, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("creating tenants root: %w", err)
	}
	p := &Provisioner{
		root:    root,
		vectors: BadgerVectors(false),
		logger:  slog.Default().With("component", "tenants"),
		entries: make(map[core.TenantID]*entry),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Open returns the tenant's stores, provisioning them on first use.
// Concurrent callers for the same tenant share one provisioning; other
// tenants are not held up by it.
func (p *Provisioner) Open(ctx context.Context, tenant core.TenantID) (*storage.TenantStore, error) {
	if err := core.ValidateTenantID(tenant); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, storage.ErrStorageClosed
	}
	e, ok := p.entries[tenant]
	if !ok {
		e = &entry{ready: make(chan struct{})}
		p.entries[tenant] = e
	}
	p.mu.Unlock()

	if ok {
		select {
		case <-e.ready:
			return e.store, e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	store, err := p.provision(ctx, tenant)

	p.mu.Lock()
	switch {
	case err != nil:
		delete(p.entries, tenant)
	case p.closed:
		closeStore(store)
		store, err = nil, storage.ErrStorageClosed
	}
	e.store, e.err = store, err
	close(e.ready)
	p.mu.Unlock()
	return store, err
}

// Lookup returns the stores of a tenant that has been provisioned before
// and storage.ErrNotFound for one that has not. It never creates stores.
func (p *Provisioner) Lookup(ctx context.Context, tenant core.TenantID) (*storage.TenantStore, error) {
	if err := core.ValidateTenantID(tenant); err != nil {
		return nil, err
	}
	p.mu.Lock()
	_, ok := p.entries[tenant]
	p.mu.Unlock()
	if !ok {
		if _, err := os.Stat(filepath.Join(p.Dir(tenant), sqlite.DatabaseFile)); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("tenant %s: %w", tenant, storage.ErrNotFound)
			}
			return nil, err
		}
	}
	return p.Open(ctx, tenant)
}

func (p *Provisioner) provision(ctx context.Context, tenant core.TenantID) (*storage.TenantStore, error) {
	dir := p.Dir(tenant)
	structured, err := sqlite.Open(dir, tenant, p.sqliteOptions...)
	if err != nil {
		return nil, fmt.Errorf("opening structured store for %s: %w", tenant, err)
	}
	vectors, err := p.vectors(ctx, tenant, dir)
	if err != nil {
		structured.Close()
		return nil, fmt.Errorf("opening vector index for %s: %w", tenant, err)
	}
	p.logger.Info("tenant stores opened", "tenant", string(tenant), "dir", dir)
	return &storage.TenantStore{Tenant: tenant, Structured: structured, Vectors: vectors}, nil
}

func closeStore(ts *storage.TenantStore) error {
	var firstErr error
	if err := ts.Vectors.Close(); err != nil {
		firstErr = fmt.Errorf("closing vectors of %s: %w", ts.Tenant, err)
	}
	if err := ts.Structured.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing structured store of %s: %w", ts.Tenant, err)
	}
	return firstErr
}

// Dir returns the directory holding a tenant's stores.
func (p *Provisioner) Dir(tenant core.TenantID) string {
	return filepath.Join(p.root, string(tenant))
}

// Tenants lists tenants that have been provisioned on disk, sorted by ID.
func (p *Provisioner) Tenants() ([]core.TenantID, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return nil, err
	}
	var out []core.TenantID
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		tenant := core.TenantID(e.Name())
		if core.ValidateTenantID(tenant) == nil {
			out = append(out, tenant)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Close closes every open tenant store. Stores still being provisioned
// are closed by their Open call once it finishes.
func (p *Provisioner) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var firstErr error
	for _, e := range p.entries {
		select {
		case <-e.ready:
		default:
			continue
		}
		if e.store == nil {
			continue
		}
		if err := closeStore(e.store); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.entries = nil
	return firstErr
}
