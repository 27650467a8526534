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

package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/ingestor/core"
)

// ObjectInfo describes one object in a source listing.
type ObjectInfo struct {
	Key     string // Slash-separated, relative to the source root
	Size    int64
	ModTime time.Time
}

// ObjectSource is a tenant's raw object store.
type ObjectSource interface {
	// List returns the objects under prefix. With recursive false only
	// objects directly under prefix are returned.
	List(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error)

	// Get opens an object for reading.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Opener turns a job's source description into an ObjectSource.
type Opener func(spec core.SourceSpec) (ObjectSource, error)

// DefaultOpener understands the "fs" kind, rooted at spec.Root.
func DefaultOpener(spec core.SourceSpec) (ObjectSource, error) {
	switch spec.Kind {
	case "", "fs":
		return OpenDir(spec.Root)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSourceKind, spec.Kind)
}

// FSSource serves objects from an fs.FS. Hidden files and directories
// (names starting with '.') are not listed.
type FSSource struct {
	fsys fs.FS
	root *os.Root // nil unless opened with OpenDir
}

var _ ObjectSource = (*FSSource)(nil)

// NewFSSource wraps fsys.
func NewFSSource(fsys fs.FS) *FSSource {
	return &FSSource{fsys: fsys}
}

// OpenDir returns a source over a local directory. Keys cannot escape dir.
func OpenDir(dir string) (*FSSource, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
	}
	return &FSSource{fsys: root.FS(), root: root}, nil
}

// Close releases the directory handle of a source opened with OpenDir.
func (s *FSSource) Close() error {
	if s.root == nil {
		return nil
	}
	return s.root.Close()
}

// List walks prefix, which names a directory relative to the root.
func (s *FSSource) List(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error) {
	dir := strings.Trim(prefix, "/")
	if dir == "" {
		dir = "."
	}
	if !fs.ValidPath(dir) {
		return nil, fmt.Errorf("invalid prefix %q", prefix)
	}

	var out []ObjectInfo
	err := fs.WalkDir(s.fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p != dir && isHidden(d.Name()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != dir && !recursive {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, ObjectInfo{Key: p, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get opens the object at key.
func (s *FSSource) Get(_ context.Context, key string) (io.ReadCloser, error) {
	return s.fsys.Open(key)
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// MemorySource is an in-memory ObjectSource. Failures can be injected per
// prefix or key.
type MemorySource struct {
	mu       sync.RWMutex
	objects  map[string][]byte
	listErr  map[string]error
	getErr   map[string]error
	getCalls map[string]int
}

var _ ObjectSource = (*MemorySource)(nil)

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		objects:  make(map[string][]byte),
		listErr:  make(map[string]error),
		getErr:   make(map[string]error),
		getCalls: make(map[string]int),
	}
}

// Put stores data under key.
func (m *MemorySource) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
}

// Delete removes key.
func (m *MemorySource) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
}

// FailList makes List of prefix return err.
func (m *MemorySource) FailList(prefix string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr[prefix] = err
}

// FailGet makes Get of key return err.
func (m *MemorySource) FailGet(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr[key] = err
}

// GetCalls returns how often key was read.
func (m *MemorySource) GetCalls(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCalls[key]
}

// List returns keys under prefix in sorted order.
func (m *MemorySource) List(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.listErr[prefix]; err != nil {
		return nil, err
	}

	var out []ObjectInfo
	for key, data := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if !recursive && strings.Contains(strings.TrimPrefix(key, prefix), "/") {
			continue
		}
		if isHidden(path.Base(key)) {
			continue
		}
		out = append(out, ObjectInfo{Key: key, Size: int64(len(data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Get returns a reader over a copy of the stored bytes.
func (m *MemorySource) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls[key]++
	if err := m.getErr[key]; err != nil {
		return nil, err
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, fs.ErrNotExist)
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

// ReadObject reads at most maxSize bytes of key from src.
func ReadObject(ctx context.Context, src ObjectSource, key string, maxSize int64) ([]byte, error) {
	rc, err := src.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	r := io.Reader(rc)
	if maxSize > 0 {
		r = io.LimitReader(rc, maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrObjectTooLarge, key, maxSize)
	}
	return data, nil
}

// IsNotExist reports whether err means the object is gone.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
