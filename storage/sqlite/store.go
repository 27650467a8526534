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

package sqlite

import (
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/storage"
	"github.com/poiesic/ingestor/storage/sqlite/migrations"
)

// DatabaseFile is the file name of a tenant's table store inside its directory.
const DatabaseFile = "tables.db"

// defaultMaxMetadataColumns caps how many metadata keys are promoted to columns.
// Keys past the cap are still kept in the metadata blob.
const defaultMaxMetadataColumns = 64

// Store implements storage.StructuredStore on one SQLite database per tenant.
type Store struct {
	db     *sql.DB
	path   string
	tenant core.TenantID
	logger *slog.Logger

	maxMetadataColumns int

	mu      sync.Mutex
	columns map[string]bool // promoted metadata columns, keyed by column name
}

var _ storage.StructuredStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithMaxMetadataColumns sets how many metadata keys may become columns.
func WithMaxMetadataColumns(n int) Option {
	return func(s *Store) error {
		if n < 0 {
			return fmt.Errorf("max metadata columns must be >= 0, got %d", n)
		}
		s.maxMetadataColumns = n
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// Open opens or creates the table store for tenant inside dir and applies
// pending migrations.
//
// Returns storage.StructuredStore interface to enforce abstraction.
func Open(dir string, tenant core.TenantID, opts ...Option) (storage.StructuredStore, error) {
	return open(dir, tenant, opts...)
}

func open(dir string, tenant core.TenantID, opts ...Option) (*Store, error) {
	if err := core.ValidateTenantID(tenant); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating tenant directory: %w", err)
	}

	dbPath := filepath.Join(dir, DatabaseFile)
	// WAL for concurrent readers; foreign keys must be enabled per connection.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:                 db,
		path:               dbPath,
		tenant:             tenant,
		logger:             slog.Default().With("component", "sqlite-store", "tenant", string(tenant)),
		maxMetadataColumns: defaultMaxMetadataColumns,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := s.loadColumns(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		s.logger.Debug("applied migration", "version", version)
	}
	return nil
}
