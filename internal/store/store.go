// Package store provides database persistence for gyre.
//
// The project database (.gyre/gyre.db by default) mirrors loop records for
// queries and foreign keys, and owns the review-comment log and event
// history. Loop record files stay the source of truth for lifecycle state.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gyrelabs/gyre/internal/store/driver"
)

//go:embed schema/*.sql schema/postgres/*.sql
var schemaFS embed.FS

// embedFSAdapter wraps embed.FS to implement driver.SchemaFS.
type embedFSAdapter struct {
	fs embed.FS
}

func (e *embedFSAdapter) ReadDir(name string) ([]driver.DirEntry, error) {
	entries, err := e.fs.ReadDir(name)
	if err != nil {
		return nil, err
	}
	result := make([]driver.DirEntry, len(entries))
	for i, entry := range entries {
		result[i] = dirEntryAdapter{entry}
	}
	return result, nil
}

func (e *embedFSAdapter) ReadFile(name string) ([]byte, error) {
	return e.fs.ReadFile(name)
}

type dirEntryAdapter struct {
	fs.DirEntry
}

func (d dirEntryAdapter) Name() string {
	return d.DirEntry.Name()
}

func (d dirEntryAdapter) IsDir() bool {
	return d.DirEntry.IsDir()
}

// Store wraps a database connection with the dialect driver.
type Store struct {
	driver driver.Driver
	path   string
}

// Open opens (and migrates) a SQLite store at the given path, creating the
// parent directory if needed.
func Open(path string) (*Store, error) {
	s, err := OpenWithDialect(path, driver.DialectSQLite)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// OpenInMemory opens a migrated in-memory SQLite store. Each call creates
// an isolated database, which keeps tests independent.
func OpenInMemory() (*Store, error) {
	drv := driver.NewSQLite()
	if err := drv.Open(":memory:"); err != nil {
		return nil, err
	}
	s := &Store{driver: drv, path: ":memory:"}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// OpenWithDialect opens a store without migrating it.
func OpenWithDialect(dsn string, dialect driver.Dialect) (*Store, error) {
	if dialect == driver.DialectSQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	drv, err := driver.New(dialect)
	if err != nil {
		return nil, err
	}
	if err := drv.Open(dsn); err != nil {
		return nil, err
	}
	return &Store{driver: drv, path: dsn}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.driver.Close()
}

// Path returns the database DSN/path.
func (s *Store) Path() string {
	return s.path
}

// Dialect returns the database dialect.
func (s *Store) Dialect() driver.Dialect {
	return s.driver.Dialect()
}

// DB returns the underlying sql.DB for advanced operations.
func (s *Store) DB() *sql.DB {
	return s.driver.DB()
}

// Migrate applies pending project schema migrations.
func (s *Store) Migrate() error {
	adapter := &embedFSAdapter{fs: schemaFS}
	return s.driver.Migrate(context.Background(), adapter, "project")
}

// Exec executes a query without returning rows.
func (s *Store) Exec(query string, args ...any) (sql.Result, error) {
	return s.driver.Exec(context.Background(), query, args...)
}

// ExecContext executes a query without returning rows, with context.
func (s *Store) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.driver.Exec(ctx, query, args...)
}

// Query executes a query that returns rows.
func (s *Store) Query(query string, args ...any) (*sql.Rows, error) {
	return s.driver.Query(context.Background(), query, args...)
}

// QueryRow executes a query that returns at most one row.
func (s *Store) QueryRow(query string, args ...any) *sql.Row {
	return s.driver.QueryRow(context.Background(), query, args...)
}

// BeginTx starts a transaction.
func (s *Store) BeginTx(ctx context.Context, opts *sql.TxOptions) (driver.Tx, error) {
	return s.driver.BeginTx(ctx, opts)
}
