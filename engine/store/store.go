// Package store reads the profiler's SQLite trace database.
//
// The schema has drifted across profiler versions, so every query is built
// from the columns actually present (PRAGMA table_info). Rows that cannot be
// decoded are skipped and reported as trace.Warning values by Load.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("not found")

// Store is a read-only handle on one trace database.
type Store struct {
	db      *sql.DB
	path    string
	columns map[string]map[string]bool // table -> column set
}

// Open opens the database at path read-only and records its schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening trace database: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening trace database %s: %w", path, err)
	}
	// query_only is per connection
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening trace database %s: %w", path, err)
	}

	s := &Store{db: db, path: path, columns: make(map[string]map[string]bool)}
	if err := s.loadSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the file the store was opened from.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) loadSchema(ctx context.Context) error {
	tables, err := s.TableNames(ctx)
	if err != nil {
		return err
	}
	for _, table := range tables {
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
		if err != nil {
			return fmt.Errorf("reading columns of %s: %w", table, err)
		}
		cols := make(map[string]bool)
		for rows.Next() {
			var (
				cid     int
				name    string
				ctype   sql.NullString
				notNull int
				dflt    sql.NullString
				pk      int
			)
			if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
				_ = rows.Close()
				return fmt.Errorf("reading columns of %s: %w", table, err)
			}
			cols[name] = true
		}
		_ = rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("reading columns of %s: %w", table, err)
		}
		s.columns[table] = cols
		logrus.Debugf("trace db table %s: %d columns", table, len(cols))
	}
	return nil
}

// TableNames lists the tables in the database, sorted.
func (s *Store) TableNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("listing tables: %w", err)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, rows.Err()
}

// HasTable reports whether the table exists.
func (s *Store) HasTable(table string) bool {
	_, ok := s.columns[table]
	return ok
}

func (s *Store) hasColumn(table, column string) bool {
	return s.columns[table][column]
}

// colOrNull returns the column name when present, otherwise a NULL literal,
// so a single SELECT shape can serve every schema version.
func (s *Store) colOrNull(table, column string) string {
	if s.hasColumn(table, column) {
		return column
	}
	return "NULL"
}

// bufferSizeColumn picks the size column of the buffers table.
func (s *Store) bufferSizeColumn() string {
	switch {
	case s.hasColumn("buffers", "max_size"):
		return "max_size"
	case s.hasColumn("buffers", "max_size_per_bank"):
		return "max_size_per_bank"
	}
	return "NULL"
}
