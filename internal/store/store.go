package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer shared by the symbol index and the
// TU cache.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
-- Index tables

CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  language        TEXT NOT NULL,
  content_hash    TEXT NOT NULL,
  config_hash     TEXT NOT NULL,
  stale           BOOLEAN NOT NULL DEFAULT FALSE,
  last_indexed    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS symbols (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  qualified_name  TEXT NOT NULL,
  name            TEXT NOT NULL,
  kind            TEXT NOT NULL,
  language        TEXT NOT NULL,
  signature       TEXT,
  modifiers       TEXT,
  signature_hash  TEXT,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE TABLE IF NOT EXISTS occurrences (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  name            TEXT NOT NULL,
  simple_name     TEXT NOT NULL,
  scope           TEXT NOT NULL DEFAULT '',
  enclosing       TEXT NOT NULL DEFAULT '',
  context         TEXT NOT NULL,
  access          TEXT NOT NULL,
  line            INTEGER,
  col             INTEGER
);

-- Cache tables

CREATE TABLE IF NOT EXISTS cache_entries (
  path            TEXT NOT NULL,
  content_hash    TEXT NOT NULL,
  config_hash     TEXT NOT NULL,
  data            BLOB NOT NULL,
  size            INTEGER NOT NULL,
  created_at      INTEGER NOT NULL,
  last_used       INTEGER NOT NULL,
  PRIMARY KEY (path, content_hash, config_hash)
);

-- Indexes

CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id);
CREATE INDEX IF NOT EXISTS idx_symbols_qname ON symbols(qualified_name);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_kind ON symbols(kind);
CREATE INDEX IF NOT EXISTS idx_occurrences_file ON occurrences(file_id);
CREATE INDEX IF NOT EXISTS idx_occurrences_simple ON occurrences(simple_name);
CREATE INDEX IF NOT EXISTS idx_cache_last_used ON cache_entries(last_used);
CREATE INDEX IF NOT EXISTS idx_cache_path ON cache_entries(path);
`

// DeleteFileData transactionally removes every row attributed to a file.
// Deletes in reverse-dependency order to respect FK constraints.
func (s *Store) DeleteFileData(ctx context.Context, fileID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteFileRowsTx(ctx, tx, fileID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE id = ?", fileID); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return tx.Commit()
}

// deleteFileRowsTx removes the symbols and occurrences of a file but keeps
// the file row.
func deleteFileRowsTx(ctx context.Context, tx *sql.Tx, fileID int64) error {
	for _, q := range []string{
		"DELETE FROM occurrences WHERE file_id = ?",
		"DELETE FROM symbols WHERE file_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, q, fileID); err != nil {
			return fmt.Errorf("delete file data: %w", err)
		}
	}
	return nil
}
