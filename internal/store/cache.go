package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// --- Cache entry operations ---

// PutCacheEntry inserts e unless an entry with the same key exists. Entries
// are never overwritten. It reports whether a row was inserted.
func (s *Store) PutCacheEntry(ctx context.Context, e *CacheEntry) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO cache_entries (path, content_hash, config_hash, data, size, created_at, last_used)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Path, e.ContentHash, e.ConfigHash, e.Data, int64(len(e.Data)), e.CreatedAt, e.LastUsed,
	)
	if err != nil {
		return false, fmt.Errorf("put cache entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("put cache entry: %w", err)
	}
	return n > 0, nil
}

// CacheEntry returns the entry for the key, or nil if absent.
func (s *Store) CacheEntry(ctx context.Context, path, contentHash, configHash string) (*CacheEntry, error) {
	e := &CacheEntry{}
	err := s.db.QueryRowContext(ctx,
		`SELECT path, content_hash, config_hash, data, size, created_at, last_used
		 FROM cache_entries WHERE path = ? AND content_hash = ? AND config_hash = ?`,
		path, contentHash, configHash,
	).Scan(&e.Path, &e.ContentHash, &e.ConfigHash, &e.Data, &e.Size, &e.CreatedAt, &e.LastUsed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache entry: %w", err)
	}
	return e, nil
}

// TouchCacheEntry records a use of the entry for LRU eviction.
func (s *Store) TouchCacheEntry(ctx context.Context, path, contentHash, configHash string, now int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE cache_entries SET last_used = ? WHERE path = ? AND content_hash = ? AND config_hash = ?",
		now, path, contentHash, configHash,
	)
	if err != nil {
		return fmt.Errorf("touch cache entry: %w", err)
	}
	return nil
}

// DeleteCacheEntry removes one entry.
func (s *Store) DeleteCacheEntry(ctx context.Context, path, contentHash, configHash string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE path = ? AND content_hash = ? AND config_hash = ?",
		path, contentHash, configHash,
	)
	if err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// EvictCacheEntries deletes the least recently used entries until at most
// maxEntries remain. It returns the number of entries removed.
func (s *Store) EvictCacheEntries(ctx context.Context, maxEntries int) (int, error) {
	if maxEntries <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE rowid IN (
		   SELECT rowid FROM cache_entries ORDER BY last_used DESC, created_at DESC LIMIT -1 OFFSET ?
		 )`, maxEntries,
	)
	if err != nil {
		return 0, fmt.Errorf("evict cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ClearCacheAll deletes every entry.
func (s *Store) ClearCacheAll(ctx context.Context) (int, error) {
	return s.execCount(ctx, "clear cache", "DELETE FROM cache_entries")
}

// ClearCachePath deletes the entries of a file, or of every file below a
// directory when prefix ends with a path separator.
func (s *Store) ClearCachePath(ctx context.Context, prefix string) (int, error) {
	if strings.HasSuffix(prefix, "/") {
		return s.execCount(ctx, "clear cache path",
			"DELETE FROM cache_entries WHERE substr(path, 1, length(?)) = ?", prefix, prefix)
	}
	return s.execCount(ctx, "clear cache path",
		"DELETE FROM cache_entries WHERE path = ? OR substr(path, 1, length(?)) = ?", prefix, prefix+"/", prefix+"/")
}

// ClearCacheSuperseded deletes every entry that is not the most recently
// created one for its path.
func (s *Store) ClearCacheSuperseded(ctx context.Context) (int, error) {
	return s.execCount(ctx, "clear superseded",
		`DELETE FROM cache_entries WHERE rowid NOT IN (
		   SELECT rowid FROM (
		     SELECT rowid, ROW_NUMBER() OVER (PARTITION BY path ORDER BY created_at DESC, last_used DESC, rowid DESC) AS rn
		     FROM cache_entries
		   ) WHERE rn = 1
		 )`)
}

// CacheStats returns entry count, total encoded size, and distinct paths.
func (s *Store) CacheStats(ctx context.Context) (CacheStats, error) {
	var st CacheStats
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(size), 0), COUNT(DISTINCT path) FROM cache_entries",
	).Scan(&st.EntryCount, &st.TotalBytes, &st.Paths)
	if err != nil {
		return st, fmt.Errorf("cache stats: %w", err)
	}
	return st, nil
}

func (s *Store) execCount(ctx context.Context, op, query string, args ...any) (int, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(n), nil
}
