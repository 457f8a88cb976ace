package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// --- File operations ---

func (s *Store) FileByPath(ctx context.Context, path string) (*File, error) {
	f := &File{}
	var lastIndexed sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT id, path, language, content_hash, config_hash, stale, last_indexed FROM files WHERE path = ?", path,
	).Scan(&f.ID, &f.Path, &f.Language, &f.ContentHash, &f.ConfigHash, &f.Stale, &lastIndexed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	f.LastIndexed = lastIndexed.Time
	return f, nil
}

// Files returns every indexed file ordered by path.
func (s *Store) Files(ctx context.Context) ([]*File, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, path, language, content_hash, config_hash, stale, last_indexed FROM files ORDER BY path",
	)
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f := &File{}
		var lastIndexed sql.NullTime
		if err := rows.Scan(&f.ID, &f.Path, &f.Language, &f.ContentHash, &f.ConfigHash, &f.Stale, &lastIndexed); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		f.LastIndexed = lastIndexed.Time
		files = append(files, f)
	}
	return files, rows.Err()
}

// MarkStale flags a file's entries as stale. It reports whether the file was
// indexed at all.
func (s *Store) MarkStale(ctx context.Context, path string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE files SET stale = TRUE WHERE path = ?", path)
	if err != nil {
		return false, fmt.Errorf("mark stale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark stale: %w", err)
	}
	return n > 0, nil
}

// RemoveFile deletes a file and everything attributed to it.
func (s *Store) RemoveFile(ctx context.Context, path string) error {
	f, err := s.FileByPath(ctx, path)
	if err != nil || f == nil {
		return err
	}
	return s.DeleteFileData(ctx, f.ID)
}

// Counts returns the number of files, symbols, and occurrences.
func (s *Store) Counts(ctx context.Context) (files, symbols, occurrences int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM files), (SELECT COUNT(*) FROM symbols), (SELECT COUNT(*) FROM occurrences)`,
	).Scan(&files, &symbols, &occurrences)
	if err != nil {
		err = fmt.Errorf("counts: %w", err)
	}
	return files, symbols, occurrences, err
}

// --- Symbol operations ---

const symbolColumns = `s.id, s.file_id, s.qualified_name, s.name, s.kind, f.path, s.language,
	COALESCE(s.signature, ''), COALESCE(s.modifiers, ''), COALESCE(s.signature_hash, ''),
	s.start_line, s.start_col, s.end_line, s.end_col`

const symbolOrder = " ORDER BY s.qualified_name, f.path, s.start_line, s.start_col"

func scanSymbols(rows *sql.Rows) ([]Symbol, error) {
	defer rows.Close()
	var syms []Symbol
	for rows.Next() {
		var sym Symbol
		var mods string
		if err := rows.Scan(&sym.ID, &sym.FileID, &sym.QualifiedName, &sym.Name, &sym.Kind, &sym.Path,
			&sym.Language, &sym.Signature, &mods, &sym.SignatureHash,
			&sym.Line, &sym.Col, &sym.EndLine, &sym.EndCol); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		sym.Modifiers = unmarshalModifiers(mods)
		syms = append(syms, sym)
	}
	return syms, rows.Err()
}

// SymbolsByQualifiedName returns every definition of qname ordered by path
// then line.
func (s *Store) SymbolsByQualifiedName(ctx context.Context, qname string) ([]Symbol, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+symbolColumns+" FROM symbols s JOIN files f ON f.id = s.file_id WHERE s.qualified_name = ?"+symbolOrder, qname,
	)
	if err != nil {
		return nil, fmt.Errorf("symbols by qualified name: %w", err)
	}
	return scanSymbols(rows)
}

// SymbolsByFile returns the definitions of path in source order.
func (s *Store) SymbolsByFile(ctx context.Context, path string) ([]Symbol, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+symbolColumns+" FROM symbols s JOIN files f ON f.id = s.file_id WHERE f.path = ? ORDER BY s.start_line, s.start_col", path,
	)
	if err != nil {
		return nil, fmt.Errorf("symbols by file: %w", err)
	}
	return scanSymbols(rows)
}

// SymbolsAt returns the definitions that start on path:line.
func (s *Store) SymbolsAt(ctx context.Context, path string, line int) ([]Symbol, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+symbolColumns+" FROM symbols s JOIN files f ON f.id = s.file_id WHERE f.path = ? AND s.start_line = ?"+symbolOrder, path, line,
	)
	if err != nil {
		return nil, fmt.Errorf("symbols at: %w", err)
	}
	return scanSymbols(rows)
}

// MatchMode selects how SymbolQuery.Name is compared.
type MatchMode int

const (
	MatchSubstring MatchMode = iota
	MatchExact
	MatchPrefix
)

// SymbolQuery filters SearchSymbols. Empty fields match everything. Name is
// compared case-sensitively against both the simple and qualified name.
type SymbolQuery struct {
	Name  string
	Mode  MatchMode
	Path  string
	Kind  string
	Limit int
}

// SearchSymbols returns matching definitions ordered by qualified name, path,
// and line.
func (s *Store) SearchSymbols(ctx context.Context, q SymbolQuery) ([]Symbol, error) {
	var where []string
	var args []any
	if q.Name != "" {
		switch q.Mode {
		case MatchExact:
			where = append(where, "(s.name = ? OR s.qualified_name = ?)")
			args = append(args, q.Name, q.Name)
		case MatchPrefix:
			where = append(where, "(substr(s.name, 1, length(?)) = ? OR substr(s.qualified_name, 1, length(?)) = ?)")
			args = append(args, q.Name, q.Name, q.Name, q.Name)
		default:
			where = append(where, "instr(s.qualified_name, ?) > 0")
			args = append(args, q.Name)
		}
	}
	if q.Path != "" {
		where = append(where, "f.path = ?")
		args = append(args, q.Path)
	}
	if q.Kind != "" {
		where = append(where, "s.kind = ?")
		args = append(args, q.Kind)
	}

	query := "SELECT " + symbolColumns + " FROM symbols s JOIN files f ON f.id = s.file_id"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += symbolOrder
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search symbols: %w", err)
	}
	return scanSymbols(rows)
}

// SymbolNames returns the distinct simple names in the index, sorted.
func (s *Store) SymbolNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT name FROM symbols ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("symbol names: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan symbol name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// QualifiedNameCounts returns, for each of qnames, how many distinct
// signatures are defined under it. A prototype and its definition share a
// signature and count once; overloads count separately. Names without
// definitions are absent from the result.
func (s *Store) QualifiedNameCounts(ctx context.Context, qnames []string) (map[string]int, error) {
	out := make(map[string]int, len(qnames))
	if len(qnames) == 0 {
		return out, nil
	}
	args := make([]any, len(qnames))
	for i, q := range qnames {
		args[i] = q
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT qualified_name, COUNT(DISTINCT COALESCE(signature, '')) FROM symbols WHERE qualified_name IN ("+placeholderList(len(qnames))+") GROUP BY qualified_name",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("qualified name counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var q string
		var n int
		if err := rows.Scan(&q, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[q] = n
	}
	return out, rows.Err()
}

// --- Occurrence operations ---

const occurrenceColumns = `o.id, o.file_id, o.name, o.simple_name, o.scope, o.enclosing, o.context,
	o.access, f.path, o.line, o.col, f.stale, f.language`

func scanOccurrences(rows *sql.Rows) ([]Occurrence, error) {
	defer rows.Close()
	var occs []Occurrence
	for rows.Next() {
		var o Occurrence
		if err := rows.Scan(&o.ID, &o.FileID, &o.Name, &o.SimpleName, &o.Scope, &o.Enclosing, &o.Context,
			&o.Access, &o.Path, &o.Line, &o.Col, &o.Stale, &o.Language); err != nil {
			return nil, fmt.Errorf("scan occurrence: %w", err)
		}
		occs = append(occs, o)
	}
	return occs, rows.Err()
}

// OccurrencesBySimpleName returns every occurrence whose last name segment is
// name, ordered by path, line, and column.
func (s *Store) OccurrencesBySimpleName(ctx context.Context, name string) ([]Occurrence, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+occurrenceColumns+" FROM occurrences o JOIN files f ON f.id = o.file_id WHERE o.simple_name = ? ORDER BY f.path, o.line, o.col", name,
	)
	if err != nil {
		return nil, fmt.Errorf("occurrences by name: %w", err)
	}
	return scanOccurrences(rows)
}

// OccurrencesByFile returns the occurrences recorded for path in source order.
func (s *Store) OccurrencesByFile(ctx context.Context, path string) ([]Occurrence, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+occurrenceColumns+" FROM occurrences o JOIN files f ON f.id = o.file_id WHERE f.path = ? ORDER BY o.line, o.col", path,
	)
	if err != nil {
		return nil, fmt.Errorf("occurrences by file: %w", err)
	}
	return scanOccurrences(rows)
}
