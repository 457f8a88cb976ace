// Package index is the persistent cross-file symbol index. It stores the
// definitions and name occurrences of every built file in SQLite and resolves
// references lazily at query time.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	arborerrors "github.com/jward/arbor/internal/errors"
	"github.com/jward/arbor/internal/store"
)

type (
	Symbol     = store.Symbol
	Occurrence = store.Occurrence
	FileRecord = store.File
)

// Symbol kinds.
const (
	KindFunction  = "function"
	KindClass     = "class"
	KindVariable  = "variable"
	KindNamespace = "namespace"
	KindOther     = "other"
)

// Occurrence contexts and access modes.
const (
	ContextSignature   = "signature"
	ContextBody        = "body"
	ContextType        = "type"
	ContextInitializer = "initializer"
	ContextDeclaration = "declaration"

	AccessRead  = "read"
	AccessWrite = "write"
)

// Resolution confidence.
const (
	ConfidenceExact     = "exact"
	ConfidenceAmbiguous = "ambiguous"
)

// DBFileName is the database created inside the storage root.
const DBFileName = "arbor.db"

// Separator returns the qualified-name separator for a language.
func Separator(lang string) string {
	if lang == "go" {
		return "."
	}
	return "::"
}

// SimpleName returns the last segment of a possibly qualified name.
func SimpleName(name, sep string) string {
	if i := strings.LastIndex(name, sep); i >= 0 {
		return name[i+len(sep):]
	}
	return name
}

// Index coordinates all access to the symbol tables. Writes are serialized
// through one mutex; reads run concurrently and observe committed merges only.
type Index struct {
	store   *store.Store
	root    string
	writeMu sync.Mutex
	log     *slog.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger used for merge and stale events.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Index) { ix.log = l }
}

// Open opens (creating if needed) the index stored under root.
func Open(root string, opts ...Option) (*Index, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, arborerrors.NewIndexError("open", err).WithPath(root)
	}
	s, err := store.NewStore(filepath.Join(root, DBFileName))
	if err != nil {
		return nil, arborerrors.NewIndexError("open", err).WithPath(root)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, arborerrors.NewIndexError("migrate", err).WithPath(root)
	}
	ix := &Index{store: s, root: root, log: slog.Default()}
	for _, o := range opts {
		o(ix)
	}
	return ix, nil
}

// Close releases the database.
func (ix *Index) Close() error {
	return ix.store.Close()
}

// Store exposes the underlying store so the TU cache can share the database.
func (ix *Index) Store() *store.Store {
	return ix.store
}

// Root returns the storage root.
func (ix *Index) Root() string {
	return ix.root
}

// Merge atomically replaces every definition and occurrence attributed to
// f.Path. Other paths are untouched.
func (ix *Index) Merge(ctx context.Context, f FileRecord, defs []Symbol, occs []Occurrence) error {
	batch := store.NewBatch(f)
	for _, d := range defs {
		batch.AddSymbol(d)
	}
	for _, o := range occs {
		batch.AddOccurrence(o)
	}

	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()
	if err := ix.store.CommitBatch(ctx, batch); err != nil {
		return arborerrors.NewIndexError("merge", err).WithPath(f.Path)
	}
	ix.log.Debug("merged file", "path", f.Path, "symbols", len(defs), "occurrences", len(occs))
	return nil
}

// MarkStale keeps a file's entries but flags its occurrences as stale. It is
// a no-op for files that were never indexed.
func (ix *Index) MarkStale(ctx context.Context, path string) error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()
	found, err := ix.store.MarkStale(ctx, path)
	if err != nil {
		return arborerrors.NewIndexError("mark stale", err).WithPath(path)
	}
	if found {
		ix.log.Warn("marked file stale", "path", path)
	}
	return nil
}

// Remove deletes everything attributed to path.
func (ix *Index) Remove(ctx context.Context, path string) error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()
	if err := ix.store.RemoveFile(ctx, path); err != nil {
		return arborerrors.NewIndexError("remove", err).WithPath(path)
	}
	return nil
}

// File returns the index record for path, or nil if it was never merged.
func (ix *Index) File(ctx context.Context, path string) (*FileRecord, error) {
	f, err := ix.store.FileByPath(ctx, path)
	if err != nil {
		return nil, arborerrors.NewIndexError("read", err).WithPath(path)
	}
	return f, nil
}

// Files returns every indexed file ordered by path.
func (ix *Index) Files(ctx context.Context) ([]*FileRecord, error) {
	files, err := ix.store.Files(ctx)
	if err != nil {
		return nil, arborerrors.NewIndexError("read", err)
	}
	return files, nil
}

// Stats summarizes the index contents.
type Stats struct {
	Files       int `json:"files"`
	Symbols     int `json:"symbols"`
	Occurrences int `json:"occurrences"`
}

func (ix *Index) Stats(ctx context.Context) (Stats, error) {
	f, s, o, err := ix.store.Counts(ctx)
	if err != nil {
		return Stats{}, arborerrors.NewIndexError("read", err)
	}
	return Stats{Files: f, Symbols: s, Occurrences: o}, nil
}

// Filter selects symbols for Query. Name matches as a substring of the
// qualified name unless Exact or Prefix is set.
type Filter struct {
	Name   string
	File   string
	Kind   string
	Exact  bool
	Prefix bool
	Limit  int
}

// Query returns matching symbols ordered by qualified name, path, and line.
// No matches is an empty result, not an error.
func (ix *Index) Query(ctx context.Context, f Filter) ([]Symbol, error) {
	if f.Exact && f.Prefix {
		return nil, arborerrors.Validationf("filter", "", "exact and prefix are mutually exclusive")
	}
	q := store.SymbolQuery{Name: f.Name, Path: f.File, Kind: f.Kind, Limit: f.Limit}
	switch {
	case f.Exact:
		q.Mode = store.MatchExact
	case f.Prefix:
		q.Mode = store.MatchPrefix
	}
	syms, err := ix.store.SearchSymbols(ctx, q)
	if err != nil {
		return nil, arborerrors.NewIndexError("query", err)
	}
	if syms == nil {
		syms = []Symbol{}
	}
	return syms, nil
}

// SymbolNames returns the distinct simple names of every definition.
func (ix *Index) SymbolNames(ctx context.Context) ([]string, error) {
	names, err := ix.store.SymbolNames(ctx)
	if err != nil {
		return nil, arborerrors.NewIndexError("query", err)
	}
	return names, nil
}

// SymbolsByFile returns the definitions recorded for path in source order.
func (ix *Index) SymbolsByFile(ctx context.Context, path string) ([]Symbol, error) {
	syms, err := ix.store.SymbolsByFile(ctx, path)
	if err != nil {
		return nil, arborerrors.NewIndexError("query", err).WithPath(path)
	}
	return syms, nil
}

// Definitions returns every definition of qname ordered by path then line.
func (ix *Index) Definitions(ctx context.Context, qname string) ([]Symbol, error) {
	syms, err := ix.store.SymbolsByQualifiedName(ctx, qname)
	if err != nil {
		return nil, arborerrors.NewIndexError("query", err)
	}
	return syms, nil
}

// OccurrencesByFile returns the unresolved occurrences recorded for path.
func (ix *Index) OccurrencesByFile(ctx context.Context, path string) ([]Occurrence, error) {
	occs, err := ix.store.OccurrencesByFile(ctx, path)
	if err != nil {
		return nil, arborerrors.NewIndexError("query", err).WithPath(path)
	}
	return occs, nil
}

func (ix *Index) String() string {
	return fmt.Sprintf("index(%s)", ix.root)
}
