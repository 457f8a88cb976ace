package arbor

import (
	"context"

	"github.com/jward/arbor/internal/ast"
	"github.com/jward/arbor/internal/index"
)

// Record is the flat serialization of a symbol or occurrence used by JSON
// output.
type Record struct {
	Path          string `json:"path"`
	Line          int    `json:"line"`
	Column        int    `json:"column"`
	Kind          string `json:"kind"`
	QualifiedName string `json:"qualified_name"`
}

// SymbolRecord flattens a definition.
func SymbolRecord(s Symbol) Record {
	return Record{Path: s.Path, Line: s.Line, Column: s.Col, Kind: s.Kind, QualifiedName: s.QualifiedName}
}

// OccurrenceRecord flattens an occurrence. Its kind is the occurrence context.
func OccurrenceRecord(o Occurrence) Record {
	qn := o.QualifiedName
	if qn == "" {
		qn = o.Name
	}
	return Record{Path: o.Path, Line: o.Line, Column: o.Col, Kind: o.Context, QualifiedName: qn}
}

// Query returns the definitions matching f, ordered by qualified name, path,
// and line. A relative File is taken from the project root.
func (e *Engine) Query(ctx context.Context, f Filter) ([]Symbol, error) {
	if f.File != "" {
		f.File = e.abs(f.File)
	}
	return e.index.Query(ctx, f)
}

// References returns every occurrence of the symbol named name that is
// defined at path:line. An empty path looks the symbol up by qualified name.
func (e *Engine) References(ctx context.Context, name, path string, line int, opts RefOptions) ([]Occurrence, error) {
	if path != "" {
		path = e.abs(path)
	}
	return e.index.FindReferences(ctx, name, path, line, opts)
}

// Document returns the current Document for path, from the cache when its
// content is unchanged.
func (e *Engine) Document(ctx context.Context, path string) (*Document, error) {
	return e.builder.Document(ctx, e.abs(path), e.cfg.Parser())
}

// PrintAST renders the Document of path as a tree.
func (e *Engine) PrintAST(ctx context.Context, path string, opts PrintOptions) (string, error) {
	doc, err := e.Document(ctx, path)
	if err != nil {
		return "", err
	}
	return ast.Print(doc, opts), nil
}

// Records flattens symbols for serialization.
func Records(syms []index.Symbol) []Record {
	out := make([]Record, len(syms))
	for i, s := range syms {
		out[i] = SymbolRecord(s)
	}
	return out
}
