package arbor

import (
	"context"
	"slices"

	arborerrors "github.com/jward/arbor/internal/errors"
	"github.com/jward/arbor/internal/index"
	"github.com/jward/arbor/internal/parser"
)

// Definition is the result of Engine.Definition.
type Definition struct {
	// Name is the identifier under the cursor; empty when there is none.
	Name          string `json:"name"`
	QualifiedName string `json:"qualified_name,omitempty"`
	// Local is set for parameters, locals, and members found in the
	// enclosing scopes of the file itself.
	Local      bool     `json:"local"`
	Confidence string   `json:"confidence,omitempty"`
	Locations  []Record `json:"locations"`
}

// Definition finds where the identifier at the 1-based position line:col of
// path is defined. Names visible only inside the file (parameters, locals,
// members of an enclosing class) resolve against the Document; every other
// name resolves through the index, so path must have been built. A cursor
// on a definition yields every definition sharing its qualified name.
func (e *Engine) Definition(ctx context.Context, path string, line, col int) (*Definition, error) {
	if line < 1 || col < 1 {
		return nil, arborerrors.Validationf("position", "", "line and column are 1-based, got %d:%d", line, col)
	}
	path = e.abs(path)
	content, err := parser.ReadSource(path)
	if err != nil {
		return nil, err
	}
	out := &Definition{Locations: []Record{}}
	word, start := identifierAt(content, line, col)
	if word == "" {
		return out, nil
	}
	out.Name = word

	occs, err := e.index.OccurrencesByFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if i := slices.IndexFunc(occs, func(o Occurrence) bool {
		return o.Line == line && o.Col <= start && start < o.Col+len(o.Name)
	}); i >= 0 {
		res, err := e.index.Resolve(ctx, occs[i:i+1])
		if err != nil {
			return nil, err
		}
		if r, ok := res[0]; ok {
			return e.definitionsOf(ctx, out, r.QualifiedName)
		}
	}

	doc, err := e.builder.Document(ctx, path, e.cfg.Parser())
	if err != nil {
		return nil, err
	}
	locals, _ := localNames(doc, line, col, index.Separator(doc.Language))
	for _, it := range locals {
		if it.Name == word {
			out.Local = true
			out.Locations = append(out.Locations, Record{Path: it.Path, Line: it.Line, Column: it.Column, Kind: it.Kind, QualifiedName: it.Name})
			return out, nil
		}
	}

	syms, err := e.index.SymbolsByFile(ctx, path)
	if err != nil {
		return nil, err
	}
	for _, s := range syms {
		if s.Line == line && s.Name == word {
			return e.definitionsOf(ctx, out, s.QualifiedName)
		}
	}
	return out, nil
}

func (e *Engine) definitionsOf(ctx context.Context, out *Definition, qname string) (*Definition, error) {
	defs, err := e.index.Definitions(ctx, qname)
	if err != nil {
		return nil, err
	}
	out.QualifiedName = qname
	out.Confidence = index.DefinitionConfidence(defs)
	out.Locations = Records(defs)
	return out, nil
}

// identifierAt returns the identifier covering the 1-based position, or
// ending right before it, together with its starting column.
func identifierAt(content []byte, line, col int) (string, int) {
	start := 0
	for l := 1; l < line; l++ {
		i := slices.Index(content[start:], '\n')
		if i < 0 {
			return "", 0
		}
		start += i + 1
	}
	end := start
	for end < len(content) && content[end] != '\n' {
		end++
	}
	pos := start + col - 1
	if pos > end {
		return "", 0
	}
	begin, stop := pos, pos
	for begin > start && isIdentByte(content[begin-1]) {
		begin--
	}
	for stop < end && isIdentByte(content[stop]) {
		stop++
	}
	if begin == stop || content[begin] >= '0' && content[begin] <= '9' {
		return "", 0
	}
	return string(content[begin:stop]), begin - start + 1
}
