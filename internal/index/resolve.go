package index

import (
	"context"
	"slices"
	"strings"

	arborerrors "github.com/jward/arbor/internal/errors"
)

// countChunk bounds the IN list of a single QualifiedNameCounts query.
const countChunk = 500

// Candidates lists the qualified names an occurrence could refer to, innermost
// scope first. A leading separator anchors the name at the global scope.
func Candidates(name, scope, sep string) []string {
	if strings.HasPrefix(name, sep) {
		return []string{strings.TrimPrefix(name, sep)}
	}
	var out []string
	for scope != "" {
		out = append(out, scope+sep+name)
		i := strings.LastIndex(scope, sep)
		if i < 0 {
			break
		}
		scope = scope[:i]
	}
	return append(out, name)
}

// Resolution is the outcome of resolving one occurrence. Definitions counts
// the distinct signatures defined under QualifiedName.
type Resolution struct {
	QualifiedName string
	Definitions   int
}

// Confidence reports whether the resolution names exactly one definition.
func (r Resolution) Confidence() string {
	if r.Definitions > 1 {
		return ConfidenceAmbiguous
	}
	return ConfidenceExact
}

// Resolve maps each occurrence to the first candidate qualified name that has
// a definition. Occurrences with no such candidate are absent from the result.
func (ix *Index) Resolve(ctx context.Context, occs []Occurrence) (map[int]Resolution, error) {
	cands := make([][]string, len(occs))
	seen := make(map[string]bool)
	var unique []string
	for i, o := range occs {
		cands[i] = Candidates(o.Name, o.Scope, Separator(o.Language))
		for _, c := range cands[i] {
			if !seen[c] {
				seen[c] = true
				unique = append(unique, c)
			}
		}
	}

	counts := make(map[string]int, len(unique))
	for start := 0; start < len(unique); start += countChunk {
		end := min(start+countChunk, len(unique))
		part, err := ix.store.QualifiedNameCounts(ctx, unique[start:end])
		if err != nil {
			return nil, arborerrors.NewIndexError("resolve", err)
		}
		for k, v := range part {
			counts[k] = v
		}
	}

	out := make(map[int]Resolution, len(occs))
	for i, cs := range cands {
		for _, c := range cs {
			if n := counts[c]; n > 0 {
				out[i] = Resolution{QualifiedName: c, Definitions: n}
				break
			}
		}
	}
	return out, nil
}

// ResolveFile returns the occurrences of path annotated with their resolved
// qualified name and confidence. Unresolved occurrences are dropped.
func (ix *Index) ResolveFile(ctx context.Context, path string) ([]Occurrence, error) {
	occs, err := ix.OccurrencesByFile(ctx, path)
	if err != nil {
		return nil, err
	}
	res, err := ix.Resolve(ctx, occs)
	if err != nil {
		return nil, err
	}
	out := make([]Occurrence, 0, len(res))
	for i, o := range occs {
		r, ok := res[i]
		if !ok {
			continue
		}
		o.QualifiedName = r.QualifiedName
		o.Confidence = r.Confidence()
		out = append(out, o)
	}
	return out, nil
}

// RefOptions tunes FindReferences.
type RefOptions struct {
	// IncludeDeclaration adds the definition sites of the target.
	IncludeDeclaration bool
}

// Target returns the definition of name that starts on path:line. name may be
// simple or qualified. A zero line matches any definition of name in path; an
// empty path matches the qualified name anywhere. Nil means no match.
func (ix *Index) Target(ctx context.Context, name, path string, line int) (*Symbol, error) {
	var syms []Symbol
	var err error
	switch {
	case path == "":
		syms, err = ix.store.SymbolsByQualifiedName(ctx, name)
	case line <= 0:
		syms, err = ix.store.SymbolsByFile(ctx, path)
	default:
		syms, err = ix.store.SymbolsAt(ctx, path, line)
	}
	if err != nil {
		return nil, arborerrors.NewIndexError("find target", err).WithPath(path)
	}
	for i := range syms {
		s := &syms[i]
		sep := Separator(s.Language)
		if s.Name == name || s.QualifiedName == name || strings.HasSuffix(s.QualifiedName, sep+name) {
			return s, nil
		}
	}
	return nil, nil
}

// FindReferences resolves the symbol defined at defPath:defLine and returns
// every occurrence that resolves to its qualified name, ordered by path,
// line, and column. Overloads and duplicates share a qualified name, so their
// references are returned together and flagged ambiguous. An unknown target
// yields an empty result.
func (ix *Index) FindReferences(ctx context.Context, name, defPath string, defLine int, opts RefOptions) ([]Occurrence, error) {
	if name == "" {
		return nil, arborerrors.Validationf("name", name, "symbol name is required")
	}
	target, err := ix.Target(ctx, name, defPath, defLine)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return []Occurrence{}, nil
	}

	defs, err := ix.store.SymbolsByQualifiedName(ctx, target.QualifiedName)
	if err != nil {
		return nil, arborerrors.NewIndexError("find references", err)
	}
	confidence := DefinitionConfidence(defs)

	occs, err := ix.store.OccurrencesBySimpleName(ctx, target.Name)
	if err != nil {
		return nil, arborerrors.NewIndexError("find references", err)
	}
	res, err := ix.Resolve(ctx, occs)
	if err != nil {
		return nil, err
	}

	out := []Occurrence{}
	if opts.IncludeDeclaration {
		for _, d := range defs {
			out = append(out, Occurrence{
				Name:          d.Name,
				SimpleName:    d.Name,
				Context:       ContextDeclaration,
				Access:        AccessWrite,
				Path:          d.Path,
				Line:          d.Line,
				Col:           d.Col,
				Language:      d.Language,
				QualifiedName: d.QualifiedName,
				Confidence:    confidence,
			})
		}
	}
	for i, o := range occs {
		if r, ok := res[i]; !ok || r.QualifiedName != target.QualifiedName {
			continue
		}
		o.QualifiedName = target.QualifiedName
		o.Confidence = confidence
		out = append(out, o)
	}
	sortOccurrences(out)
	return out, nil
}

func sortOccurrences(occs []Occurrence) {
	slices.SortStableFunc(occs, func(a, b Occurrence) int {
		if c := strings.Compare(a.Path, b.Path); c != 0 {
			return c
		}
		if a.Line != b.Line {
			return a.Line - b.Line
		}
		return a.Col - b.Col
	})
}

// DefinitionConfidence is the confidence of a name whose definitions are
// defs: ambiguous when they carry more than one distinct signature.
func DefinitionConfidence(defs []Symbol) string {
	return Resolution{Definitions: distinctSignatures(defs)}.Confidence()
}

func distinctSignatures(defs []Symbol) int {
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		seen[d.Signature] = true
	}
	return len(seen)
}
