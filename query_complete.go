package arbor

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/jward/arbor/internal/ast"
	"github.com/jward/arbor/internal/index"
	"github.com/jward/arbor/internal/parser"
)

// DefaultFuzzyThreshold is the Jaro-Winkler similarity a symbol name needs to
// be offered by the fuzzy fallback.
const DefaultFuzzyThreshold = 0.8

// CompleteOptions tune Complete.
type CompleteOptions struct {
	// Limit caps the number of items; 0 means no limit.
	Limit int
	// Fuzzy offers similarly named globals when nothing matches the prefix.
	Fuzzy bool
	// FuzzyThreshold overrides DefaultFuzzyThreshold.
	FuzzyThreshold float64
}

// CompletionItem is one completion candidate.
type CompletionItem struct {
	Name          string  `json:"name"`
	QualifiedName string  `json:"qualified_name,omitempty"`
	Kind          string  `json:"kind"`
	Signature     string  `json:"signature,omitempty"`
	Local         bool    `json:"local"`
	Path          string  `json:"path,omitempty"`
	Line          int     `json:"line,omitempty"`
	Column        int     `json:"column,omitempty"`
	Score         float64 `json:"score,omitempty"`
}

// Completion is the result of Complete.
type Completion struct {
	Prefix string           `json:"prefix"`
	Items  []CompletionItem `json:"items"`
	Fuzzy  bool             `json:"fuzzy,omitempty"`
}

// Complete lists the names visible at the 1-based position line:col of path
// that start with the identifier being typed there. Names in scope locally
// (parameters, earlier locals, members of the enclosing class) come first,
// innermost scope first; globally visible symbols from the index follow in
// qualified-name order.
func (e *Engine) Complete(ctx context.Context, path string, line, col int, opts CompleteOptions) (*Completion, error) {
	path = e.abs(path)
	doc, err := e.builder.Document(ctx, path, e.cfg.Parser())
	if err != nil {
		return nil, err
	}
	content, err := parser.ReadSource(path)
	if err != nil {
		return nil, err
	}
	prefix := identifierBefore(content, line, col)
	sep := index.Separator(doc.Language)

	out := &Completion{Prefix: prefix}
	locals, scope := localNames(doc, line, col, sep)
	seen := make(map[string]bool)
	for _, it := range locals {
		if seen[it.Name] || !strings.HasPrefix(it.Name, prefix) {
			continue
		}
		seen[it.Name] = true
		out.Items = append(out.Items, it)
	}

	members, err := e.memberNames(ctx, scope, sep)
	if err != nil {
		return nil, err
	}
	for _, it := range members {
		if seen[it.Name] || !strings.HasPrefix(it.Name, prefix) {
			continue
		}
		seen[it.Name] = true
		out.Items = append(out.Items, it)
	}

	globals, err := e.globalNames(ctx, prefix, sep)
	if err != nil {
		return nil, err
	}
	out.Items = append(out.Items, globals...)

	if len(out.Items) == 0 && opts.Fuzzy && prefix != "" {
		threshold := opts.FuzzyThreshold
		if threshold <= 0 {
			threshold = DefaultFuzzyThreshold
		}
		if out.Items, err = e.fuzzyNames(ctx, prefix, sep, threshold); err != nil {
			return nil, err
		}
		out.Fuzzy = len(out.Items) > 0
	}
	if opts.Limit > 0 && len(out.Items) > opts.Limit {
		out.Items = out.Items[:opts.Limit]
	}
	if out.Items == nil {
		out.Items = []CompletionItem{}
	}
	return out, nil
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80
}

// identifierBefore returns the identifier characters immediately left of the
// 1-based cursor position.
func identifierBefore(content []byte, line, col int) string {
	start := 0
	for l := 1; l < line; l++ {
		i := slices.Index(content[start:], '\n')
		if i < 0 {
			return ""
		}
		start += i + 1
	}
	end := start
	for end < len(content) && content[end] != '\n' && end-start < col-1 {
		end++
	}
	begin := end
	for begin > start && isIdentByte(content[begin-1]) {
		begin--
	}
	return string(content[begin:end])
}

// localNames collects the declarations in scope at line:col from the
// innermost enclosing node outwards. It also returns the qualified name of the
// class an out-of-line member function belongs to, whose members are in scope
// but declared elsewhere.
func localNames(doc *ast.Document, line, col int, sep string) ([]CompletionItem, string) {
	chain := ast.PathTo(doc.Root, line, col)
	var items []CompletionItem
	add := func(n *ast.Node) {
		if n.Name == "" {
			return
		}
		items = append(items, CompletionItem{
			Name:      n.Name,
			Kind:      string(n.Kind),
			Signature: n.TypeName,
			Local:     true,
			Path:      doc.Path,
			Line:      n.Loc.StartLine,
			Column:    n.Loc.StartCol,
		})
	}

	var memberScope string
	for i := len(chain) - 1; i >= 0; i-- {
		n := chain[i]
		switch n.Kind {
		case ast.KindFunction:
			for _, c := range n.Children {
				if c.Kind == ast.KindParameter {
					add(c)
				}
			}
			if memberScope == "" && strings.Contains(n.Name, sep) && !insideClass(chain[:i]) {
				memberScope = namespaceOf(chain[:i], sep) + parentOf(n.Name, sep)
			}
		case ast.KindClass:
			for _, c := range n.Children {
				switch c.Kind {
				case ast.KindVariable, ast.KindFunction, ast.KindClass:
					add(c)
				}
			}
		case ast.KindOther, ast.KindControlFlow:
			for _, c := range n.Children {
				switch c.Kind {
				case ast.KindVariable, ast.KindClass:
					if c.Loc.StartsBefore(line, col) {
						add(c)
					}
				}
			}
		case ast.KindNamespace, ast.KindModule:
			return items, memberScope
		}
	}
	return items, memberScope
}

func insideClass(ancestors []*ast.Node) bool {
	return slices.ContainsFunc(ancestors, func(n *ast.Node) bool { return n.Kind == ast.KindClass })
}

// namespaceOf joins the enclosing namespace names, with a trailing separator.
func namespaceOf(ancestors []*ast.Node, sep string) string {
	var b strings.Builder
	for _, a := range ancestors {
		if a.Kind == ast.KindNamespace && a.Name != "" {
			b.WriteString(a.Name)
			b.WriteString(sep)
		}
	}
	return b.String()
}

func parentOf(qname, sep string) string {
	if i := strings.LastIndex(qname, sep); i >= 0 {
		return qname[:i]
	}
	return ""
}

// memberNames lists the indexed members of the class scope.
func (e *Engine) memberNames(ctx context.Context, scope, sep string) ([]CompletionItem, error) {
	if scope == "" {
		return nil, nil
	}
	syms, err := e.index.Query(ctx, Filter{Name: scope + sep, Prefix: true})
	if err != nil {
		return nil, err
	}
	var out []CompletionItem
	for _, s := range syms {
		if parentOf(s.QualifiedName, sep) != scope {
			continue
		}
		it := symbolItem(s)
		it.Local = true
		out = append(out, it)
	}
	return out, nil
}

// globalNames lists the indexed symbols whose simple name starts with prefix,
// leaving out class members, which are only visible through their class.
func (e *Engine) globalNames(ctx context.Context, prefix, sep string) ([]CompletionItem, error) {
	syms, err := e.index.Query(ctx, Filter{Name: prefix, Prefix: prefix != ""})
	if err != nil {
		return nil, err
	}
	classes := newClassSet(e.index)
	var out []CompletionItem
	seen := make(map[string]bool)
	for _, s := range syms {
		if !strings.HasPrefix(s.Name, prefix) {
			continue
		}
		key := s.QualifiedName + "\x00" + s.Signature
		if seen[key] {
			continue
		}
		member, err := classes.has(ctx, parentOf(s.QualifiedName, sep))
		if err != nil {
			return nil, err
		}
		if member {
			continue
		}
		seen[key] = true
		out = append(out, symbolItem(s))
	}
	slices.SortStableFunc(out, func(a, b CompletionItem) int {
		return cmp.Compare(a.QualifiedName, b.QualifiedName)
	})
	return out, nil
}

// fuzzyNames offers globals whose simple name is similar to prefix, best
// match first.
func (e *Engine) fuzzyNames(ctx context.Context, prefix, sep string, threshold float64) ([]CompletionItem, error) {
	names, err := e.index.SymbolNames(ctx)
	if err != nil {
		return nil, err
	}
	classes := newClassSet(e.index)
	var out []CompletionItem
	for _, name := range names {
		score, err := edlib.StringsSimilarity(strings.ToLower(prefix), strings.ToLower(name), edlib.JaroWinkler)
		if err != nil || float64(score) < threshold {
			continue
		}
		syms, err := e.index.Query(ctx, Filter{Name: name, Exact: true})
		if err != nil {
			return nil, err
		}
		for _, s := range syms {
			if s.Name != name {
				continue
			}
			member, err := classes.has(ctx, parentOf(s.QualifiedName, sep))
			if err != nil {
				return nil, err
			}
			if member {
				continue
			}
			it := symbolItem(s)
			it.Score = float64(score)
			out = append(out, it)
		}
	}
	slices.SortStableFunc(out, func(a, b CompletionItem) int {
		return cmp.Or(cmp.Compare(b.Score, a.Score), cmp.Compare(a.QualifiedName, b.QualifiedName))
	})
	return out, nil
}

func symbolItem(s Symbol) CompletionItem {
	return CompletionItem{
		Name:          s.Name,
		QualifiedName: s.QualifiedName,
		Kind:          s.Kind,
		Signature:     s.Signature,
		Path:          s.Path,
		Line:          s.Line,
		Column:        s.Col,
	}
}

// classSet memoizes whether qualified names denote classes.
type classSet struct {
	ix    *index.Index
	known map[string]bool
}

func newClassSet(ix *index.Index) *classSet {
	return &classSet{ix: ix, known: map[string]bool{"": false}}
}

func (c *classSet) has(ctx context.Context, qname string) (bool, error) {
	if v, ok := c.known[qname]; ok {
		return v, nil
	}
	syms, err := c.ix.Query(ctx, Filter{Name: qname, Exact: true, Kind: index.KindClass})
	if err != nil {
		return false, err
	}
	found := slices.ContainsFunc(syms, func(s Symbol) bool { return s.QualifiedName == qname })
	c.known[qname] = found
	return found, nil
}
