package runtime

import (
	"context"
	"log/slog"
	"os"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/arbor/internal/index"
)

// makeQueryFn creates the "query" host function.
//
// query(pattern, source, language) → []map[string]map
//
// Each match maps capture names to {text, type, line, col, end_line, end_col}
// with 1-based positions. Source is parsed fresh on every call.
func makeQueryFn() *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 3 {
			return object.NewArgsError("query", 3, len(args))
		}
		pattern, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("query: pattern must be a string, got %s", args[0].Type())
		}
		source, ok := args[1].(*object.String)
		if !ok {
			return object.Errorf("query: source must be a string, got %s", args[1].Type())
		}
		langName, ok := args[2].(*object.String)
		if !ok {
			return object.Errorf("query: language must be a string, got %s", args[2].Type())
		}

		lang, found := Grammar(langName.Value())
		if !found {
			return object.Errorf("query: unsupported language %q", langName.Value())
		}
		src := []byte(source.Value())

		p := sitter.NewParser()
		defer p.Close()
		p.SetLanguage(lang)
		tree, err := p.ParseCtx(ctx, nil, src)
		if err != nil {
			return object.Errorf("query: tree-sitter parse failed: %v", err)
		}
		defer tree.Close()

		q, err := sitter.NewQuery([]byte(pattern.Value()), lang)
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()

		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, tree.RootNode())

		results := []object.Object{}
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, src)
			if len(match.Captures) == 0 {
				continue
			}
			captures := make(map[string]object.Object, len(match.Captures))
			for _, c := range match.Captures {
				captures[q.CaptureNameForId(c.Index)] = nodeObject(c.Node, src)
			}
			results = append(results, object.NewMap(captures))
		}
		return object.NewList(results)
	})
}

func nodeObject(n *sitter.Node, src []byte) object.Object {
	start, end := n.StartPoint(), n.EndPoint()
	return object.NewMap(map[string]object.Object{
		"text":     object.NewString(n.Content(src)),
		"type":     object.NewString(n.Type()),
		"line":     object.NewInt(int64(start.Row) + 1),
		"col":      object.NewInt(int64(start.Column) + 1),
		"end_line": object.NewInt(int64(end.Row) + 1),
		"end_col":  object.NewInt(int64(end.Column) + 1),
	})
}

// makeReadFileFn creates "read_file(path) → string".
func makeReadFileFn() *object.Builtin {
	return object.NewBuiltin("read_file", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("read_file", 1, len(args))
		}
		path, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("read_file: path must be a string, got %s", args[0].Type())
		}
		data, err := os.ReadFile(path.Value())
		if err != nil {
			return object.Errorf("read_file: %v", err)
		}
		return object.NewString(string(data))
	})
}

// makeSymbolsFn creates "symbols(name) → []map": every definition whose
// simple or qualified name equals name.
func makeSymbolsFn(ix *index.Index) *object.Builtin {
	return object.NewBuiltin("symbols", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("symbols", 1, len(args))
		}
		name, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("symbols: expected string, got %s", args[0].Type())
		}
		syms, err := ix.Query(ctx, index.Filter{Name: name.Value(), Exact: true})
		if err != nil {
			return object.Errorf("symbols: %v", err)
		}
		return symbolsToList(syms)
	})
}

// makeReferencesFn creates "references(qualified_name) → []map".
func makeReferencesFn(ix *index.Index) *object.Builtin {
	return object.NewBuiltin("references", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("references", 1, len(args))
		}
		name, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("references: expected string, got %s", args[0].Type())
		}
		occs, err := ix.FindReferences(ctx, name.Value(), "", 0, index.RefOptions{})
		if err != nil {
			return object.Errorf("references: %v", err)
		}
		results := make([]object.Object, 0, len(occs))
		for _, o := range occs {
			results = append(results, object.NewMap(map[string]object.Object{
				"name":       object.NewString(o.Name),
				"path":       object.NewString(o.Path),
				"line":       object.NewInt(int64(o.Line)),
				"col":        object.NewInt(int64(o.Col)),
				"context":    object.NewString(o.Context),
				"enclosing":  object.NewString(o.Enclosing),
				"confidence": object.NewString(o.Confidence),
			}))
		}
		return object.NewList(results)
	})
}

func symbolsToList(syms []index.Symbol) object.Object {
	results := make([]object.Object, 0, len(syms))
	for _, s := range syms {
		results = append(results, SymbolObject(s))
	}
	return object.NewList(results)
}

// SymbolObject converts a definition to the map shape scripts receive.
func SymbolObject(s index.Symbol) object.Object {
	mods := make([]object.Object, len(s.Modifiers))
	for i, m := range s.Modifiers {
		mods[i] = object.NewString(m)
	}
	return object.NewMap(map[string]object.Object{
		"qualified_name": object.NewString(s.QualifiedName),
		"name":           object.NewString(s.Name),
		"kind":           object.NewString(s.Kind),
		"signature":      object.NewString(s.Signature),
		"path":           object.NewString(s.Path),
		"line":           object.NewInt(int64(s.Line)),
		"end_line":       object.NewInt(int64(s.EndLine)),
		"modifiers":      object.NewList(mods),
	})
}

// logObject provides log.Info/Warn/Error to scripts.
type logObject struct {
	log *slog.Logger
}

func (l *logObject) Info(msg string)  { l.log.Info(msg, "source", "script") }
func (l *logObject) Warn(msg string)  { l.log.Warn(msg, "source", "script") }
func (l *logObject) Error(msg string) { l.log.Error(msg, "source", "script") }
