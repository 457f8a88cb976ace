package extract

import (
	"strings"

	"github.com/jward/arbor/internal/ast"
	"github.com/jward/arbor/internal/index"
)

// signature renders a function's declared shape from its return type, simple
// name, and parameter types. A prototype and its out-of-line definition render
// identically.
func (w *walker) signature(fn *ast.Node) string {
	var params, results []string
	receiver := ""
	for _, c := range fn.Children {
		if c.Kind != ast.KindParameter {
			continue
		}
		switch {
		case c.HasModifier(ast.ModReceiver):
			receiver = c.TypeName
		case c.HasModifier(ast.ModResult):
			results = append(results, c.TypeName)
		default:
			params = append(params, c.TypeName)
		}
	}

	var b strings.Builder
	if w.doc.Language == "go" {
		b.WriteString("func ")
		if receiver != "" {
			b.WriteString("(" + receiver + ") ")
		}
		b.WriteString(index.SimpleName(fn.Name, "."))
		b.WriteString("(" + strings.Join(params, ", ") + ")")
		if len(results) == 0 && fn.TypeName != "" {
			b.WriteString(" " + fn.TypeName)
		} else if len(results) > 0 {
			b.WriteString(" (" + strings.Join(results, ", ") + ")")
		}
		return b.String()
	}

	if fn.TypeName != "" {
		b.WriteString(fn.TypeName + " ")
	}
	b.WriteString(index.SimpleName(fn.Name, "::"))
	b.WriteString("(" + strings.Join(params, ", ") + ")")
	if fn.HasModifier(ast.ModConst) {
		b.WriteString(" const")
	}
	return b.String()
}
