package parser

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/arbor/internal/ast"
	arborerrors "github.com/jward/arbor/internal/errors"
)

// parseTree runs tree-sitter over content. A fresh sitter.Parser is created
// per call because parsers are not safe for concurrent use.
func parseTree(ctx context.Context, path string, lang *sitter.Language, content []byte) (*sitter.Tree, error) {
	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(lang)

	tree, err := p.ParseCtx(ctx, nil, content)
	if err != nil {
		if ctx.Err() != nil {
			return nil, arborerrors.NewParseError(path, fmt.Errorf("%w: %v", arborerrors.ErrParseTimeout, ctx.Err()))
		}
		return nil, arborerrors.NewParseError(path, err)
	}
	if tree == nil {
		return nil, arborerrors.NewParseError(path, fmt.Errorf("tree-sitter returned no tree"))
	}
	return tree, nil
}

// converter holds the state shared by the language backends while turning a
// tree-sitter tree into ast nodes.
type converter struct {
	path string
	src  []byte
}

func (c *converter) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(c.src)
}

func (c *converter) loc(n *sitter.Node) ast.Location {
	sp, ep := n.StartPoint(), n.EndPoint()
	return ast.Location{
		Path:      c.path,
		StartLine: int(sp.Row) + 1,
		StartCol:  int(sp.Column) + 1,
		EndLine:   int(ep.Row) + 1,
		EndCol:    int(ep.Column) + 1,
		StartByte: int(n.StartByte()),
		EndByte:   int(n.EndByte()),
	}
}

func (c *converter) node(kind ast.Kind, n *sitter.Node) *ast.Node {
	return &ast.Node{Kind: kind, Syntax: n.Type(), Loc: c.loc(n)}
}

// ref builds a name-reference expression for an identifier-like node.
func (c *converter) ref(n *sitter.Node) *ast.Node {
	out := c.node(ast.KindExpression, n)
	out.Name = c.text(n)
	return out
}

// literal builds a literal expression carrying its source text as Value.
func (c *converter) literal(n *sitter.Node) *ast.Node {
	out := c.node(ast.KindExpression, n)
	out.Value = c.text(n)
	return out
}

// module builds the root node spanning the whole file.
func (c *converter) module(root *sitter.Node) *ast.Node {
	out := c.node(ast.KindModule, root)
	out.Name = c.path
	out.Loc.StartLine, out.Loc.StartCol, out.Loc.StartByte = 1, 1, 0
	return out
}

// namedChildren returns the named children of n.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		if ch := n.NamedChild(i); ch != nil {
			out = append(out, ch)
		}
	}
	return out
}

// children returns every child of n, named or anonymous.
func children(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.ChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		if ch := n.Child(i); ch != nil {
			out = append(out, ch)
		}
	}
	return out
}

// attach adds converted nodes to parent in source order.
func attach(parent *ast.Node, nodes ...*ast.Node) {
	for _, n := range nodes {
		parent.AddChild(n)
	}
}

// collectDiagnostics reports ERROR and MISSING nodes. Only subtrees that
// contain errors are visited.
func collectDiagnostics(c *converter, root *sitter.Node) []ast.Diagnostic {
	var diags []ast.Diagnostic
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		switch {
		case n.IsMissing():
			diags = append(diags, ast.Diagnostic{
				Severity: ast.SeverityError,
				Kind:     ast.DiagMissing,
				Message:  fmt.Sprintf("missing %s", n.Type()),
				Loc:      c.loc(n),
			})
			return
		case n.Type() == "ERROR":
			diags = append(diags, ast.Diagnostic{
				Severity: ast.SeverityError,
				Kind:     ast.DiagSyntax,
				Message:  fmt.Sprintf("syntax error near %q", snippet(c.text(n))),
				Loc:      c.loc(n),
			})
		}
		if !n.HasError() {
			return
		}
		for _, ch := range children(n) {
			visit(ch)
		}
	}
	visit(root)
	return diags
}

func snippet(s string) string {
	const max = 30
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
