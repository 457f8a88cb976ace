package parser

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/jward/arbor/internal/ast"
)

type goParser struct{}

// NewGoParser returns the tree-sitter backed Go parser. Packages map to
// Namespace nodes, type declarations to Class nodes, and functions and methods
// to Function nodes.
func NewGoParser() Parser { return &goParser{} }

func (p *goParser) Language() string { return "go" }

func (p *goParser) Extensions() []string { return []string{".go"} }

func (p *goParser) Parse(ctx context.Context, path string, content []byte, cfg Config) (*ast.Document, error) {
	tree, err := parseTree(ctx, path, golang.GetLanguage(), content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	conv := &goConverter{converter: converter{path: path, src: content}}
	mod := conv.module(root)

	// Declarations hang off a Namespace node for the package clause.
	container := mod
	for _, ch := range namedChildren(root) {
		if ch.Type() != "package_clause" {
			continue
		}
		pkg := conv.node(ast.KindNamespace, ch)
		pkg.Name = conv.text(firstNamed(ch))
		end := conv.loc(root)
		pkg.Loc.EndLine, pkg.Loc.EndCol, pkg.Loc.EndByte = end.EndLine, end.EndCol, end.EndByte
		mod.AddChild(pkg)
		container = pkg
		break
	}
	for _, ch := range namedChildren(root) {
		if ch.Type() == "package_clause" {
			continue
		}
		nodes := conv.convert(ch)
		for _, n := range nodes {
			if container != mod && n.Loc.Before(container.Loc) {
				mod.AddChild(n)
				continue
			}
			container.AddChild(n)
		}
	}

	diags := collectDiagnostics(&conv.converter, root)
	sortDiagnostics(diags)
	return &ast.Document{
		Path:        path,
		Language:    "go",
		ContentHash: ContentHash(content),
		ConfigHash:  cfg.Hash(),
		Root:        mod,
		Diagnostics: diags,
	}, nil
}

type goConverter struct {
	converter
}

var goControlFlow = map[string]bool{
	"if_statement":                true,
	"for_statement":               true,
	"expression_switch_statement": true,
	"type_switch_statement":       true,
	"select_statement":            true,
	"expression_case":             true,
	"type_case":                   true,
	"communication_case":          true,
	"default_case":                true,
	"return_statement":            true,
	"go_statement":                true,
	"defer_statement":             true,
	"break_statement":             true,
	"continue_statement":          true,
	"goto_statement":              true,
	"fallthrough_statement":       true,
}

var goExpressions = map[string]bool{
	"binary_expression":          true,
	"unary_expression":           true,
	"index_expression":           true,
	"slice_expression":           true,
	"type_assertion_expression":  true,
	"type_conversion_expression": true,
	"composite_literal":          true,
	"parenthesized_expression":   true,
	"send_statement":             true,
}

var goLiterals = map[string]bool{
	"int_literal":                true,
	"float_literal":              true,
	"imaginary_literal":          true,
	"rune_literal":               true,
	"interpreted_string_literal": true,
	"raw_string_literal":         true,
	"true":                       true,
	"false":                      true,
	"nil":                        true,
	"iota":                       true,
}

func (c *goConverter) convertChildren(n *sitter.Node) []*ast.Node {
	var out []*ast.Node
	for _, ch := range namedChildren(n) {
		out = append(out, c.convert(ch)...)
	}
	return out
}

func (c *goConverter) convert(n *sitter.Node) []*ast.Node {
	if n == nil {
		return nil
	}
	typ := n.Type()
	switch {
	case goLiterals[typ]:
		return one(c.literal(n))
	case goControlFlow[typ]:
		out := c.node(ast.KindControlFlow, n)
		attach(out, c.convertChildren(n)...)
		return one(out)
	}

	switch typ {
	case "comment", "field_identifier", "package_identifier", "label_name", "blank_identifier":
		return nil
	case "import_declaration":
		return c.imports(n)
	case "function_declaration", "method_declaration", "func_literal":
		return one(c.function(n))
	case "type_declaration":
		return c.typeDecl(n)
	case "var_declaration", "const_declaration":
		return c.varDecl(n)
	case "short_var_declaration":
		return c.shortVarDecl(n)
	case "block":
		out := c.node(ast.KindOther, n)
		attach(out, c.convertChildren(n)...)
		return one(out)
	case "identifier", "type_identifier":
		return one(c.ref(n))
	case "qualified_type":
		return one(c.ref(n))
	case "call_expression":
		out := c.node(ast.KindExpression, n)
		fn := c.convert(n.ChildByFieldName("function"))
		if len(fn) == 1 && fn[0].IsReference() {
			fn[0].AddModifier(ast.ModCall)
		}
		attach(out, fn...)
		attach(out, c.convertChildren(n.ChildByFieldName("arguments"))...)
		return one(out)
	case "assignment_statement", "inc_statement", "dec_statement":
		return one(c.assignment(n))
	case "selector_expression":
		out := c.node(ast.KindExpression, n)
		attach(out, c.convert(n.ChildByFieldName("operand"))...)
		return one(out)
	}
	if goExpressions[typ] {
		out := c.node(ast.KindExpression, n)
		attach(out, c.convertChildren(n)...)
		return one(out)
	}
	return c.convertChildren(n)
}

func (c *goConverter) imports(n *sitter.Node) []*ast.Node {
	var out []*ast.Node
	var visit func(*sitter.Node)
	visit = func(n *sitter.Node) {
		for _, ch := range namedChildren(n) {
			switch ch.Type() {
			case "import_spec":
				imp := c.node(ast.KindOther, ch)
				raw := c.text(ch.ChildByFieldName("path"))
				imp.Value = raw
				imp.Name = strings.Trim(raw, "\"`")
				imp.AddModifier(ast.ModInclude)
				if alias := ch.ChildByFieldName("name"); alias != nil {
					imp.TypeName = c.text(alias)
				}
				out = append(out, imp)
			case "import_spec_list":
				visit(ch)
			}
		}
	}
	visit(n)
	return out
}

// receiverType returns the receiver's type name with pointer and type
// arguments stripped.
func (c *goConverter) receiverType(recv *sitter.Node) string {
	for _, p := range namedChildren(recv) {
		if p.Type() != "parameter_declaration" {
			continue
		}
		t := c.text(p.ChildByFieldName("type"))
		t = strings.TrimPrefix(t, "*")
		if i := strings.IndexByte(t, '['); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return ""
}

func (c *goConverter) function(n *sitter.Node) *ast.Node {
	out := c.node(ast.KindFunction, n)
	name := c.text(n.ChildByFieldName("name"))
	if recv := n.ChildByFieldName("receiver"); recv != nil {
		out.AddModifier(ast.ModMethod)
		if t := c.receiverType(recv); t != "" {
			name = t + "." + name
		}
		for _, p := range c.params(recv) {
			p.AddModifier(ast.ModReceiver)
			out.AddChild(p)
		}
	}
	out.Name = name
	if exported(c.text(n.ChildByFieldName("name"))) {
		out.AddModifier(ast.ModExported)
	}
	if result := n.ChildByFieldName("result"); result != nil {
		out.TypeName = c.text(result)
		if result.Type() == "parameter_list" {
			for _, p := range c.params(result) {
				p.AddModifier(ast.ModResult)
				out.AddChild(p)
			}
		} else {
			attach(out, c.convert(result)...)
		}
	}
	attach(out, c.params(n.ChildByFieldName("parameters"))...)
	if body := n.ChildByFieldName("body"); body != nil {
		attach(out, c.convert(body)...)
	}
	return out
}

func exported(name string) bool {
	return name != "" && strings.ToUpper(name[:1]) == name[:1] && strings.ToLower(name[:1]) != name[:1]
}

// params converts a parameter_list. A declaration naming several parameters
// yields one Parameter per name.
func (c *goConverter) params(list *sitter.Node) []*ast.Node {
	var out []*ast.Node
	for _, p := range namedChildren(list) {
		switch p.Type() {
		case "parameter_declaration", "variadic_parameter_declaration":
		default:
			continue
		}
		typ := p.ChildByFieldName("type")
		names := fieldChildren(p, "name")
		if len(names) == 0 {
			param := c.node(ast.KindParameter, p)
			param.TypeName = c.text(typ)
			attach(param, c.convert(typ)...)
			out = append(out, param)
			continue
		}
		for i, nm := range names {
			param := c.node(ast.KindParameter, nm)
			param.Name = c.text(nm)
			param.TypeName = c.text(typ)
			if i == len(names)-1 {
				end := c.loc(p)
				param.Loc.EndLine, param.Loc.EndCol, param.Loc.EndByte = end.EndLine, end.EndCol, end.EndByte
				attach(param, c.convert(typ)...)
			}
			out = append(out, param)
		}
	}
	return out
}

func (c *goConverter) typeDecl(n *sitter.Node) []*ast.Node {
	var out []*ast.Node
	for _, spec := range namedChildren(n) {
		switch spec.Type() {
		case "type_spec", "type_alias":
		default:
			continue
		}
		cls := c.node(ast.KindClass, spec)
		cls.Name = c.text(spec.ChildByFieldName("name"))
		if exported(cls.Name) {
			cls.AddModifier(ast.ModExported)
		}
		typ := spec.ChildByFieldName("type")
		switch {
		case typ == nil:
		case typ.Type() == "struct_type":
			cls.AddModifier(ast.ModStruct)
			attach(cls, c.structFields(typ)...)
		case typ.Type() == "interface_type":
			cls.AddModifier(ast.ModInterface)
			attach(cls, c.interfaceMethods(typ)...)
		default:
			cls.TypeName = c.text(typ)
			attach(cls, c.convert(typ)...)
		}
		out = append(out, cls)
	}
	// A single spec spans the whole declaration so its text includes the
	// type keyword.
	if len(out) == 1 && n.NamedChildCount() == 1 {
		whole := c.loc(n)
		out[0].Loc = whole
	}
	return out
}

func (c *goConverter) structFields(st *sitter.Node) []*ast.Node {
	var out []*ast.Node
	for _, list := range namedChildren(st) {
		if list.Type() != "field_declaration_list" {
			continue
		}
		for _, fd := range namedChildren(list) {
			if fd.Type() != "field_declaration" {
				continue
			}
			typ := fd.ChildByFieldName("type")
			names := fieldChildren(fd, "name")
			if len(names) == 0 {
				// Embedded field: a reference to the embedded type.
				out = append(out, c.convert(typ)...)
				continue
			}
			for i, nm := range names {
				v := c.node(ast.KindVariable, nm)
				v.Name = c.text(nm)
				v.TypeName = c.text(typ)
				if exported(v.Name) {
					v.AddModifier(ast.ModExported)
				}
				if i == len(names)-1 {
					end := c.loc(fd)
					v.Loc.EndLine, v.Loc.EndCol, v.Loc.EndByte = end.EndLine, end.EndCol, end.EndByte
					for _, r := range c.convert(typ) {
						v.AddChild(r)
					}
				}
				out = append(out, v)
			}
		}
	}
	return out
}

func (c *goConverter) interfaceMethods(it *sitter.Node) []*ast.Node {
	var out []*ast.Node
	for _, m := range namedChildren(it) {
		switch m.Type() {
		case "method_elem", "method_spec":
			fn := c.node(ast.KindFunction, m)
			fn.Name = c.text(m.ChildByFieldName("name"))
			fn.AddModifier(ast.ModPrototype)
			attach(fn, c.params(m.ChildByFieldName("parameters"))...)
			if result := m.ChildByFieldName("result"); result != nil {
				fn.TypeName = c.text(result)
				if result.Type() == "parameter_list" {
					attach(fn, c.params(result)...)
				} else {
					attach(fn, c.convert(result)...)
				}
			}
			out = append(out, fn)
		default:
			out = append(out, c.convert(m)...)
		}
	}
	return out
}

func (c *goConverter) varDecl(n *sitter.Node) []*ast.Node {
	constant := n.Type() == "const_declaration"
	var out []*ast.Node
	var visit func(*sitter.Node)
	visit = func(parent *sitter.Node) {
		for _, spec := range namedChildren(parent) {
			switch spec.Type() {
			case "var_spec", "const_spec":
				out = append(out, c.valueSpec(spec, constant)...)
			case "var_spec_list":
				visit(spec)
			}
		}
	}
	visit(n)
	if len(out) == 1 && n.NamedChildCount() == 1 {
		out[0].Loc = c.loc(n)
	}
	return out
}

func (c *goConverter) valueSpec(spec *sitter.Node, constant bool) []*ast.Node {
	typ := spec.ChildByFieldName("type")
	value := spec.ChildByFieldName("value")
	names := fieldChildren(spec, "name")

	var out []*ast.Node
	for _, nm := range names {
		v := c.node(ast.KindVariable, nm)
		v.Name = c.text(nm)
		v.TypeName = c.text(typ)
		if constant {
			v.AddModifier(ast.ModConst)
		}
		if exported(v.Name) {
			v.AddModifier(ast.ModExported)
		}
		out = append(out, v)
	}
	if len(out) == 1 {
		out[0].Loc = c.loc(spec)
		attach(out[0], c.convert(typ)...)
		if value != nil {
			if exprs := namedChildren(value); len(exprs) == 1 && goLiterals[exprs[0].Type()] {
				out[0].Value = c.text(exprs[0])
			}
			attach(out[0], c.convert(value)...)
		}
		return out
	}
	out = append(out, c.convert(typ)...)
	return append(out, c.convert(value)...)
}

func (c *goConverter) shortVarDecl(n *sitter.Node) []*ast.Node {
	var out []*ast.Node
	for _, nm := range namedChildren(n.ChildByFieldName("left")) {
		if nm.Type() != "identifier" {
			continue
		}
		v := c.node(ast.KindVariable, nm)
		v.Name = c.text(nm)
		out = append(out, v)
	}
	return append(out, c.convert(n.ChildByFieldName("right"))...)
}

func (c *goConverter) assignment(n *sitter.Node) *ast.Node {
	out := c.node(ast.KindExpression, n)
	left := n.ChildByFieldName("left")
	for _, ch := range namedChildren(n) {
		nodes := c.convert(ch)
		isTarget := n.Type() != "assignment_statement" ||
			(left != nil && ch.StartByte() == left.StartByte() && ch.EndByte() == left.EndByte())
		if isTarget {
			for _, t := range nodes {
				if t.IsReference() {
					t.AddModifier(ast.ModWrite)
				}
			}
		}
		attach(out, nodes...)
	}
	return out
}
