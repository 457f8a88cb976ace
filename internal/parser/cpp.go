package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"

	"github.com/jward/arbor/internal/ast"
)

// Modifiers specific to the C/C++ backend.
const (
	modUnion   = "union"
	modEnum    = ast.ModEnum
	modTypedef = "typedef"
	modDefine  = "define:"
)

type cppParser struct{}

// NewCppParser returns the tree-sitter backed C/C++ parser.
func NewCppParser() Parser { return &cppParser{} }

func (p *cppParser) Language() string { return "cpp" }

func (p *cppParser) Extensions() []string {
	return []string{".c", ".h", ".cc", ".cpp", ".cxx", ".c++", ".hpp", ".hh", ".hxx", ".inl"}
}

func (p *cppParser) Parse(ctx context.Context, path string, content []byte, cfg Config) (*ast.Document, error) {
	flags := parseCompileFlags(cfg.CompileFlags)
	dialect := cDialect(path, cfg.Language, flags)

	grammar := cpp.GetLanguage()
	if dialect == "c" {
		grammar = c.GetLanguage()
	}
	tree, err := parseTree(ctx, path, grammar, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	conv := &cppConverter{
		converter:   converter{path: path, src: content},
		dir:         filepath.Dir(path),
		includeDirs: flags.includeDirs,
	}
	mod := conv.module(root)
	for _, def := range flags.defines {
		mod.AddModifier(modDefine + def)
	}
	attach(mod, conv.convertChildren(root)...)

	diags := append(collectDiagnostics(&conv.converter, root), conv.diags...)
	sortDiagnostics(diags)
	return &ast.Document{
		Path:        path,
		Language:    dialect,
		ContentHash: ContentHash(content),
		ConfigHash:  cfg.Hash(),
		Root:        mod,
		Diagnostics: diags,
	}, nil
}

type compileFlags struct {
	includeDirs []string
	defines     []string
	lang        string // value of -x
	std         string // value of -std=
}

func parseCompileFlags(args []string) compileFlags {
	var f compileFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		next := func() string {
			if i+1 < len(args) {
				i++
				return args[i]
			}
			return ""
		}
		switch {
		case arg == "-I" || arg == "-isystem" || arg == "-iquote":
			if dir := next(); dir != "" {
				f.includeDirs = append(f.includeDirs, dir)
			}
		case strings.HasPrefix(arg, "-I"):
			f.includeDirs = append(f.includeDirs, arg[2:])
		case arg == "-D":
			if def := next(); def != "" {
				f.defines = append(f.defines, defineName(def))
			}
		case strings.HasPrefix(arg, "-D"):
			f.defines = append(f.defines, defineName(arg[2:]))
		case arg == "-x":
			f.lang = next()
		case strings.HasPrefix(arg, "-std="):
			f.std = strings.TrimPrefix(arg, "-std=")
		}
	}
	return f
}

func defineName(def string) string {
	if i := strings.IndexByte(def, '='); i >= 0 {
		return def[:i]
	}
	return def
}

// cDialect picks between the C and C++ grammars.
func cDialect(path, lang string, f compileFlags) string {
	switch {
	case lang == "c":
		return "c"
	case f.lang == "c":
		return "c"
	case f.lang == "c++":
		return "cpp"
	case f.std != "":
		if strings.Contains(f.std, "++") {
			return "cpp"
		}
		return "c"
	case strings.EqualFold(filepath.Ext(path), ".c"):
		return "c"
	}
	return "cpp"
}

func sortDiagnostics(diags []ast.Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		return diags[i].Loc.Before(diags[j].Loc)
	})
}

type cppConverter struct {
	converter
	dir         string
	includeDirs []string
	diags       []ast.Diagnostic
}

var cppControlFlow = map[string]bool{
	"if_statement":       true,
	"for_statement":      true,
	"for_range_loop":     true,
	"while_statement":    true,
	"do_statement":       true,
	"switch_statement":   true,
	"case_statement":     true,
	"return_statement":   true,
	"break_statement":    true,
	"continue_statement": true,
	"goto_statement":     true,
	"try_statement":      true,
	"catch_clause":       true,
	"throw_statement":    true,
}

var cppExpressions = map[string]bool{
	"binary_expression":        true,
	"unary_expression":         true,
	"conditional_expression":   true,
	"subscript_expression":     true,
	"cast_expression":          true,
	"new_expression":           true,
	"delete_expression":        true,
	"pointer_expression":       true,
	"sizeof_expression":        true,
	"parenthesized_expression": true,
	"comma_expression":         true,
	"initializer_list":         true,
	"lambda_expression":        true,
	"field_expression":         true,
}

var cppLiterals = map[string]bool{
	"number_literal":      true,
	"string_literal":      true,
	"raw_string_literal":  true,
	"char_literal":        true,
	"concatenated_string": true,
	"true":                true,
	"false":               true,
	"null":                true,
	"nullptr":             true,
}

var cppIgnored = map[string]bool{
	"comment":                 true,
	"primitive_type":          true,
	"sized_type_specifier":    true,
	"storage_class_specifier": true,
	"type_qualifier":          true,
	"access_specifier":        true,
	"virtual":                 true,
	"auto":                    true,
	"this":                    true,
	"field_identifier":        true,
	"statement_identifier":    true,
	"template_parameter_list": true,
	"escape_sequence":         true,
}

func (c *cppConverter) convertChildren(n *sitter.Node) []*ast.Node {
	var out []*ast.Node
	for _, ch := range namedChildren(n) {
		out = append(out, c.convert(ch)...)
	}
	return out
}

func (c *cppConverter) convert(n *sitter.Node) []*ast.Node {
	if n == nil {
		return nil
	}
	typ := n.Type()
	switch {
	case cppIgnored[typ]:
		return nil
	case cppLiterals[typ]:
		return one(c.literal(n))
	case cppControlFlow[typ]:
		out := c.node(ast.KindControlFlow, n)
		attach(out, c.convertChildren(n)...)
		return one(out)
	}

	switch typ {
	case "namespace_definition":
		return one(c.namespace(n))
	case "class_specifier", "struct_specifier", "union_specifier", "enum_specifier":
		return c.classSpecifier(n)
	case "function_definition":
		return one(c.function(n))
	case "declaration", "field_declaration":
		return c.declaration(n)
	case "template_declaration":
		return c.template(n)
	case "type_definition", "alias_declaration":
		return c.typedef(n)
	case "parameter_declaration", "optional_parameter_declaration", "variadic_parameter_declaration":
		return one(c.parameter(n))
	case "preproc_include":
		return one(c.include(n))
	case "preproc_def", "preproc_function_def":
		return one(c.macro(n))
	case "compound_statement":
		out := c.node(ast.KindOther, n)
		attach(out, c.convertChildren(n)...)
		return one(out)
	case "identifier", "qualified_identifier", "type_identifier", "namespace_identifier":
		return one(c.ref(n))
	case "template_type", "template_function":
		var refs []*ast.Node
		if name := n.ChildByFieldName("name"); name != nil {
			refs = append(refs, c.ref(name))
		}
		return append(refs, c.convertChildren(n.ChildByFieldName("arguments"))...)
	case "call_expression":
		return one(c.call(n))
	case "assignment_expression", "update_expression":
		return one(c.assignment(n))
	case "linkage_specification":
		nodes := c.convert(n.ChildByFieldName("body"))
		for _, d := range nodes {
			if isDecl(d) {
				d.AddModifier(ast.ModExtern)
			}
		}
		return nodes
	}

	if cppExpressions[typ] {
		out := c.node(ast.KindExpression, n)
		if typ == "field_expression" {
			attach(out, c.convert(n.ChildByFieldName("argument"))...)
			return one(out)
		}
		attach(out, c.convertChildren(n)...)
		return one(out)
	}
	// ERROR, expression_statement, preprocessor conditionals, argument
	// lists and other wrappers contribute only their children.
	return c.convertChildren(n)
}

func one(n *ast.Node) []*ast.Node {
	if n == nil {
		return nil
	}
	return []*ast.Node{n}
}

func isDecl(n *ast.Node) bool {
	switch n.Kind {
	case ast.KindClass, ast.KindFunction, ast.KindVariable:
		return true
	}
	return false
}

func (c *cppConverter) namespace(n *sitter.Node) *ast.Node {
	out := c.node(ast.KindNamespace, n)
	out.Name = c.text(n.ChildByFieldName("name"))
	attach(out, c.convertChildren(n.ChildByFieldName("body"))...)
	return out
}

func isClassLike(n *sitter.Node) bool {
	switch n.Type() {
	case "class_specifier", "struct_specifier", "union_specifier", "enum_specifier":
		return true
	}
	return false
}

// classSpecifier converts a class, struct, union, or enum. A specifier without
// a body is a type reference.
func (c *cppConverter) classSpecifier(n *sitter.Node) []*ast.Node {
	name := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")
	if body == nil {
		if name == nil {
			return nil
		}
		return one(c.ref(name))
	}

	out := c.node(ast.KindClass, n)
	out.Name = c.text(name)
	access := ast.ModPrivate
	switch n.Type() {
	case "struct_specifier":
		out.AddModifier(ast.ModStruct)
		access = ast.ModPublic
	case "union_specifier":
		out.AddModifier(modUnion)
		access = ast.ModPublic
	case "enum_specifier":
		out.AddModifier(modEnum)
		attach(out, c.enumerators(body)...)
		return one(out)
	}

	for _, ch := range namedChildren(n) {
		if ch.Type() == "base_class_clause" {
			attach(out, c.convertChildren(ch)...)
		}
	}
	for _, ch := range namedChildren(body) {
		if ch.Type() == "access_specifier" {
			access = strings.TrimSuffix(strings.TrimSpace(c.text(ch)), ":")
			continue
		}
		for _, member := range c.convert(ch) {
			if isDecl(member) {
				member.AddModifier(access)
			}
			out.AddChild(member)
		}
	}
	return one(out)
}

func (c *cppConverter) enumerators(body *sitter.Node) []*ast.Node {
	var out []*ast.Node
	for _, e := range namedChildren(body) {
		if e.Type() != "enumerator" {
			continue
		}
		v := c.node(ast.KindVariable, e)
		v.Name = c.text(e.ChildByFieldName("name"))
		v.AddModifier(ast.ModConst)
		if val := e.ChildByFieldName("value"); val != nil {
			v.Value = c.text(val)
			attach(v, c.convert(val)...)
		}
		out = append(out, v)
	}
	return out
}

// declarator is the unwrapped form of a C declarator chain.
type declarator struct {
	name     string
	nameNode *sitter.Node
	fn       *sitter.Node // innermost function_declarator, if any
	value    *sitter.Node // initializer, if any
	suffix   string       // pointer/reference/array decoration
}

func firstNamed(n *sitter.Node) *sitter.Node {
	if n == nil || n.NamedChildCount() == 0 {
		return nil
	}
	return n.NamedChild(0)
}

func (c *cppConverter) unwrapDeclarator(n *sitter.Node) declarator {
	var d declarator
	for n != nil {
		switch n.Type() {
		case "identifier", "field_identifier", "type_identifier", "qualified_identifier",
			"destructor_name", "operator_name", "template_function", "template_method", "operator_cast":
			d.name = c.text(n)
			d.nameNode = n
			return d
		case "function_declarator":
			if d.fn == nil {
				d.fn = n
			}
			n = n.ChildByFieldName("declarator")
		case "init_declarator":
			d.value = n.ChildByFieldName("value")
			n = n.ChildByFieldName("declarator")
		case "pointer_declarator":
			d.suffix += "*"
			n = n.ChildByFieldName("declarator")
		case "array_declarator":
			d.suffix += "[]"
			n = n.ChildByFieldName("declarator")
		case "reference_declarator":
			d.suffix += "&"
			n = firstNamed(n)
		default:
			n = firstNamed(n)
		}
	}
	return d
}

// fieldChildren returns every child of n attached under field.
func fieldChildren(n *sitter.Node, field string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) == field {
			if ch := n.Child(i); ch != nil {
				out = append(out, ch)
			}
		}
	}
	return out
}

// typeRefs converts a type specifier into reference nodes. Builtin types
// produce nothing.
func (c *cppConverter) typeRefs(typ *sitter.Node) []*ast.Node {
	if typ == nil {
		return nil
	}
	return c.convert(typ)
}

// specifiers copies storage classes, qualifiers, and virtual markers of n onto
// out.
func (c *cppConverter) specifiers(n *sitter.Node, out *ast.Node) {
	for _, ch := range children(n) {
		switch ch.Type() {
		case "storage_class_specifier", "type_qualifier":
			out.AddModifier(strings.TrimSpace(c.text(ch)))
		case "virtual", "virtual_function_specifier":
			out.AddModifier(ast.ModVirtual)
		}
	}
}

func (c *cppConverter) function(n *sitter.Node) *ast.Node {
	out := c.node(ast.KindFunction, n)
	typ := n.ChildByFieldName("type")
	d := c.unwrapDeclarator(n.ChildByFieldName("declarator"))
	out.Name = d.name
	out.TypeName = c.text(typ) + d.suffix
	if d.nameNode != nil && d.nameNode.Type() == "qualified_identifier" {
		out.AddModifier(ast.ModMethod)
	}
	c.specifiers(n, out)
	attach(out, c.typeRefs(typ)...)
	if d.fn != nil {
		c.functionQualifiers(d.fn, out)
		attach(out, c.params(d.fn)...)
	}
	for _, ch := range namedChildren(n) {
		if ch.Type() == "field_initializer_list" {
			attach(out, c.convertChildren(ch)...)
		}
	}
	if body := n.ChildByFieldName("body"); body != nil {
		attach(out, c.convert(body)...)
	}
	return out
}

func (c *cppConverter) functionQualifiers(fn *sitter.Node, out *ast.Node) {
	for _, ch := range children(fn) {
		switch ch.Type() {
		case "type_qualifier", "virtual_specifier":
			out.AddModifier(strings.TrimSpace(c.text(ch)))
		}
	}
}

func (c *cppConverter) params(fn *sitter.Node) []*ast.Node {
	var out []*ast.Node
	for _, p := range namedChildren(fn.ChildByFieldName("parameters")) {
		switch p.Type() {
		case "parameter_declaration", "optional_parameter_declaration", "variadic_parameter_declaration":
			out = append(out, c.parameter(p))
		}
	}
	return out
}

func (c *cppConverter) parameter(n *sitter.Node) *ast.Node {
	out := c.node(ast.KindParameter, n)
	typ := n.ChildByFieldName("type")
	d := c.unwrapDeclarator(n.ChildByFieldName("declarator"))
	out.Name = d.name
	out.TypeName = c.text(typ) + d.suffix
	c.specifiers(n, out)
	attach(out, c.typeRefs(typ)...)
	if def := n.ChildByFieldName("default_value"); def != nil {
		attach(out, c.convert(def)...)
	}
	return out
}

// span builds a location running from the start of from to the end of to.
func (c *cppConverter) span(from, to *sitter.Node) ast.Location {
	l := c.loc(from)
	end := c.loc(to)
	l.EndLine, l.EndCol, l.EndByte = end.EndLine, end.EndCol, end.EndByte
	return l
}

// declaration converts a declaration or class member declaration. Each
// declarator becomes a Variable, or a prototype Function when it declares a
// function.
func (c *cppConverter) declaration(n *sitter.Node) []*ast.Node {
	typ := n.ChildByFieldName("type")
	typeName := c.text(typ)

	var out, refs []*ast.Node
	if typ != nil && isClassLike(typ) && typ.ChildByFieldName("body") != nil {
		out = append(out, c.classSpecifier(typ)...)
		typeName = c.text(typ.ChildByFieldName("name"))
	} else {
		refs = c.typeRefs(typ)
	}

	decls := fieldChildren(n, "declarator")
	if len(decls) == 0 {
		return append(out, refs...)
	}

	for i, dn := range decls {
		d := c.unwrapDeclarator(dn)
		kind := ast.KindVariable
		if d.fn != nil && d.value == nil {
			kind = ast.KindFunction
		}
		decl := &ast.Node{Kind: kind, Syntax: n.Type(), Name: d.name, TypeName: typeName + d.suffix}
		switch {
		case len(decls) == 1:
			decl.Loc = c.loc(n)
		case i == 0:
			decl.Loc = c.span(n, dn)
		default:
			decl.Loc = c.loc(dn)
		}
		c.specifiers(n, decl)
		if i == 0 {
			attach(decl, refs...)
		}

		if kind == ast.KindFunction {
			decl.AddModifier(ast.ModPrototype)
			c.functionQualifiers(d.fn, decl)
			attach(decl, c.params(d.fn)...)
		} else {
			value := d.value
			if value == nil && len(decls) == 1 {
				value = n.ChildByFieldName("default_value")
			}
			if value != nil {
				if cppLiterals[value.Type()] {
					decl.Value = c.text(value)
				}
				attach(decl, c.convert(value)...)
			}
		}
		out = append(out, decl)
	}
	return out
}

// template converts the declaration wrapped by a template and stretches its
// location over the template header.
func (c *cppConverter) template(n *sitter.Node) []*ast.Node {
	var out []*ast.Node
	for _, ch := range namedChildren(n) {
		if ch.Type() == "template_parameter_list" {
			continue
		}
		out = append(out, c.convert(ch)...)
	}
	if len(out) > 0 {
		first := out[0]
		start := c.loc(n)
		first.Loc.StartLine, first.Loc.StartCol, first.Loc.StartByte = start.StartLine, start.StartCol, start.StartByte
	}
	for _, d := range out {
		if isDecl(d) {
			d.AddModifier(ast.ModTemplate)
		}
	}
	return out
}

// typedef converts typedef and using-alias declarations into Class nodes
// marked typedef. An anonymous struct body takes the alias name.
func (c *cppConverter) typedef(n *sitter.Node) []*ast.Node {
	typ := n.ChildByFieldName("type")
	var names []*sitter.Node
	if n.Type() == "alias_declaration" {
		names = []*sitter.Node{n.ChildByFieldName("name")}
	} else {
		names = fieldChildren(n, "declarator")
	}

	typeName := c.text(typ)
	var out []*ast.Node
	if typ != nil && isClassLike(typ) && typ.ChildByFieldName("body") != nil {
		classes := c.classSpecifier(typ)
		if len(classes) == 1 && classes[0].Name == "" && len(names) > 0 {
			cls := classes[0]
			cls.Name = c.unwrapDeclarator(names[0]).name
			cls.Loc = c.loc(n)
			cls.AddModifier(modTypedef)
			return classes
		}
		out = append(out, classes...)
		typeName = classes[0].Name
		typ = nil
	}

	for i, dn := range names {
		d := c.unwrapDeclarator(dn)
		td := &ast.Node{Kind: ast.KindClass, Syntax: n.Type(), Name: d.name, TypeName: typeName + d.suffix}
		td.AddModifier(modTypedef)
		if len(names) == 1 {
			td.Loc = c.loc(n)
		} else {
			td.Loc = c.loc(dn)
		}
		if i == 0 && len(names) == 1 {
			attach(td, c.typeRefs(typ)...)
		}
		out = append(out, td)
	}
	return out
}

func (c *cppConverter) include(n *sitter.Node) *ast.Node {
	out := c.node(ast.KindOther, n)
	out.AddModifier(ast.ModInclude)
	pathNode := n.ChildByFieldName("path")
	raw := c.text(pathNode)
	out.Value = raw
	if pathNode != nil && pathNode.Type() == "system_lib_string" {
		out.Name = strings.Trim(raw, "<>")
		out.AddModifier(ast.ModSystem)
		return out
	}
	out.Name = strings.Trim(raw, `"`)
	if out.Name != "" && !c.includeExists(out.Name) {
		c.diags = append(c.diags, ast.Diagnostic{
			Severity: ast.SeverityWarning,
			Kind:     ast.DiagInclude,
			Message:  fmt.Sprintf("include not found: %s", out.Name),
			Loc:      out.Loc,
		})
	}
	return out
}

// includeExists looks for a quoted include next to the file and then in each
// -I directory.
func (c *cppConverter) includeExists(name string) bool {
	if filepath.IsAbs(name) {
		_, err := os.Stat(name)
		return err == nil
	}
	for _, dir := range append([]string{c.dir}, c.includeDirs...) {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

func (c *cppConverter) macro(n *sitter.Node) *ast.Node {
	out := c.node(ast.KindOther, n)
	out.Name = c.text(n.ChildByFieldName("name"))
	if v := n.ChildByFieldName("value"); v != nil {
		out.Value = strings.TrimSpace(c.text(v))
	}
	return out
}

func (c *cppConverter) call(n *sitter.Node) *ast.Node {
	out := c.node(ast.KindExpression, n)
	fn := c.convert(n.ChildByFieldName("function"))
	if len(fn) == 1 && fn[0].IsReference() {
		fn[0].AddModifier(ast.ModCall)
	}
	attach(out, fn...)
	attach(out, c.convertChildren(n.ChildByFieldName("arguments"))...)
	return out
}

// assignment marks the assigned name as a write.
func (c *cppConverter) assignment(n *sitter.Node) *ast.Node {
	out := c.node(ast.KindExpression, n)
	target := n.ChildByFieldName("left")
	if target == nil {
		target = n.ChildByFieldName("argument")
	}
	for _, ch := range namedChildren(n) {
		nodes := c.convert(ch)
		if target != nil && ch.StartByte() == target.StartByte() && ch.EndByte() == target.EndByte() {
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
