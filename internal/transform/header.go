package transform

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/jward/arbor/internal/ast"
	"github.com/jward/arbor/internal/index"
)

// Decl is a namespace-scope declaration of a package: a class, enum, free
// function, or global variable.
type Decl struct {
	QualifiedName string   `json:"qualified_name"`
	Name          string   `json:"name"`
	Kind          string   `json:"kind"`
	Namespace     string   `json:"namespace,omitempty"`
	Signature     string   `json:"signature,omitempty"`
	Modifiers     []string `json:"modifiers,omitempty"`
	Path          string   `json:"path"`
	Line          int      `json:"line"`

	sym index.Symbol
}

func newDecl(s index.Symbol) Decl {
	ns := ""
	if i := strings.LastIndex(s.QualifiedName, "::"); i >= 0 {
		ns = s.QualifiedName[:i]
	}
	return Decl{
		QualifiedName: s.QualifiedName,
		Name:          s.Name,
		Kind:          s.Kind,
		Namespace:     ns,
		Signature:     s.Signature,
		Modifiers:     s.Modifiers,
		Path:          s.Path,
		Line:          s.Line,
		sym:           s,
	}
}

// key distinguishes overloads sharing a qualified name.
func (d Decl) key() string {
	return d.QualifiedName + "\x00" + d.Signature
}

func (d Decl) has(mod string) bool {
	return slices.Contains(d.Modifiers, mod)
}

// source is a file's content with line offsets for 1-based line/column
// addressing.
type source struct {
	text  string
	lines []int
}

func newSource(text string) *source {
	s := &source{text: text, lines: []int{0}}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			s.lines = append(s.lines, i+1)
		}
	}
	return s
}

func (s *source) offset(line, col int) int {
	if line < 1 {
		return 0
	}
	if line > len(s.lines) {
		return len(s.text)
	}
	return min(s.lines[line-1]+col-1, len(s.text))
}

// span returns the text of a symbol's range.
func (s *source) span(sym index.Symbol) string {
	start, end := s.offset(sym.Line, sym.Col), s.offset(sym.EndLine, sym.EndCol)
	if start >= end {
		return ""
	}
	return s.text[start:end]
}

// declText renders d as it appears in the generated header: types verbatim,
// functions as prototypes, globals as extern declarations.
func declText(d Decl, src *source) (string, error) {
	switch d.Kind {
	case index.KindClass:
		text := strings.TrimSpace(src.span(d.sym))
		if text == "" {
			return "", fmt.Errorf("no source text for %s at %s:%d", d.QualifiedName, d.Path, d.Line)
		}
		return strings.TrimSuffix(text, ";") + ";", nil
	case index.KindFunction:
		text := src.span(d.sym)
		if !d.has(ast.ModPrototype) {
			if i := strings.IndexByte(text, '{'); i >= 0 {
				text = text[:i]
			}
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), ";")
		if text == "" {
			return "", fmt.Errorf("no source text for %s at %s:%d", d.QualifiedName, d.Path, d.Line)
		}
		return text + ";", nil
	case index.KindVariable:
		typ := strings.TrimSpace(d.Signature)
		if typ == "" {
			return "", fmt.Errorf("no type for %s at %s:%d", d.QualifiedName, d.Path, d.Line)
		}
		if d.has(ast.ModConst) && !strings.Contains(typ, "const") {
			typ = "const " + typ
		}
		return fmt.Sprintf("extern %s %s;", typ, d.Name), nil
	}
	return "", fmt.Errorf("cannot declare %s %s", d.Kind, d.QualifiedName)
}

// headerInput is everything the generated header is built from.
type headerInput struct {
	pkg        Package
	convention string
	header     string
	system     []string // <...> includes
	local      []string // "..." includes of files outside the package
	decls      []Decl
	texts      map[string]string
}

// guard derives the include guard, e.g. CORE_CORE_H for Core.h in Core.
func guard(pkg, header string) string {
	clean := func(s string) string {
		return strings.Map(func(r rune) rune {
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				return unicode.ToUpper(r)
			}
			return '_'
		}, s)
	}
	return clean(pkg) + "_" + clean(header)
}

// generateHeader emits the consolidated header: guard, includes, then the
// declarations in dependency order, grouped into namespace blocks.
func generateHeader(in headerInput) string {
	g := guard(in.pkg.Name, in.header)
	var b strings.Builder
	fmt.Fprintf(&b, "// Generated by arbor (%s convention) for package %s. Do not edit.\n", in.convention, in.pkg.Name)
	fmt.Fprintf(&b, "#ifndef %s\n#define %s\n", g, g)

	if len(in.system) > 0 || len(in.local) > 0 {
		b.WriteString("\n")
		for _, inc := range in.system {
			fmt.Fprintf(&b, "#include <%s>\n", inc)
		}
		for _, inc := range in.local {
			fmt.Fprintf(&b, "#include %q\n", inc)
		}
	}

	ns := ""
	for _, d := range in.decls {
		if d.Namespace != ns {
			if ns != "" {
				fmt.Fprintf(&b, "\n}  // namespace %s\n", ns)
			}
			ns = d.Namespace
			if ns != "" {
				fmt.Fprintf(&b, "\nnamespace %s {\n", ns)
			}
		}
		b.WriteString("\n")
		b.WriteString(in.texts[d.key()])
		b.WriteString("\n")
	}
	if ns != "" {
		fmt.Fprintf(&b, "\n}  // namespace %s\n", ns)
	}

	fmt.Fprintf(&b, "\n#endif  // %s\n", g)
	return b.String()
}
