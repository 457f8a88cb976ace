package parser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/ast"
	arborerrors "github.com/jward/arbor/internal/errors"
)

// find returns the first node of the given kind and name in source order.
func find(root *ast.Node, kind ast.Kind, name string) *ast.Node {
	var found *ast.Node
	ast.Walk(root, func(n *ast.Node, _ []*ast.Node) bool {
		if found != nil {
			return false
		}
		if n.Kind == kind && n.Name == name {
			found = n
			return false
		}
		return true
	})
	return found
}

func parseCpp(t *testing.T, src string, flags ...string) *ast.Document {
	t.Helper()
	doc, err := NewCppParser().Parse(context.Background(), "test.cpp", []byte(src), Config{Language: "cpp", CompileFlags: flags})
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.NoError(t, ast.Validate(doc.Root))
	return doc
}

// ============================================================================
// Registry and hashing
// ============================================================================

func TestRegistry_Resolve(t *testing.T) {
	t.Parallel()
	reg := DefaultRegistry()

	p, err := reg.Resolve("src/shape.hpp", "")
	require.NoError(t, err)
	assert.Equal(t, "cpp", p.Language())

	p, err = reg.Resolve("main.go", "")
	require.NoError(t, err)
	assert.Equal(t, "go", p.Language())

	p, err = reg.Resolve("weird.txt", "c++")
	require.NoError(t, err)
	assert.Equal(t, "cpp", p.Language())

	_, err = reg.Resolve("script.py", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, arborerrors.ErrUnknownLanguage))
	assert.Equal(t, arborerrors.KindValidation, arborerrors.KindOf(err))
	assert.ErrorContains(t, err, ".cpp")
	assert.ErrorContains(t, err, ".go")

	_, err = reg.Resolve("main.go", "cobol")
	assert.True(t, errors.Is(err, arborerrors.ErrUnknownLanguage))
	assert.ErrorContains(t, err, "supported: cpp, go")

	assert.Equal(t, []string{"cpp", "go"}, reg.Languages())
	assert.True(t, reg.Supports("a.CC"))
	assert.False(t, reg.Supports("a.rs"))
}

func TestConfigHash(t *testing.T) {
	t.Parallel()
	base := Config{Language: "cpp", CompileFlags: []string{"-I", "include"}}
	assert.Equal(t, base.Hash(), Config{Language: "cpp", CompileFlags: []string{"-I", "include"}}.Hash())
	assert.NotEqual(t, base.Hash(), Config{Language: "cpp", CompileFlags: []string{"-DDEBUG"}}.Hash())
	assert.NotEqual(t, base.Hash(), Config{Language: "c", CompileFlags: []string{"-I", "include"}}.Hash())
	assert.Len(t, base.Hash(), 16)
}

func TestContentHash(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ContentHash([]byte("int x;")), ContentHash([]byte("int x;")))
	assert.NotEqual(t, ContentHash([]byte("int x;")), ContentHash([]byte("int y;")))
}

func TestParseCompileFlags(t *testing.T) {
	t.Parallel()
	f := parseCompileFlags([]string{"-Iinc", "-I", "vendor", "-DDEBUG", "-D", "LEVEL=3", "-x", "c", "-std=c11", "-O2"})
	assert.Equal(t, []string{"inc", "vendor"}, f.includeDirs)
	assert.Equal(t, []string{"DEBUG", "LEVEL"}, f.defines)
	assert.Equal(t, "c", f.lang)
	assert.Equal(t, "c11", f.std)

	assert.Equal(t, "c", cDialect("a.c", "", compileFlags{}))
	assert.Equal(t, "cpp", cDialect("a.cpp", "", compileFlags{}))
	assert.Equal(t, "c", cDialect("a.h", "", compileFlags{std: "gnu99"}))
	assert.Equal(t, "cpp", cDialect("a.h", "", compileFlags{std: "c++17"}))
	assert.Equal(t, "c", cDialect("a.cpp", "c", compileFlags{}))
}

// ============================================================================
// C/C++ backend
// ============================================================================

func TestCpp_Declarations(t *testing.T) {
	t.Parallel()
	src := `#include <vector>
namespace geo {
class Shape {
public:
    virtual double area() const;
    int sides = 4;
private:
    double scale;
};
double Shape::area() const { return scale * 2.0; }
int counter = 0;
static int helper(int x, Shape* s) { return x + counter; }
}
`
	doc := parseCpp(t, src)
	assert.Equal(t, "cpp", doc.Language)
	assert.Empty(t, doc.Diagnostics)
	assert.Equal(t, ContentHash([]byte(src)), doc.ContentHash)

	inc := find(doc.Root, ast.KindOther, "vector")
	require.NotNil(t, inc)
	assert.True(t, inc.HasModifier(ast.ModSystem))
	assert.Equal(t, "<vector>", inc.Value)

	ns := find(doc.Root, ast.KindNamespace, "geo")
	require.NotNil(t, ns)
	assert.Equal(t, 2, ns.Loc.StartLine)

	shape := find(ns, ast.KindClass, "Shape")
	require.NotNil(t, shape)
	proto := find(shape, ast.KindFunction, "area")
	require.NotNil(t, proto)
	assert.True(t, proto.HasModifier(ast.ModPrototype))
	assert.True(t, proto.HasModifier(ast.ModVirtual))
	assert.True(t, proto.HasModifier(ast.ModPublic))
	assert.True(t, proto.HasModifier(ast.ModConst))

	sides := find(shape, ast.KindVariable, "sides")
	require.NotNil(t, sides)
	assert.Equal(t, "int", sides.TypeName)
	assert.Equal(t, "4", sides.Value)
	scale := find(shape, ast.KindVariable, "scale")
	require.NotNil(t, scale)
	assert.True(t, scale.HasModifier(ast.ModPrivate))

	def := find(ns, ast.KindFunction, "Shape::area")
	require.NotNil(t, def)
	assert.True(t, def.HasModifier(ast.ModMethod))
	assert.Equal(t, "double", def.TypeName)
	assert.NotNil(t, find(def, ast.KindExpression, "scale"))

	counter := find(ns, ast.KindVariable, "counter")
	require.NotNil(t, counter)
	assert.Equal(t, "0", counter.Value)

	helper := find(ns, ast.KindFunction, "helper")
	require.NotNil(t, helper)
	assert.True(t, helper.HasModifier(ast.ModStatic))
	x := find(helper, ast.KindParameter, "x")
	require.NotNil(t, x)
	assert.Equal(t, "int", x.TypeName)
	s := find(helper, ast.KindParameter, "s")
	require.NotNil(t, s)
	assert.Equal(t, "Shape*", s.TypeName)
	assert.NotNil(t, find(s, ast.KindExpression, "Shape"))
	assert.NotNil(t, find(helper, ast.KindExpression, "counter"))
}

func TestCpp_LocalsAndCalls(t *testing.T) {
	t.Parallel()
	src := `int n = 1;
int compute(int x) { int n = x * 2; return n + x; }
int main() { int total = compute(3); total = total + 1; return total; }
`
	doc := parseCpp(t, src)
	compute := find(doc.Root, ast.KindFunction, "compute")
	require.NotNil(t, compute)
	local := find(compute, ast.KindVariable, "n")
	require.NotNil(t, local)
	assert.Equal(t, 2, local.Loc.StartLine)

	main := find(doc.Root, ast.KindFunction, "main")
	require.NotNil(t, main)
	call := find(main, ast.KindExpression, "compute")
	require.NotNil(t, call)
	assert.True(t, call.HasModifier(ast.ModCall))

	var writes int
	ast.Walk(main, func(n *ast.Node, _ []*ast.Node) bool {
		if n.IsReference() && n.Name == "total" && n.HasModifier(ast.ModWrite) {
			writes++
		}
		return true
	})
	assert.Equal(t, 1, writes)
}

func TestCpp_SyntaxErrorsBecomeDiagnostics(t *testing.T) {
	t.Parallel()
	doc := parseCpp(t, "int ok = 1;\nint broken( {\nint after = 2;\n")
	require.True(t, doc.HasErrors())
	for _, d := range doc.Diagnostics {
		assert.Greater(t, d.Loc.StartLine, 0)
		assert.Contains(t, []ast.DiagnosticKind{ast.DiagSyntax, ast.DiagMissing}, d.Kind)
	}
	assert.NotNil(t, find(doc.Root, ast.KindVariable, "ok"))
}

func TestCpp_IncludesAndDefines(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	incDir := filepath.Join(dir, "include")
	require.NoError(t, os.MkdirAll(incDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "local.h"), []byte("int a;\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(incDir, "dep.h"), []byte("int b;\n"), 0o644))

	path := filepath.Join(dir, "main.cpp")
	src := "#include \"local.h\"\n#include \"dep.h\"\n#include \"missing.h\"\nint main() { return 0; }\n"
	doc, err := NewCppParser().Parse(context.Background(), path, []byte(src), Config{CompileFlags: []string{"-I" + incDir, "-DDEBUG=1"}})
	require.NoError(t, err)

	require.Len(t, doc.Diagnostics, 1)
	assert.Equal(t, ast.DiagInclude, doc.Diagnostics[0].Kind)
	assert.Equal(t, ast.SeverityWarning, doc.Diagnostics[0].Severity)
	assert.Contains(t, doc.Diagnostics[0].Message, "missing.h")
	assert.Equal(t, 3, doc.Diagnostics[0].Loc.StartLine)
	assert.True(t, doc.Root.HasModifier("define:DEBUG"))

	// Without -I the vendor header is unresolved too.
	doc, err = NewCppParser().Parse(context.Background(), path, []byte(src), Config{})
	require.NoError(t, err)
	assert.Len(t, doc.Diagnostics, 2)
}

func TestCpp_CDialect(t *testing.T) {
	t.Parallel()
	src := "typedef struct { int x; int y; } Point;\nint add(Point p) { return p.x + p.y; }\n"
	doc, err := NewCppParser().Parse(context.Background(), "point.c", []byte(src), Config{})
	require.NoError(t, err)
	assert.Equal(t, "c", doc.Language)
	point := find(doc.Root, ast.KindClass, "Point")
	require.NotNil(t, point)
	assert.NotNil(t, find(point, ast.KindVariable, "x"))
	assert.NotNil(t, find(doc.Root, ast.KindFunction, "add"))
}

func TestCpp_Deterministic(t *testing.T) {
	t.Parallel()
	src := "namespace a { class B { int c; }; void d(B b) {} }\n"
	first := parseCpp(t, src)
	second := parseCpp(t, src)
	assert.Equal(t, first, second)
}

// ============================================================================
// Go backend
// ============================================================================

func TestGo_Declarations(t *testing.T) {
	t.Parallel()
	src := `package shapes

import (
	"fmt"
	m "math"
)

const Sides = 4

type Shape struct {
	Width, Height float64
	name          string
}

type Namer interface {
	Name() string
}

func (s *Shape) Area() float64 {
	area := s.Width * s.Height
	return area
}

func describe(s Shape) string {
	return fmt.Sprint(m.Pi, s.name)
}
`
	doc, err := NewGoParser().Parse(context.Background(), "shapes.go", []byte(src), Config{Language: "go"})
	require.NoError(t, err)
	require.NoError(t, ast.Validate(doc.Root))
	assert.Equal(t, "go", doc.Language)
	assert.Empty(t, doc.Diagnostics)

	pkg := find(doc.Root, ast.KindNamespace, "shapes")
	require.NotNil(t, pkg)

	fmtImport := find(pkg, ast.KindOther, "fmt")
	require.NotNil(t, fmtImport)
	assert.True(t, fmtImport.HasModifier(ast.ModInclude))
	mathImport := find(pkg, ast.KindOther, "math")
	require.NotNil(t, mathImport)
	assert.Equal(t, "m", mathImport.TypeName)

	sides := find(pkg, ast.KindVariable, "Sides")
	require.NotNil(t, sides)
	assert.True(t, sides.HasModifier(ast.ModConst))
	assert.Equal(t, "4", sides.Value)

	shape := find(pkg, ast.KindClass, "Shape")
	require.NotNil(t, shape)
	assert.True(t, shape.HasModifier(ast.ModStruct))
	assert.NotNil(t, find(shape, ast.KindVariable, "Width"))
	assert.NotNil(t, find(shape, ast.KindVariable, "Height"))
	name := find(shape, ast.KindVariable, "name")
	require.NotNil(t, name)
	assert.False(t, name.HasModifier(ast.ModExported))

	namer := find(pkg, ast.KindClass, "Namer")
	require.NotNil(t, namer)
	assert.True(t, namer.HasModifier(ast.ModInterface))
	assert.NotNil(t, find(namer, ast.KindFunction, "Name"))

	area := find(pkg, ast.KindFunction, "Shape.Area")
	require.NotNil(t, area)
	assert.True(t, area.HasModifier(ast.ModMethod))
	assert.NotNil(t, find(area, ast.KindParameter, "s"))
	assert.NotNil(t, find(area, ast.KindVariable, "area"))

	describe := find(pkg, ast.KindFunction, "describe")
	require.NotNil(t, describe)
	assert.Equal(t, "string", describe.TypeName)
	assert.NotNil(t, find(describe, ast.KindExpression, "Shape"))
}

// ============================================================================
// File helpers
// ============================================================================

func TestParseFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.cpp")
	require.NoError(t, os.WriteFile(path, []byte("int a = 1;\n"), 0o644))

	doc, err := ParseFile(context.Background(), DefaultRegistry(), path, Config{}, 0)
	require.NoError(t, err)
	assert.Equal(t, Config{Language: "cpp"}.Hash(), doc.ConfigHash)
	assert.NotNil(t, find(doc.Root, ast.KindVariable, "a"))

	_, err = ParseFile(context.Background(), DefaultRegistry(), filepath.Join(dir, "gone.cpp"), Config{}, 0)
	require.Error(t, err)
	assert.Equal(t, arborerrors.KindFile, arborerrors.KindOf(err))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

type slowParser struct{}

func (slowParser) Language() string     { return "slow" }
func (slowParser) Extensions() []string { return []string{".slow"} }
func (slowParser) Parse(ctx context.Context, path string, _ []byte, _ Config) (*ast.Document, error) {
	<-ctx.Done()
	return nil, arborerrors.NewParseError(path, arborerrors.ErrParseTimeout)
}

func TestParseContent_Timeout(t *testing.T) {
	t.Parallel()
	doc, err := ParseContent(context.Background(), slowParser{}, "x.slow", []byte("x"), Config{}, 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, arborerrors.ErrParseTimeout))
	require.NotNil(t, doc)
	require.Len(t, doc.Diagnostics, 1)
	assert.Equal(t, ast.DiagTimeout, doc.Diagnostics[0].Kind)
}
