package arbor

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/ast"
	arborerrors "github.com/jward/arbor/internal/errors"
	"github.com/jward/arbor/internal/index"
)

func buildAll(t *testing.T, e *Engine) {
	t.Helper()
	report, err := e.BuildDirectory(context.Background(), e.Root())
	require.NoError(t, err)
	require.Empty(t, report.Failed())
}

// =============================================================================
// Query
// =============================================================================

func TestQuery_Modes(t *testing.T) {
	e, dir := newTestEngine(t)
	writeGeo(t, dir)
	buildAll(t, e)
	ctx := context.Background()

	exact, err := e.Query(ctx, Filter{Name: "geo::area", Exact: true})
	require.NoError(t, err)
	require.Len(t, exact, 2, "prototype and definition")
	assert.Equal(t, filepath.Join(dir, "shape.cpp"), exact[0].Path)
	assert.Equal(t, filepath.Join(dir, "shape.h"), exact[1].Path)

	byFile, err := e.Query(ctx, Filter{File: "shape.h"})
	require.NoError(t, err)
	for _, s := range byFile {
		assert.Equal(t, filepath.Join(dir, "shape.h"), s.Path)
	}
	assert.NotEmpty(t, byFile)

	fns, err := e.Query(ctx, Filter{Kind: index.KindFunction})
	require.NoError(t, err)
	var names []string
	for _, s := range fns {
		names = append(names, s.QualifiedName)
	}
	assert.Equal(t, []string{"geo::area", "geo::area", "main"}, names)

	none, err := e.Query(ctx, Filter{Name: "nothing"})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = e.Query(ctx, Filter{Name: "x", Exact: true, Prefix: true})
	assert.Equal(t, arborerrors.KindValidation, arborerrors.KindOf(err))
}

func TestRecords(t *testing.T) {
	t.Parallel()
	rec := SymbolRecord(Symbol{Path: "/p/a.cpp", Line: 3, Col: 5, Kind: "function", QualifiedName: "geo::area", Name: "area"})
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"/p/a.cpp","line":3,"column":5,"kind":"function","qualified_name":"geo::area"}`, string(data))

	occ := OccurrenceRecord(Occurrence{Path: "/p/b.cpp", Line: 7, Col: 2, Context: "body", Name: "area"})
	assert.Equal(t, Record{Path: "/p/b.cpp", Line: 7, Column: 2, Kind: "body", QualifiedName: "area"}, occ)

	assert.Len(t, Records([]Symbol{{}, {}}), 2)
}

// =============================================================================
// References
// =============================================================================

const helperSource = `int helper(int v) {
    return v + 1;
}
`

const useA = `int useA() {
    return helper(1);
}
`

const useB = `int useB() {
    int x = helper(2);
    return x;
}
`

func TestReferences_DefinedOnceReferencedTwice(t *testing.T) {
	e, dir := newTestEngine(t)
	writeFile(t, dir, "helper.cpp", helperSource)
	writeFile(t, dir, "a.cpp", useA)
	writeFile(t, dir, "b.cpp", useB)
	buildAll(t, e)
	ctx := context.Background()

	refs, err := e.References(ctx, "helper", "helper.cpp", 1, RefOptions{})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, filepath.Join(dir, "a.cpp"), refs[0].Path)
	assert.Equal(t, 2, refs[0].Line)
	assert.Equal(t, filepath.Join(dir, "b.cpp"), refs[1].Path)
	assert.Equal(t, 2, refs[1].Line)
	for _, r := range refs {
		assert.Equal(t, "helper", r.QualifiedName)
		assert.Equal(t, index.ConfidenceExact, r.Confidence)
	}

	withDecl, err := e.References(ctx, "helper", "helper.cpp", 1, RefOptions{IncludeDeclaration: true})
	require.NoError(t, err)
	require.Len(t, withDecl, 3)
	assert.Equal(t, index.ContextDeclaration, withDecl[2].Context)

	byName, err := e.References(ctx, "helper", "", 0, RefOptions{})
	require.NoError(t, err)
	assert.Equal(t, refs, byName)
}

func TestReferences_UnknownSymbol(t *testing.T) {
	e, dir := newTestEngine(t)
	writeFile(t, dir, "helper.cpp", helperSource)
	buildAll(t, e)

	refs, err := e.References(context.Background(), "missing", "helper.cpp", 1, RefOptions{})
	require.NoError(t, err)
	assert.Empty(t, refs)

	_, err = e.References(context.Background(), "", "helper.cpp", 1, RefOptions{})
	assert.Equal(t, arborerrors.KindValidation, arborerrors.KindOf(err))
}

// =============================================================================
// Completion
// =============================================================================

const globalsSource = `int count = 0;

int counter() {
    return count;
}
`

// Line 4 ends in "count"; column 14 sits right after "co".
const shadowSource = `int run(int cap) {
    int count = cap;
    int total = 0;
    return count + total;
}
`

func completionNames(c *Completion) []string {
	out := make([]string, len(c.Items))
	for i, it := range c.Items {
		out[i] = it.Name
	}
	return out
}

func TestComplete_LocalRanksAheadOfShadowedGlobal(t *testing.T) {
	e, dir := newTestEngine(t)
	writeFile(t, dir, "globals.cpp", globalsSource)
	writeFile(t, dir, "run.cpp", shadowSource)
	buildAll(t, e)

	c, err := e.Complete(context.Background(), "run.cpp", 4, 14, CompleteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "co", c.Prefix)
	require.Len(t, c.Items, 3)

	assert.Equal(t, "count", c.Items[0].Name)
	assert.True(t, c.Items[0].Local)
	assert.Equal(t, 2, c.Items[0].Line)

	assert.Equal(t, "count", c.Items[1].QualifiedName)
	assert.False(t, c.Items[1].Local)
	assert.Equal(t, filepath.Join(dir, "globals.cpp"), c.Items[1].Path)

	assert.Equal(t, "counter", c.Items[2].QualifiedName)
	assert.Equal(t, index.KindFunction, c.Items[2].Kind)
}

func TestComplete_ParametersAndLaterLocals(t *testing.T) {
	e, dir := newTestEngine(t)
	writeFile(t, dir, "run.cpp", shadowSource)
	buildAll(t, e)

	// Line 2, right after "int count = ca": cap is a parameter, total is
	// declared later and not yet in scope.
	c, err := e.Complete(context.Background(), "run.cpp", 2, 19, CompleteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ca", c.Prefix)
	require.NotEmpty(t, c.Items)
	assert.Equal(t, "cap", c.Items[0].Name)
	assert.Equal(t, string(ast.KindParameter), c.Items[0].Kind)

	// Right after "int count = ": nothing typed yet.
	c, err = e.Complete(context.Background(), "run.cpp", 2, 17, CompleteOptions{})
	require.NoError(t, err)
	assert.Empty(t, c.Prefix)
	names := completionNames(c)
	assert.Contains(t, names, "cap")
	assert.Contains(t, names, "count")
	assert.Contains(t, names, "run")
	assert.NotContains(t, names, "total")
}

const counterClass = `struct Counter {
    int value;
    int step;
    void bump() {
        value += step;
    }
};
`

func TestComplete_EnclosingClassMembers(t *testing.T) {
	e, dir := newTestEngine(t)
	writeFile(t, dir, "counter.cpp", counterClass)
	buildAll(t, e)

	// Line 5, right after "value += st".
	c, err := e.Complete(context.Background(), "counter.cpp", 5, 20, CompleteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "st", c.Prefix)
	require.Len(t, c.Items, 1, "the indexed member is not offered again as a global")
	assert.Equal(t, "step", c.Items[0].Name)
	assert.True(t, c.Items[0].Local)
}

func TestComplete_OutOfLineMemberSeesClassMembers(t *testing.T) {
	e, dir := newTestEngine(t)
	writeFile(t, dir, "shape.h", "namespace geo {\nstruct Shape {\n    double width;\n    double area();\n};\n}\n")
	writeFile(t, dir, "shape.cpp", "#include \"shape.h\"\n\nnamespace geo {\ndouble Shape::area() {\n    return width * 2;\n}\n}\n")
	buildAll(t, e)

	// Line 5, right after "return wi".
	c, err := e.Complete(context.Background(), "shape.cpp", 5, 14, CompleteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "wi", c.Prefix)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "geo::Shape::width", c.Items[0].QualifiedName)
	assert.True(t, c.Items[0].Local)
}

func TestComplete_FuzzyFallback(t *testing.T) {
	e, dir := newTestEngine(t)
	writeFile(t, dir, "globals.cpp", globalsSource)
	writeFile(t, dir, "typo.cpp", "int x = cuont;\n")
	buildAll(t, e)
	ctx := context.Background()

	c, err := e.Complete(ctx, "typo.cpp", 1, 14, CompleteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "cuont", c.Prefix)
	assert.Empty(t, c.Items)
	assert.False(t, c.Fuzzy)

	c, err = e.Complete(ctx, "typo.cpp", 1, 14, CompleteOptions{Fuzzy: true})
	require.NoError(t, err)
	assert.True(t, c.Fuzzy)
	require.NotEmpty(t, c.Items)
	assert.Equal(t, "count", c.Items[0].Name)
	assert.GreaterOrEqual(t, c.Items[0].Score, DefaultFuzzyThreshold)
	assert.NotContains(t, completionNames(c), "x")
}

func TestComplete_Limit(t *testing.T) {
	e, dir := newTestEngine(t)
	writeFile(t, dir, "globals.cpp", globalsSource)
	writeFile(t, dir, "run.cpp", shadowSource)
	buildAll(t, e)

	c, err := e.Complete(context.Background(), "run.cpp", 4, 14, CompleteOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.True(t, c.Items[0].Local)
}

func TestIdentifierBefore(t *testing.T) {
	t.Parallel()
	src := []byte("int main() {\n    return foo_bar;\n}\n")
	tests := []struct {
		line, col int
		want      string
	}{
		{2, 17, "foo_b"},
		{2, 19, "foo_bar"},
		{2, 5, ""},
		{2, 100, ""},
		{1, 9, "main"},
		{9, 1, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, identifierBefore(src, tt.line, tt.col), "%d:%d", tt.line, tt.col)
	}
}

// =============================================================================
// Definition
// =============================================================================

func TestDefinition_ResolvesThroughIndex(t *testing.T) {
	e, dir := newTestEngine(t)
	writeGeo(t, dir)
	buildAll(t, e)
	ctx := context.Background()

	// Line 2 of main.cpp, on the "area" of "geo::area(2, 3)".
	def, err := e.Definition(ctx, "main.cpp", 2, 23)
	require.NoError(t, err)
	assert.Equal(t, "area", def.Name)
	assert.Equal(t, "geo::area", def.QualifiedName)
	assert.False(t, def.Local)
	assert.Equal(t, index.ConfidenceExact, def.Confidence)
	require.Len(t, def.Locations, 2, "prototype and definition")
	assert.Equal(t, filepath.Join(dir, "shape.cpp"), def.Locations[0].Path)
	assert.Equal(t, filepath.Join(dir, "shape.h"), def.Locations[1].Path)
	assert.Equal(t, 2, def.Locations[1].Line)

	// On the name of the definition itself.
	def, err = e.Definition(ctx, "shape.cpp", 2, 9)
	require.NoError(t, err)
	assert.Equal(t, "geo::area", def.QualifiedName)
	assert.Len(t, def.Locations, 2)
}

func TestDefinition_LocalShadowsGlobal(t *testing.T) {
	e, dir := newTestEngine(t)
	writeFile(t, dir, "globals.cpp", globalsSource)
	writeFile(t, dir, "run.cpp", shadowSource)
	buildAll(t, e)

	// Line 4, on "count" in "return count + total".
	def, err := e.Definition(context.Background(), "run.cpp", 4, 13)
	require.NoError(t, err)
	assert.Equal(t, "count", def.Name)
	assert.True(t, def.Local)
	require.Len(t, def.Locations, 1)
	assert.Equal(t, filepath.Join(dir, "run.cpp"), def.Locations[0].Path)
	assert.Equal(t, 2, def.Locations[0].Line)
}

func TestDefinition_NothingToResolve(t *testing.T) {
	e, dir := newTestEngine(t)
	writeFile(t, dir, "globals.cpp", globalsSource)
	writeFile(t, dir, "typo.cpp", "int x = cuont;\n")
	buildAll(t, e)
	ctx := context.Background()

	def, err := e.Definition(ctx, "typo.cpp", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, "cuont", def.Name)
	assert.Empty(t, def.QualifiedName)
	assert.NotNil(t, def.Locations)
	assert.Empty(t, def.Locations)

	def, err = e.Definition(ctx, "typo.cpp", 1, 8)
	require.NoError(t, err)
	assert.Empty(t, def.Name, "cursor on whitespace")

	_, err = e.Definition(ctx, "typo.cpp", 0, 1)
	assert.Equal(t, arborerrors.KindValidation, arborerrors.KindOf(err))
	_, err = e.Definition(ctx, "missing.cpp", 1, 1)
	assert.Equal(t, arborerrors.KindFile, arborerrors.KindOf(err))
}

func TestIdentifierAt(t *testing.T) {
	t.Parallel()
	src := []byte("int main() {\n    return foo_bar + 42;\n}\n")
	tests := []struct {
		line, col int
		want      string
		start     int
	}{
		{2, 12, "foo_bar", 12},
		{2, 15, "foo_bar", 12},
		{2, 19, "foo_bar", 12},
		{2, 20, "", 0},
		{2, 23, "", 0},
		{2, 100, "", 0},
		{1, 5, "main", 5},
		{9, 1, "", 0},
	}
	for _, tt := range tests {
		got, start := identifierAt(src, tt.line, tt.col)
		assert.Equal(t, tt.want, got, "%d:%d", tt.line, tt.col)
		assert.Equal(t, tt.start, start, "%d:%d", tt.line, tt.col)
	}
}

// =============================================================================
// AST printing
// =============================================================================

func TestPrintAST(t *testing.T) {
	e, dir := newTestEngine(t)
	writeGeo(t, dir)

	out, err := e.PrintAST(context.Background(), "shape.cpp", PrintOptions{ShowLocations: true})
	require.NoError(t, err)
	assert.Contains(t, out, "File: "+filepath.Join(dir, "shape.cpp"))
	assert.Contains(t, out, "Language: cpp")
	assert.Contains(t, out, "area")

	again, err := e.PrintAST(context.Background(), "shape.cpp", PrintOptions{ShowLocations: true})
	require.NoError(t, err)
	assert.Equal(t, out, again)

	_, err = e.PrintAST(context.Background(), "missing.cpp", PrintOptions{})
	assert.Equal(t, arborerrors.KindFile, arborerrors.KindOf(err))
}
