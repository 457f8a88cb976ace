package index

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	arborerrors "github.com/jward/arbor/internal/errors"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	return ix
}

func cppFile(path string) FileRecord {
	return FileRecord{Path: path, Language: "cpp", ContentHash: "h-" + path, ConfigHash: "cfg"}
}

func ref(name, scope string, line, col int) Occurrence {
	sep := "::"
	return Occurrence{Name: name, SimpleName: SimpleName(name, sep), Scope: scope, Context: ContextBody, Access: AccessRead, Line: line, Col: col}
}

// =============================================================================
// Candidates
// =============================================================================

func TestCandidates(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, scope string
		want        []string
	}{
		{"area", "", []string{"area"}},
		{"area", "geo::Shape", []string{"geo::Shape::area", "geo::area", "area"}},
		{"Shape::area", "geo", []string{"geo::Shape::area", "Shape::area"}},
		{"::area", "geo", []string{"area"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Candidates(tt.name, tt.scope, "::"), "%s in %q", tt.name, tt.scope)
	}
	assert.Equal(t, []string{"shapes.Area", "Area"}, Candidates("Area", "shapes", "."))
}

// =============================================================================
// Merge & Query
// =============================================================================

func TestMerge_ReplacesOnlyThatPath(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ix := newTestIndex(t)

	require.NoError(t, ix.Merge(ctx, cppFile("a.cpp"), []Symbol{
		{QualifiedName: "geo::area", Name: "area", Kind: KindFunction, Line: 3, Col: 1},
	}, []Occurrence{ref("perimeter", "geo", 4, 5)}))
	require.NoError(t, ix.Merge(ctx, cppFile("b.cpp"), []Symbol{
		{QualifiedName: "geo::perimeter", Name: "perimeter", Kind: KindFunction, Line: 1, Col: 1},
	}, nil))

	require.NoError(t, ix.Merge(ctx, cppFile("a.cpp"), nil, nil))

	syms, err := ix.Query(ctx, Filter{Name: "geo::"})
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "b.cpp", syms[0].Path)

	st, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Files: 2, Symbols: 1, Occurrences: 0}, st)
}

func TestQuery_Modes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ix := newTestIndex(t)
	require.NoError(t, ix.Merge(ctx, cppFile("a.cpp"), []Symbol{
		{QualifiedName: "geo::Shape", Name: "Shape", Kind: KindClass, Line: 1},
		{QualifiedName: "geo::Shape::area", Name: "area", Kind: KindFunction, Line: 3},
		{QualifiedName: "geo::ShapeList", Name: "ShapeList", Kind: KindClass, Line: 9},
	}, nil))

	syms, err := ix.Query(ctx, Filter{Name: "Shape"})
	require.NoError(t, err)
	assert.Len(t, syms, 3)

	syms, err = ix.Query(ctx, Filter{Name: "Shape", Exact: true})
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "geo::Shape", syms[0].QualifiedName)

	syms, err = ix.Query(ctx, Filter{Name: "Shape", Prefix: true, Kind: KindClass})
	require.NoError(t, err)
	assert.Len(t, syms, 2)

	syms, err = ix.Query(ctx, Filter{Name: "nothing"})
	require.NoError(t, err)
	assert.NotNil(t, syms)
	assert.Empty(t, syms)

	_, err = ix.Query(ctx, Filter{Name: "x", Exact: true, Prefix: true})
	require.Error(t, err)
	assert.Equal(t, arborerrors.KindValidation, arborerrors.KindOf(err))
}

func TestQuery_NonASCIIPrefix(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ix := newTestIndex(t)
	require.NoError(t, ix.Merge(ctx, FileRecord{Path: "p.go", Language: "go", ContentHash: "h", ConfigHash: "cfg"}, []Symbol{
		{QualifiedName: "p.héllo", Name: "héllo", Kind: KindFunction, Line: 3},
	}, nil))

	substr, err := ix.Query(ctx, Filter{Name: "hé"})
	require.NoError(t, err)
	prefix, err := ix.Query(ctx, Filter{Name: "hé", Prefix: true})
	require.NoError(t, err)
	assert.Len(t, substr, 1)
	assert.Len(t, prefix, 1)
}

func TestDefinitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ix := newTestIndex(t)
	require.NoError(t, ix.Merge(ctx, cppFile("shape.h"), []Symbol{
		{QualifiedName: "geo::area", Name: "area", Kind: KindFunction, Line: 2},
	}, nil))
	require.NoError(t, ix.Merge(ctx, cppFile("shape.cpp"), []Symbol{
		{QualifiedName: "geo::area", Name: "area", Kind: KindFunction, Line: 2},
		{QualifiedName: "geo::perimeter", Name: "perimeter", Kind: KindFunction, Line: 6},
	}, nil))

	defs, err := ix.Definitions(ctx, "geo::area")
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "shape.cpp", defs[0].Path)
	assert.Equal(t, "shape.h", defs[1].Path)

	defs, err = ix.Definitions(ctx, "area")
	require.NoError(t, err)
	assert.Empty(t, defs, "lookup is by qualified name only")
}

// =============================================================================
// FindReferences
// =============================================================================

func TestFindReferences_DefinedOnceReferencedTwice(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ix := newTestIndex(t)

	require.NoError(t, ix.Merge(ctx, cppFile("shape.cpp"), []Symbol{
		{QualifiedName: "geo::area", Name: "area", Kind: KindFunction, Line: 5, Col: 1},
	}, nil))
	require.NoError(t, ix.Merge(ctx, cppFile("main.cpp"), nil, []Occurrence{
		ref("geo::area", "", 7, 3),
		ref("area", "other", 9, 3), // resolves to nothing
	}))
	require.NoError(t, ix.Merge(ctx, cppFile("draw.cpp"), nil, []Occurrence{
		ref("area", "geo", 2, 10),
	}))

	refs, err := ix.FindReferences(ctx, "area", "shape.cpp", 5, RefOptions{})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "draw.cpp", refs[0].Path)
	assert.Equal(t, "main.cpp", refs[1].Path)
	for _, r := range refs {
		assert.Equal(t, "geo::area", r.QualifiedName)
		assert.Equal(t, ConfidenceExact, r.Confidence)
	}

	refs, err = ix.FindReferences(ctx, "geo::area", "shape.cpp", 5, RefOptions{IncludeDeclaration: true})
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, "shape.cpp", refs[2].Path)
	assert.Equal(t, ContextDeclaration, refs[2].Context)
}

func TestFindReferences_InnermostScopeWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ix := newTestIndex(t)

	require.NoError(t, ix.Merge(ctx, cppFile("a.cpp"), []Symbol{
		{QualifiedName: "count", Name: "count", Kind: KindVariable, Line: 1},
		{QualifiedName: "geo::count", Name: "count", Kind: KindVariable, Line: 3},
	}, []Occurrence{
		ref("count", "geo", 10, 5),
		ref("count", "", 12, 5),
		ref("::count", "geo", 14, 5),
	}))

	refs, err := ix.FindReferences(ctx, "count", "a.cpp", 3, RefOptions{})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, 10, refs[0].Line)

	refs, err = ix.FindReferences(ctx, "count", "a.cpp", 1, RefOptions{})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, []int{12, 14}, []int{refs[0].Line, refs[1].Line})
}

func TestFindReferences_OverloadsAreAmbiguous(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ix := newTestIndex(t)

	require.NoError(t, ix.Merge(ctx, cppFile("a.cpp"), []Symbol{
		{QualifiedName: "print", Name: "print", Kind: KindFunction, Signature: "void print(int)", Line: 1},
		{QualifiedName: "print", Name: "print", Kind: KindFunction, Signature: "void print(double)", Line: 2},
	}, nil))
	require.NoError(t, ix.Merge(ctx, cppFile("b.cpp"), nil, []Occurrence{ref("print", "", 4, 1)}))

	refs, err := ix.FindReferences(ctx, "print", "a.cpp", 2, RefOptions{IncludeDeclaration: true})
	require.NoError(t, err)
	require.Len(t, refs, 3)
	for _, r := range refs {
		assert.Equal(t, ConfidenceAmbiguous, r.Confidence)
	}
}

func TestFindReferences_UnknownTargetIsEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ix := newTestIndex(t)

	refs, err := ix.FindReferences(ctx, "missing", "a.cpp", 1, RefOptions{})
	require.NoError(t, err)
	assert.Empty(t, refs)

	_, err = ix.FindReferences(ctx, "", "a.cpp", 1, RefOptions{})
	require.Error(t, err)
}

func TestFindReferences_GoSeparator(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ix := newTestIndex(t)

	goFile := FileRecord{Path: "shapes.go", Language: "go", ContentHash: "h", ConfigHash: "c"}
	require.NoError(t, ix.Merge(ctx, goFile, []Symbol{
		{QualifiedName: "shapes.Area", Name: "Area", Kind: KindFunction, Line: 3},
	}, []Occurrence{
		{Name: "Area", SimpleName: "Area", Scope: "shapes", Context: ContextBody, Access: AccessRead, Line: 9, Col: 2},
	}))

	refs, err := ix.FindReferences(ctx, "Area", "shapes.go", 3, RefOptions{})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "shapes.Area", refs[0].QualifiedName)
}

// =============================================================================
// Stale
// =============================================================================

func TestMarkStale_KeepsOccurrences(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ix := newTestIndex(t)

	require.NoError(t, ix.Merge(ctx, cppFile("a.cpp"), []Symbol{
		{QualifiedName: "area", Name: "area", Kind: KindFunction, Line: 1},
	}, nil))
	require.NoError(t, ix.Merge(ctx, cppFile("b.cpp"), nil, []Occurrence{ref("area", "", 3, 1)}))
	require.NoError(t, ix.MarkStale(ctx, "b.cpp"))
	require.NoError(t, ix.MarkStale(ctx, "never.cpp"))

	refs, err := ix.FindReferences(ctx, "area", "a.cpp", 1, RefOptions{})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.True(t, refs[0].Stale)

	f, err := ix.File(ctx, "b.cpp")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.True(t, f.Stale)

	resolved, err := ix.ResolveFile(ctx, "b.cpp")
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "area", resolved[0].QualifiedName)
}

// =============================================================================
// Concurrency
// =============================================================================

func TestMerge_ConcurrentWritersAndReaders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ix := newTestIndex(t)

	paths := []string{"a.cpp", "b.cpp", "c.cpp", "d.cpp"}
	var wg sync.WaitGroup
	for _, p := range paths {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 5 {
				err := ix.Merge(ctx, cppFile(p), []Symbol{{QualifiedName: p + "::f", Name: "f", Kind: KindFunction, Line: 1}}, nil)
				assert.NoError(t, err)
			}
		}()
		go func() {
			defer wg.Done()
			for range 5 {
				syms, err := ix.Query(ctx, Filter{File: p})
				assert.NoError(t, err)
				assert.LessOrEqual(t, len(syms), 1, "readers observe whole merges")
			}
		}()
	}
	wg.Wait()

	st, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Files)
	assert.Equal(t, 4, st.Symbols)
}

func TestOpen_InvalidRoot(t *testing.T) {
	t.Parallel()
	_, err := Open("/dev/null/arbor")
	require.Error(t, err)
	var ie *arborerrors.IndexError
	assert.True(t, errors.As(err, &ie))
}
