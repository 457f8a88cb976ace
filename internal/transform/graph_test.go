package transform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	arborerrors "github.com/jward/arbor/internal/errors"
)

func decl(qn, path string, line int) Decl {
	return Decl{QualifiedName: qn, Name: qn, Kind: "class", Path: path, Line: line}
}

func names(decls []Decl) []string {
	out := make([]string, len(decls))
	for i, d := range decls {
		out[i] = d.QualifiedName
	}
	return out
}

func TestGraph_OrderFollowsDependencies(t *testing.T) {
	t.Parallel()
	g := NewGraph([]Decl{decl("X", "a.h", 1), decl("Y", "b.h", 1)})
	assert.True(t, g.AddEdge("X", "Y"))

	order, err := g.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"Y", "X"}, names(order))
}

func TestGraph_TiesKeepSourceOrder(t *testing.T) {
	t.Parallel()
	g := NewGraph([]Decl{
		decl("C", "b.h", 3),
		decl("A", "a.h", 9),
		decl("B", "a.h", 2),
	})
	order, err := g.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A", "C"}, names(order))
}

func TestGraph_ReadyNodesInsertedInOrder(t *testing.T) {
	t.Parallel()
	// D unlocks A and C; both must come out in source order.
	g := NewGraph([]Decl{
		decl("A", "a.h", 1),
		decl("B", "a.h", 2),
		decl("C", "a.h", 3),
		decl("D", "a.h", 4),
	})
	g.AddEdge("C", "D")
	g.AddEdge("A", "D")

	order, err := g.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "D", "A", "C"}, names(order))
}

func TestGraph_SelfAndUnknownEdgesIgnored(t *testing.T) {
	t.Parallel()
	g := NewGraph([]Decl{decl("X", "a.h", 1)})
	assert.False(t, g.AddEdge("X", "X"))
	assert.False(t, g.AddEdge("X", "Missing"))
	assert.False(t, g.AddEdge("Missing", "X"))
	assert.Equal(t, 0, g.Edges())

	order, err := g.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, names(order))
}

func TestGraph_DuplicateEdgesCountedOnce(t *testing.T) {
	t.Parallel()
	g := NewGraph([]Decl{decl("X", "a.h", 1), decl("Y", "a.h", 2)})
	assert.True(t, g.AddEdge("X", "Y"))
	assert.False(t, g.AddEdge("X", "Y"))
	assert.Equal(t, 1, g.Edges())
	assert.Equal(t, []string{"Y"}, g.DependsOn("X"))
	assert.Empty(t, g.DependsOn("Y"))
}

func TestGraph_OverloadsShareEdges(t *testing.T) {
	t.Parallel()
	f1 := Decl{QualifiedName: "f", Kind: "function", Signature: "(int)", Path: "a.cpp", Line: 1}
	f2 := Decl{QualifiedName: "f", Kind: "function", Signature: "(double)", Path: "a.cpp", Line: 5}
	g := NewGraph([]Decl{f1, f2, decl("T", "z.h", 1)})
	g.AddEdge("f", "T")
	assert.Equal(t, 2, g.Edges())

	order, err := g.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"T", "f", "f"}, names(order))
	assert.Equal(t, "(int)", order[1].Signature)
}

func TestGraph_CycleReported(t *testing.T) {
	t.Parallel()
	g := NewGraph([]Decl{decl("X", "a.h", 1), decl("Y", "b.h", 1)})
	g.AddEdge("X", "Y")
	g.AddEdge("Y", "X")

	_, err := g.Order()
	require.Error(t, err)
	var cyc *arborerrors.CycleError
	require.True(t, errors.As(err, &cyc))
	assert.Equal(t, []string{"X", "Y"}, cyc.Names())
	assert.Equal(t, "a.h", cyc.Members[0].Path)
	assert.Equal(t, arborerrors.KindCycle, arborerrors.KindOf(err))
}

func TestGraph_CycleExcludesDownstreamNodes(t *testing.T) {
	t.Parallel()
	// Z depends on the X <-> Y cycle but is not part of it.
	g := NewGraph([]Decl{
		decl("X", "a.h", 1),
		decl("Y", "a.h", 2),
		decl("Z", "a.h", 3),
		decl("W", "a.h", 4),
	})
	g.AddEdge("X", "Y")
	g.AddEdge("Y", "X")
	g.AddEdge("Z", "X")

	_, err := g.Order()
	var cyc *arborerrors.CycleError
	require.True(t, errors.As(err, &cyc))
	assert.Equal(t, []string{"X", "Y"}, cyc.Names())
}

func TestGraph_FirstCycleBySourceOrder(t *testing.T) {
	t.Parallel()
	g := NewGraph([]Decl{
		decl("P", "b.h", 1),
		decl("Q", "b.h", 2),
		decl("A", "a.h", 1),
		decl("B", "a.h", 2),
		decl("C", "a.h", 3),
	})
	g.AddEdge("P", "Q")
	g.AddEdge("Q", "P")
	g.AddEdge("A", "B")
	g.AddEdge("B", "C")
	g.AddEdge("C", "A")

	_, err := g.Order()
	var cyc *arborerrors.CycleError
	require.True(t, errors.As(err, &cyc))
	assert.Equal(t, []string{"A", "B", "C"}, cyc.Names())
}
