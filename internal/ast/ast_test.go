package ast

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loc(sl, sc, el, ec int) Location {
	return Location{StartLine: sl, StartCol: sc, EndLine: el, EndCol: ec}
}

// sampleDocument models:
//
//	namespace geo {
//	  int area(int w) { return w * 2; }
//	}
func sampleDocument() *Document {
	param := &Node{Kind: KindParameter, Name: "w", TypeName: "int", Loc: loc(2, 12, 2, 17)}
	ref := &Node{Kind: KindExpression, Name: "w", Loc: loc(2, 28, 2, 29)}
	lit := &Node{Kind: KindExpression, Syntax: "number_literal", Value: "2", Loc: loc(2, 32, 2, 33)}
	ret := &Node{Kind: KindControlFlow, Syntax: "return_statement", Loc: loc(2, 21, 2, 34), Children: []*Node{ref, lit}}
	fn := &Node{Kind: KindFunction, Name: "area", TypeName: "int", Loc: loc(2, 3, 2, 36), Children: []*Node{param, ret}}
	ns := &Node{Kind: KindNamespace, Name: "geo", Loc: loc(1, 1, 3, 2), Children: []*Node{fn}}
	root := &Node{Kind: KindModule, Name: "geo.cpp", Loc: loc(1, 1, 4, 1), Children: []*Node{ns}}
	return &Document{
		Path:        "geo.cpp",
		Language:    "cpp",
		ContentHash: "abc",
		ConfigHash:  "def",
		Root:        root,
		Diagnostics: []Diagnostic{{Severity: SeverityWarning, Kind: DiagInclude, Message: "include not found: missing.h", Loc: loc(1, 1, 1, 20)}},
	}
}

// ============================================================================
// Model
// ============================================================================

func TestNode_Modifiers(t *testing.T) {
	t.Parallel()
	n := &Node{}
	n.AddModifier("static")
	n.AddModifier("const")
	n.AddModifier("static")
	assert.Equal(t, []string{"const", "static"}, n.Modifiers)
	assert.True(t, n.HasModifier("const"))
	assert.False(t, n.HasModifier("virtual"))
}

func TestNode_AddChildKeepsOrder(t *testing.T) {
	t.Parallel()
	n := &Node{Kind: KindClass, Loc: loc(1, 1, 10, 1)}
	n.AddChild(&Node{Name: "b", Loc: loc(5, 1, 5, 2)})
	n.AddChild(&Node{Name: "a", Loc: loc(2, 1, 2, 2)})
	n.AddChild(nil)
	require.Len(t, n.Children, 2)
	assert.Equal(t, "a", n.Children[0].Name)
	assert.Equal(t, "b", n.Children[1].Name)
}

func TestLocation_Contains(t *testing.T) {
	t.Parallel()
	l := loc(2, 5, 4, 3)
	assert.True(t, l.Contains(2, 5))
	assert.True(t, l.Contains(3, 1))
	assert.True(t, l.Contains(4, 3))
	assert.False(t, l.Contains(2, 4))
	assert.False(t, l.Contains(4, 4))
	assert.False(t, l.Contains(5, 1))
	assert.True(t, l.Encloses(loc(3, 1, 3, 9)))
	assert.False(t, l.Encloses(loc(1, 1, 3, 9)))
}

func TestPathTo(t *testing.T) {
	t.Parallel()
	doc := sampleDocument()
	path := PathTo(doc.Root, 2, 28)
	require.Len(t, path, 5)
	assert.Equal(t, KindModule, path[0].Kind)
	assert.Equal(t, "geo", path[1].Name)
	assert.Equal(t, "area", path[2].Name)
	assert.Equal(t, KindControlFlow, path[3].Kind)
	assert.Equal(t, "w", path[4].Name)
}

func TestWalk_SourceOrderAndSkip(t *testing.T) {
	t.Parallel()
	doc := sampleDocument()
	var names []string
	Walk(doc.Root, func(n *Node, ancestors []*Node) bool {
		names = append(names, string(n.Kind)+":"+n.Name)
		return n.Kind != KindControlFlow
	})
	assert.Equal(t, []string{
		"module:geo.cpp", "namespace:geo", "function:area", "parameter:w", "control_flow:",
	}, names)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, Validate(sampleDocument().Root))

	bad := sampleDocument()
	fn := bad.Root.Children[0].Children[0]
	fn.Children[0], fn.Children[1] = fn.Children[1], fn.Children[0]
	assert.Error(t, Validate(bad.Root))

	escaped := sampleDocument()
	escaped.Root.Children[0].Children[0].Loc = loc(1, 1, 9, 1)
	assert.Error(t, Validate(escaped.Root))
}

// ============================================================================
// Codec
// ============================================================================

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()
	doc := sampleDocument()
	doc.Root.Children[0].AddModifier("exported")

	data, err := Encode(doc)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestCodec_RejectsCorruptData(t *testing.T) {
	t.Parallel()
	_, err := Decode([]byte(`{"version":1,"document":`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"version":99,"document":{"path":"a"}}`))
	assert.ErrorContains(t, err, "unsupported version")

	_, err = Decode([]byte(`{"version":1}`))
	assert.ErrorContains(t, err, "missing document")
}

func TestSlice(t *testing.T) {
	t.Parallel()
	src := []byte("int x = 1;")
	assert.Equal(t, "x = 1", string(Slice(src, Location{StartByte: 4, EndByte: 9})))
	assert.Nil(t, Slice(src, Location{StartByte: 4, EndByte: 99}))
}

// ============================================================================
// Printer
// ============================================================================

func TestPrint_Tree(t *testing.T) {
	t.Parallel()
	out := Print(sampleDocument(), PrintOptions{ShowTypes: true, ShowValues: true})
	want := strings.Join([]string{
		"File: geo.cpp",
		"Language: cpp",
		"Content hash: abc",
		"Nodes: 7  Errors: 0  Warnings: 1",
		strings.Repeat("=", 60),
		"module geo.cpp",
		"└── namespace geo",
		"    └── function area: int",
		"        ├── parameter w: int",
		"        └── control_flow (return_statement)",
		"            ├── expression w",
		"            └── expression (number_literal) = 2",
		"",
		"Diagnostics:",
		"  warning include 1:1 include not found: missing.h",
		"",
	}, "\n")
	assert.Equal(t, want, out)
}

func TestPrint_Deterministic(t *testing.T) {
	t.Parallel()
	opts := PrintOptions{ShowLocations: true, ShowModifiers: true}
	assert.Equal(t, Print(sampleDocument(), opts), Print(sampleDocument(), opts))
}

func TestPrint_MaxDepthElides(t *testing.T) {
	t.Parallel()
	out := Print(sampleDocument(), PrintOptions{MaxDepth: 2, NoHeader: true})
	want := strings.Join([]string{
		"module geo.cpp",
		"└── namespace geo",
		"    └── function area",
		"        └── … 4 nodes elided",
		"",
	}, "\n")
	assert.Equal(t, want, out)
}

func TestPrint_KindFilterLiftsChildren(t *testing.T) {
	t.Parallel()
	out := Print(sampleDocument(), PrintOptions{Kinds: []Kind{KindFunction, KindParameter}, NoHeader: true})
	want := strings.Join([]string{
		"module geo.cpp",
		"└── function area",
		"    └── parameter w",
		"",
	}, "\n")
	assert.Equal(t, want, out)
}

func TestPrint_TruncatesLongValues(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 80)
	doc := &Document{Path: "a.cpp", Root: &Node{Kind: KindModule, Children: []*Node{
		{Kind: KindExpression, Syntax: "string_literal", Value: long, Loc: loc(1, 1, 1, 81)},
	}}}
	out := Print(doc, PrintOptions{ShowValues: true, NoHeader: true})
	assert.Contains(t, out, strings.Repeat("x", 47)+"...")
	assert.NotContains(t, out, strings.Repeat("x", 48))
}

func TestPrint_TruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("é", 60)
	doc := &Document{Path: "a.go", Root: &Node{Kind: KindModule, Children: []*Node{
		{Kind: KindExpression, Syntax: "interpreted_string_literal", Value: long, Loc: loc(1, 1, 1, 121)},
	}}}
	out := Print(doc, PrintOptions{ShowValues: true, NoHeader: true})
	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, strings.Repeat("é", 47)+"...")
	assert.NotContains(t, out, strings.Repeat("é", 48))
}
