// Package extract derives index entries from a parsed Document.
//
// Extraction is pure: the same Document always yields the same definitions and
// occurrences, in source order. Only declarations whose ancestors are all
// modules, namespaces, or classes are indexed. Parameters and function-local
// declarations are not, and name references that resolve to them are dropped.
package extract

import (
	"strings"

	"github.com/jward/arbor/internal/ast"
	"github.com/jward/arbor/internal/index"
)

// Result holds everything extracted from one Document.
type Result struct {
	Definitions []index.Symbol
	Occurrences []index.Occurrence
}

// Extract walks doc and returns its definitions and name occurrences.
func Extract(doc *ast.Document) Result {
	if doc == nil || doc.Root == nil {
		return Result{}
	}
	w := &walker{doc: doc, sep: index.Separator(doc.Language)}
	w.visit(doc.Root, state{context: index.ContextType})
	return w.res
}

type state struct {
	scope     string
	enclosing string
	context   string
	local     bool
}

type walker struct {
	doc    *ast.Document
	sep    string
	frames []map[string]bool
	res    Result
}

func (w *walker) qualify(scope, name string) string {
	name = strings.TrimPrefix(name, w.sep)
	if scope == "" {
		return name
	}
	return scope + w.sep + name
}

// parentScope strips the last segment of a qualified name.
func (w *walker) parentScope(qname string) string {
	if i := strings.LastIndex(qname, w.sep); i >= 0 {
		return qname[:i]
	}
	return ""
}

func (w *walker) pushFrame() { w.frames = append(w.frames, map[string]bool{}) }
func (w *walker) popFrame()  { w.frames = w.frames[:len(w.frames)-1] }

func (w *walker) declareLocal(name string) {
	if name == "" || len(w.frames) == 0 {
		return
	}
	w.frames[len(w.frames)-1][name] = true
}

func (w *walker) isLocal(name string) bool {
	if strings.Contains(name, w.sep) {
		return false
	}
	for i := len(w.frames) - 1; i >= 0; i-- {
		if w.frames[i][name] {
			return true
		}
	}
	return false
}

func (w *walker) children(n *ast.Node, st state) {
	for _, c := range n.Children {
		w.visit(c, st)
	}
}

func (w *walker) visit(n *ast.Node, st state) {
	switch n.Kind {
	case ast.KindNamespace:
		w.namespace(n, st)
	case ast.KindClass:
		w.class(n, st)
	case ast.KindFunction:
		w.function(n, st)
	case ast.KindVariable:
		w.variable(n, st)
	case ast.KindParameter:
		w.children(n, st)
		w.declareLocal(n.Name)
	case ast.KindControlFlow:
		if st.local {
			w.pushFrame()
			defer w.popFrame()
		}
		w.children(n, st)
	case ast.KindOther:
		w.other(n, st)
	case ast.KindExpression:
		if n.IsReference() {
			w.reference(n, st)
		}
		w.children(n, st)
	default:
		w.children(n, st)
	}
}

func (w *walker) namespace(n *ast.Node, st state) {
	if st.local || n.Name == "" {
		w.children(n, st)
		return
	}
	qn := w.qualify(st.scope, n.Name)
	w.define(n, qn, index.KindNamespace, "")
	w.children(n, state{scope: qn, enclosing: qn, context: index.ContextType})
}

func (w *walker) class(n *ast.Node, st state) {
	if st.local {
		w.declareLocal(n.Name)
		w.children(n, st)
		return
	}
	if n.Name == "" {
		w.children(n, state{scope: st.scope, enclosing: st.enclosing, context: index.ContextType})
		return
	}
	qn := w.qualify(st.scope, n.Name)
	w.define(n, qn, index.KindClass, "")
	inner := state{scope: qn, enclosing: qn, context: index.ContextType}
	if n.HasModifier(ast.ModEnum) {
		// Enumerators are visible in the enclosing scope.
		inner.scope = st.scope
	}
	w.children(n, inner)
}

func (w *walker) function(n *ast.Node, st state) {
	bodyState := state{scope: st.scope, enclosing: st.enclosing, local: true}
	if !st.local && n.Name != "" {
		qn := w.qualify(st.scope, n.Name)
		w.define(n, qn, index.KindFunction, w.signature(n))
		bodyState.scope = w.parentScope(qn)
		bodyState.enclosing = qn
	}

	w.pushFrame()
	defer w.popFrame()
	for _, c := range n.Children {
		cs := bodyState
		cs.context = index.ContextSignature
		if st.local {
			cs.context = index.ContextBody
		}
		if c.Kind == ast.KindOther && isBlock(c) {
			cs.context = index.ContextBody
		}
		w.visit(c, cs)
	}
}

func (w *walker) variable(n *ast.Node, st state) {
	if st.local {
		w.children(n, st)
		w.declareLocal(n.Name)
		return
	}
	qn := w.qualify(st.scope, n.Name)
	w.define(n, qn, index.KindVariable, n.TypeName)
	for _, c := range n.Children {
		cs := state{scope: st.scope, enclosing: qn, context: index.ContextInitializer}
		if c.IsReference() && n.TypeName != "" && strings.Contains(n.TypeName, c.Name) {
			cs.context = index.ContextType
		}
		w.visit(c, cs)
	}
}

func (w *walker) other(n *ast.Node, st state) {
	if st.local && isBlock(n) {
		w.pushFrame()
		defer w.popFrame()
		w.children(n, st)
		return
	}
	if !st.local && n.Name != "" && isMacro(n) {
		w.define(n, n.Name, index.KindOther, n.Value)
	}
	w.children(n, st)
}

func isBlock(n *ast.Node) bool {
	switch n.Syntax {
	case "compound_statement", "block":
		return true
	}
	return false
}

func isMacro(n *ast.Node) bool {
	return strings.HasPrefix(n.Syntax, "preproc_")
}

func (w *walker) reference(n *ast.Node, st state) {
	if w.isLocal(n.Name) {
		return
	}
	access := index.AccessRead
	if n.HasModifier(ast.ModWrite) {
		access = index.AccessWrite
	}
	w.res.Occurrences = append(w.res.Occurrences, index.Occurrence{
		Name:       n.Name,
		SimpleName: index.SimpleName(strings.TrimPrefix(n.Name, w.sep), w.sep),
		Scope:      st.scope,
		Enclosing:  st.enclosing,
		Context:    st.context,
		Access:     access,
		Path:       w.doc.Path,
		Line:       n.Loc.StartLine,
		Col:        n.Loc.StartCol,
		Language:   w.doc.Language,
	})
}

func (w *walker) define(n *ast.Node, qname, kind, signature string) {
	var mods []string
	if len(n.Modifiers) > 0 {
		mods = append([]string(nil), n.Modifiers...)
	}
	w.res.Definitions = append(w.res.Definitions, index.Symbol{
		QualifiedName: qname,
		Name:          index.SimpleName(qname, w.sep),
		Kind:          kind,
		Path:          w.doc.Path,
		Language:      w.doc.Language,
		Signature:     signature,
		Modifiers:     mods,
		Line:          n.Loc.StartLine,
		Col:           n.Loc.StartCol,
		EndLine:       n.Loc.EndLine,
		EndCol:        n.Loc.EndCol,
	})
}
