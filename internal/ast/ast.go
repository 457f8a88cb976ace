// Package ast defines the language-neutral syntax tree produced by every
// parser backend, along with its JSON codec and a tree printer.
package ast

import (
	"slices"
	"sort"
)

// Kind is the language-neutral category of a node.
type Kind string

const (
	KindModule      Kind = "module"
	KindNamespace   Kind = "namespace"
	KindClass       Kind = "class"
	KindFunction    Kind = "function"
	KindVariable    Kind = "variable"
	KindParameter   Kind = "parameter"
	KindControlFlow Kind = "control_flow"
	KindExpression  Kind = "expression"
	KindOther       Kind = "other"
)

// Kinds lists every node kind in declaration order.
var Kinds = []Kind{
	KindModule, KindNamespace, KindClass, KindFunction, KindVariable,
	KindParameter, KindControlFlow, KindExpression, KindOther,
}

// ParseKind returns the Kind named s and whether it is known.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Common modifiers. Backends may record others, e.g. "define:NAME".
const (
	ModStatic    = "static"
	ModConst     = "const"
	ModVirtual   = "virtual"
	ModExtern    = "extern"
	ModInline    = "inline"
	ModPublic    = "public"
	ModPrivate   = "private"
	ModProtected = "protected"
	ModExported  = "exported"
	ModMethod    = "method"
	ModPrototype = "prototype"
	ModTemplate  = "template"
	ModStruct    = "struct"
	ModInterface = "interface"
	ModWrite     = "write"
	ModCall      = "call"
	ModInclude   = "include"
	ModSystem    = "system"
	ModEnum      = "enum"
	ModReceiver  = "receiver"
	ModResult    = "result"
)

// Location is a source span. Lines and columns are 1-based; byte offsets are
// 0-based and half-open.
type Location struct {
	Path      string `json:"path,omitempty"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
	StartByte int    `json:"start_byte"`
	EndByte   int    `json:"end_byte"`
}

// Contains reports whether the 1-based position (line, col) falls inside the
// span. The end position is inclusive so a cursor right after the last
// character of a node is still inside it.
func (l Location) Contains(line, col int) bool {
	if line < l.StartLine || line > l.EndLine {
		return false
	}
	if line == l.StartLine && col < l.StartCol {
		return false
	}
	if line == l.EndLine && col > l.EndCol {
		return false
	}
	return true
}

// Encloses reports whether o lies within l.
func (l Location) Encloses(o Location) bool {
	return !positionBefore(o.StartLine, o.StartCol, l.StartLine, l.StartCol) &&
		!positionBefore(l.EndLine, l.EndCol, o.EndLine, o.EndCol)
}

// Before reports whether l starts before o.
func (l Location) Before(o Location) bool {
	return positionBefore(l.StartLine, l.StartCol, o.StartLine, o.StartCol)
}

// StartsBefore reports whether l starts strictly before (line, col).
func (l Location) StartsBefore(line, col int) bool {
	return positionBefore(l.StartLine, l.StartCol, line, col)
}

func positionBefore(l1, c1, l2, c2 int) bool {
	if l1 != l2 {
		return l1 < l2
	}
	return c1 < c2
}

// Node is a single syntax tree node. A node exclusively owns its children,
// which are ordered by source position and contained in the node's span.
//
// An expression node with a non-empty Name is a name reference.
type Node struct {
	Kind      Kind     `json:"kind"`
	Name      string   `json:"name,omitempty"`
	Syntax    string   `json:"syntax,omitempty"`
	Loc       Location `json:"loc"`
	TypeName  string   `json:"type,omitempty"`
	Modifiers []string `json:"modifiers,omitempty"`
	Value     string   `json:"value,omitempty"`
	Children  []*Node  `json:"children,omitempty"`
}

// AddModifier inserts m keeping Modifiers sorted and unique.
func (n *Node) AddModifier(m string) {
	i, found := slices.BinarySearch(n.Modifiers, m)
	if found {
		return
	}
	n.Modifiers = slices.Insert(n.Modifiers, i, m)
}

// HasModifier reports whether m is set on the node.
func (n *Node) HasModifier(m string) bool {
	_, found := slices.BinarySearch(n.Modifiers, m)
	return found
}

// AddChild appends c, keeping Children ordered by source position.
func (n *Node) AddChild(c *Node) {
	if c == nil {
		return
	}
	n.Children = append(n.Children, c)
	if k := len(n.Children); k > 1 && c.Loc.Before(n.Children[k-2].Loc) {
		sort.SliceStable(n.Children, func(i, j int) bool {
			return n.Children[i].Loc.Before(n.Children[j].Loc)
		})
	}
}

// IsReference reports whether the node is a name reference.
func (n *Node) IsReference() bool {
	return n.Kind == KindExpression && n.Name != ""
}

// Count returns the number of nodes in the subtree rooted at n, n included.
func (n *Node) Count() int {
	if n == nil {
		return 0
	}
	total := 1
	for _, c := range n.Children {
		total += c.Count()
	}
	return total
}

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// DiagnosticKind classifies a diagnostic.
type DiagnosticKind string

const (
	DiagSyntax      DiagnosticKind = "syntax"
	DiagMissing     DiagnosticKind = "missing"
	DiagTimeout     DiagnosticKind = "timeout"
	DiagInclude     DiagnosticKind = "include"
	DiagUnsupported DiagnosticKind = "unsupported"
	DiagIO          DiagnosticKind = "io"
)

// Diagnostic is a problem found while parsing a file.
type Diagnostic struct {
	Severity Severity       `json:"severity"`
	Kind     DiagnosticKind `json:"kind"`
	Message  string         `json:"message"`
	Loc      Location       `json:"loc"`
}

// Document is the parse result for one file. Documents are immutable once
// built; a content or configuration change produces a new Document.
type Document struct {
	Path        string       `json:"path"`
	Language    string       `json:"language"`
	ContentHash string       `json:"content_hash"`
	ConfigHash  string       `json:"config_hash"`
	Root        *Node        `json:"root"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// HasErrors reports whether any diagnostic has error severity.
func (d *Document) HasErrors() bool {
	for _, diag := range d.Diagnostics {
		if diag.Severity == SeverityError {
			return true
		}
	}
	return false
}

// DiagnosticCounts returns the number of error and warning diagnostics.
func (d *Document) DiagnosticCounts() (errs, warnings int) {
	for _, diag := range d.Diagnostics {
		switch diag.Severity {
		case SeverityError:
			errs++
		case SeverityWarning:
			warnings++
		}
	}
	return errs, warnings
}

// Slice returns the source bytes spanned by loc, or nil if loc lies outside
// content.
func Slice(content []byte, loc Location) []byte {
	if loc.StartByte < 0 || loc.EndByte > len(content) || loc.StartByte > loc.EndByte {
		return nil
	}
	return content[loc.StartByte:loc.EndByte]
}
