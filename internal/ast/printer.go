package ast

import (
	"fmt"
	"strings"
)

const (
	branchMid  = "├── "
	branchLast = "└── "
	indentMid  = "│   "
	indentLast = "    "

	maxValueLen = 50
)

// PrintOptions controls Print output.
type PrintOptions struct {
	ShowTypes     bool
	ShowLocations bool
	ShowValues    bool
	ShowModifiers bool
	// MaxDepth limits nesting below the root; 0 means unlimited. Deeper
	// subtrees collapse into a single elision marker.
	MaxDepth int
	// Kinds, when non-empty, hides nodes of other kinds. Children of hidden
	// nodes are lifted into the hidden node's place.
	Kinds []Kind
	// NoHeader omits the document header and diagnostics summary.
	NoHeader bool
}

// Print renders doc as a box-drawing tree. Output is deterministic and
// children appear in source order.
func Print(doc *Document, opts PrintOptions) string {
	var b strings.Builder
	if !opts.NoHeader {
		writeHeader(&b, doc)
	}
	if doc.Root != nil {
		p := printer{opts: opts, out: &b}
		if len(opts.Kinds) > 0 {
			p.kinds = make(map[Kind]bool, len(opts.Kinds))
			for _, k := range opts.Kinds {
				p.kinds[k] = true
			}
		}
		b.WriteString(p.label(doc.Root))
		b.WriteByte('\n')
		p.children(doc.Root, "", 1)
	}
	if !opts.NoHeader && len(doc.Diagnostics) > 0 {
		b.WriteString("\nDiagnostics:\n")
		for _, d := range doc.Diagnostics {
			fmt.Fprintf(&b, "  %s %s %d:%d %s\n", d.Severity, d.Kind, d.Loc.StartLine, d.Loc.StartCol, d.Message)
		}
	}
	return b.String()
}

func writeHeader(b *strings.Builder, doc *Document) {
	fmt.Fprintf(b, "File: %s\n", doc.Path)
	fmt.Fprintf(b, "Language: %s\n", doc.Language)
	fmt.Fprintf(b, "Content hash: %s\n", doc.ContentHash)
	errs, warns := doc.DiagnosticCounts()
	fmt.Fprintf(b, "Nodes: %d  Errors: %d  Warnings: %d\n", doc.Root.Count(), errs, warns)
	b.WriteString(strings.Repeat("=", 60))
	b.WriteByte('\n')
}

type printer struct {
	opts  PrintOptions
	kinds map[Kind]bool
	out   *strings.Builder
}

func (p *printer) visible(n *Node) bool {
	return p.kinds == nil || p.kinds[n.Kind]
}

// visibleChildren flattens hidden nodes so their visible descendants take
// their place.
func (p *printer) visibleChildren(n *Node) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if p.visible(c) {
			out = append(out, c)
			continue
		}
		out = append(out, p.visibleChildren(c)...)
	}
	return out
}

func (p *printer) children(n *Node, prefix string, depth int) {
	kids := p.visibleChildren(n)
	if len(kids) == 0 {
		return
	}
	if p.opts.MaxDepth > 0 && depth > p.opts.MaxDepth {
		elided := 0
		for _, c := range kids {
			elided += c.Count()
		}
		fmt.Fprintf(p.out, "%s%s… %d nodes elided\n", prefix, branchLast, elided)
		return
	}
	for i, c := range kids {
		last := i == len(kids)-1
		branch, indent := branchMid, indentMid
		if last {
			branch, indent = branchLast, indentLast
		}
		p.out.WriteString(prefix + branch + p.label(c) + "\n")
		p.children(c, prefix+indent, depth+1)
	}
}

func (p *printer) label(n *Node) string {
	var b strings.Builder
	b.WriteString(string(n.Kind))
	if n.Name != "" {
		b.WriteByte(' ')
		b.WriteString(n.Name)
	}
	if n.Syntax != "" && n.Name == "" {
		fmt.Fprintf(&b, " (%s)", n.Syntax)
	}
	if p.opts.ShowTypes && n.TypeName != "" {
		b.WriteString(": ")
		b.WriteString(n.TypeName)
	}
	if p.opts.ShowValues && n.Value != "" {
		b.WriteString(" = ")
		b.WriteString(truncateValue(n.Value))
	}
	if p.opts.ShowModifiers && len(n.Modifiers) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(n.Modifiers, ", "))
	}
	if p.opts.ShowLocations {
		fmt.Fprintf(&b, " @%d:%d-%d:%d", n.Loc.StartLine, n.Loc.StartCol, n.Loc.EndLine, n.Loc.EndCol)
	}
	return b.String()
}

func truncateValue(v string) string {
	v = strings.ReplaceAll(v, "\n", `\n`)
	if r := []rune(v); len(r) > maxValueLen {
		return string(r[:maxValueLen-3]) + "..."
	}
	return v
}
