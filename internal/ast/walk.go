package ast

import "fmt"

// Visitor is called for every node in pre-order with the chain of ancestors
// (outermost first). Returning false skips the node's children.
type Visitor func(n *Node, ancestors []*Node) bool

// Walk traverses the tree rooted at root in source order.
func Walk(root *Node, fn Visitor) {
	if root == nil {
		return
	}
	walk(root, nil, fn)
}

func walk(n *Node, ancestors []*Node, fn Visitor) {
	if !fn(n, ancestors) {
		return
	}
	ancestors = append(ancestors, n)
	for _, c := range n.Children {
		walk(c, ancestors, fn)
	}
}

// PathTo returns the chain of nodes enclosing the 1-based position, from the
// root down to the innermost node. It returns nil when root does not contain
// the position.
func PathTo(root *Node, line, col int) []*Node {
	if root == nil {
		return nil
	}
	var path []*Node
	n := root
	if n.Kind != KindModule && !n.Loc.Contains(line, col) {
		return nil
	}
	for n != nil {
		path = append(path, n)
		var next *Node
		for _, c := range n.Children {
			if c.Loc.Contains(line, col) {
				next = c
			}
		}
		n = next
	}
	return path
}

// Validate checks the structural invariants of a tree: every child is
// non-nil, children are ordered by start position, and each child lies inside
// its parent's span. The module root is exempt from containment so trailing
// trivia does not matter.
func Validate(root *Node) error {
	if root == nil {
		return fmt.Errorf("ast: validate: nil root")
	}
	var err error
	Walk(root, func(n *Node, _ []*Node) bool {
		if err != nil {
			return false
		}
		for i, c := range n.Children {
			if c == nil {
				err = fmt.Errorf("ast: validate: nil child %d of %s %q", i, n.Kind, n.Name)
				return false
			}
			if i > 0 && c.Loc.Before(n.Children[i-1].Loc) {
				err = fmt.Errorf("ast: validate: child %s %q at %d:%d out of order", c.Kind, c.Name, c.Loc.StartLine, c.Loc.StartCol)
				return false
			}
			if n.Kind != KindModule && !n.Loc.Encloses(c.Loc) {
				err = fmt.Errorf("ast: validate: child %s %q at %d:%d outside parent", c.Kind, c.Name, c.Loc.StartLine, c.Loc.StartCol)
				return false
			}
		}
		return true
	})
	return err
}
