package transform

import (
	"cmp"
	"slices"
	"sort"

	arborerrors "github.com/jward/arbor/internal/errors"
)

// Graph is the declaration dependency graph of a package. An edge A -> B means
// A refers to B, so B must be emitted first.
type Graph struct {
	decls  []Decl
	byName map[string][]int
	deps   []map[int]bool
	edges  int
}

// NewGraph returns a graph over decls with no edges. Nodes are kept ordered by
// (path, line, qualified name), which is also the tie-break order of Order.
func NewGraph(decls []Decl) *Graph {
	sorted := slices.Clone(decls)
	slices.SortStableFunc(sorted, compareDecls)
	g := &Graph{
		decls:  sorted,
		byName: make(map[string][]int, len(sorted)),
		deps:   make([]map[int]bool, len(sorted)),
	}
	for i, d := range sorted {
		g.byName[d.QualifiedName] = append(g.byName[d.QualifiedName], i)
		g.deps[i] = map[int]bool{}
	}
	return g
}

func compareDecls(a, b Decl) int {
	return cmp.Or(
		cmp.Compare(a.Path, b.Path),
		cmp.Compare(a.Line, b.Line),
		cmp.Compare(a.QualifiedName, b.QualifiedName),
		cmp.Compare(a.Signature, b.Signature),
	)
}

// Has reports whether qname names at least one node.
func (g *Graph) Has(qname string) bool {
	return len(g.byName[qname]) > 0
}

// AddEdge records that from depends on to. Overloads share a qualified name,
// so the edge joins every node of each name. Self edges and unknown names are
// ignored; the return value reports whether any edge was added.
func (g *Graph) AddEdge(from, to string) bool {
	added := false
	for _, f := range g.byName[from] {
		for _, t := range g.byName[to] {
			if f == t || g.deps[f][t] {
				continue
			}
			g.deps[f][t] = true
			g.edges++
			added = true
		}
	}
	return added
}

// Len returns the node count.
func (g *Graph) Len() int { return len(g.decls) }

// Edges returns the edge count.
func (g *Graph) Edges() int { return g.edges }

// DependsOn returns the distinct qualified names qname depends on, sorted.
func (g *Graph) DependsOn(qname string) []string {
	seen := map[string]bool{}
	for _, i := range g.byName[qname] {
		for j := range g.deps[i] {
			seen[g.decls[j].QualifiedName] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Order sorts the declarations so every declaration follows its
// dependencies (Kahn's algorithm). Among ready declarations the earliest by
// (path, line) goes first. A cycle yields a CycleError naming every member of
// the first cycle found, ordered by (path, line).
func (g *Graph) Order() ([]Decl, error) {
	n := len(g.decls)
	pending := make([]int, n)
	dependents := make([][]int, n)
	for i, deps := range g.deps {
		pending[i] = len(deps)
		for j := range deps {
			dependents[j] = append(dependents[j], i)
		}
	}

	var ready []int
	for i := range n {
		if pending[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]Decl, 0, n)
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		order = append(order, g.decls[cur])
		for _, d := range dependents[cur] {
			pending[d]--
			if pending[d] == 0 {
				pos, _ := slices.BinarySearch(ready, d)
				ready = slices.Insert(ready, pos, d)
			}
		}
	}
	if len(order) == n {
		return order, nil
	}

	remaining := make(map[int]bool)
	for i := range n {
		if pending[i] > 0 {
			remaining[i] = true
		}
	}
	cycle := g.firstCycle(remaining)
	members := make([]arborerrors.CycleMember, len(cycle))
	for i, id := range cycle {
		d := g.decls[id]
		members[i] = arborerrors.CycleMember{Path: d.Path, Line: d.Line, QualifiedName: d.QualifiedName}
	}
	return nil, &arborerrors.CycleError{Members: members}
}

// firstCycle finds the strongly connected components among the given nodes
// (Tarjan) and returns the non-trivial one containing the earliest node,
// sorted by node order.
func (g *Graph) firstCycle(nodes map[int]bool) []int {
	type nodeInfo struct {
		index   int
		lowlink int
		onStack bool
	}
	info := map[int]*nodeInfo{}
	index := 0
	var stack []int
	var sccs [][]int

	var strongconnect func(v int)
	strongconnect = func(v int) {
		ni := &nodeInfo{index: index, lowlink: index, onStack: true}
		info[v] = ni
		index++
		stack = append(stack, v)

		for _, w := range sortedKeys(g.deps[v]) {
			if !nodes[w] {
				continue
			}
			wInfo, visited := info[w]
			if !visited {
				strongconnect(w)
				wInfo = info[w]
				ni.lowlink = min(ni.lowlink, wInfo.lowlink)
			} else if wInfo.onStack {
				ni.lowlink = min(ni.lowlink, wInfo.index)
			}
		}

		if ni.lowlink == ni.index {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				info[w].onStack = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if len(scc) > 1 {
				slices.Sort(scc)
				sccs = append(sccs, scc)
			}
		}
	}

	for _, v := range sortedKeys(nodes) {
		if _, visited := info[v]; !visited {
			strongconnect(v)
		}
	}
	if len(sccs) == 0 {
		return sortedKeys(nodes)
	}
	slices.SortFunc(sccs, func(a, b []int) int { return cmp.Compare(a[0], b[0]) })
	return sccs[0]
}

func sortedKeys(m map[int]bool) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
