package transform

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jward/arbor/internal/ast"
	arborerrors "github.com/jward/arbor/internal/errors"
)

// include is one #include directive of a source file.
type include struct {
	name   string
	system bool
	line   int
}

func includesOf(doc *ast.Document) []include {
	var out []include
	ast.Walk(doc.Root, func(n *ast.Node, _ []*ast.Node) bool {
		if n.Kind == ast.KindOther && n.HasModifier(ast.ModInclude) && n.Name != "" {
			out = append(out, include{name: n.Name, system: n.HasModifier(ast.ModSystem), line: n.Loc.StartLine})
		}
		return true
	})
	return out
}

// Rewrite describes the changes made to one package source.
type Rewrite struct {
	Path    string   `json:"path"`
	Removed []string `json:"removed,omitempty"`
	Added   string   `json:"added,omitempty"`
	Changed bool     `json:"changed"`

	content string
}

// rewriteIncludes drops the lines of includes for which local reports true
// and adds an include of header after the last system include, unless the
// file already includes it. header is relative to the file's directory.
func rewriteIncludes(path, content string, incs []include, local func(include) bool, header string) Rewrite {
	rw := Rewrite{Path: path}
	drop := map[int]bool{}
	hasHeader := false
	lastSystem := 0
	for _, inc := range incs {
		switch {
		case inc.name == header:
			hasHeader = true
		case !inc.system && local(inc):
			drop[inc.line] = true
			rw.Removed = append(rw.Removed, inc.name)
		case inc.system:
			lastSystem = max(lastSystem, inc.line)
		}
	}

	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	directive := fmt.Sprintf("#include %q\n", header)

	var b strings.Builder
	if !hasHeader && lastSystem == 0 {
		b.WriteString(directive)
		rw.Added = header
	}
	for i, line := range lines {
		n := i + 1
		if !drop[n] {
			b.WriteString(line)
			if n == len(lines) && !strings.HasSuffix(line, "\n") && n == lastSystem {
				b.WriteString("\n")
			}
		}
		if !hasHeader && n == lastSystem {
			b.WriteString(directive)
			rw.Added = header
		}
	}
	rw.content = b.String()
	rw.Changed = rw.content != content
	return rw
}

// output is a file written by the transform.
type output struct {
	path    string
	content string
}

const (
	stagingSuffix = ".arbor-tmp"
	backupSuffix  = ".arbor-orig"
)

// commit writes every output to a staging file next to its target and renames
// them into place only after all staging writes succeeded. Existing targets
// are moved aside first; if any rename fails, every target already replaced is
// restored from its backup and every newly created one is removed.
func commit(outputs []output) error {
	staged := make([]string, 0, len(outputs))
	removeStaged := func() {
		for _, p := range staged {
			_ = os.Remove(p)
		}
	}
	for _, o := range outputs {
		mode := os.FileMode(0o644)
		if info, err := os.Stat(o.path); err == nil {
			mode = info.Mode().Perm()
		}
		tmp := o.path + stagingSuffix
		if err := os.WriteFile(tmp, []byte(o.content), mode); err != nil {
			removeStaged()
			return &arborerrors.GenerationError{Path: o.path, Underlying: err}
		}
		staged = append(staged, tmp)
	}

	type applied struct {
		path   string
		backup string // empty when the target did not exist
	}
	var done []applied
	rollback := func() {
		for i := len(done) - 1; i >= 0; i-- {
			a := done[i]
			if a.backup == "" {
				_ = os.Remove(a.path)
				continue
			}
			_ = os.Rename(a.backup, a.path)
		}
		removeStaged()
	}
	for i, o := range outputs {
		a := applied{path: o.path}
		if info, err := os.Lstat(o.path); err == nil && info.Mode().IsRegular() {
			a.backup = o.path + backupSuffix
			if err := os.Rename(o.path, a.backup); err != nil {
				rollback()
				return &arborerrors.GenerationError{Path: o.path, Underlying: err}
			}
		}
		if err := os.Rename(staged[i], o.path); err != nil {
			if a.backup != "" {
				_ = os.Rename(a.backup, o.path)
			}
			rollback()
			return &arborerrors.GenerationError{Path: o.path, Underlying: err}
		}
		done = append(done, a)
	}
	for _, a := range done {
		if a.backup != "" {
			_ = os.Remove(a.backup)
		}
	}
	return nil
}

// relInclude spells target as an include path relative to the directory of
// the including file.
func relInclude(from, target string) string {
	rel, err := filepath.Rel(filepath.Dir(from), target)
	if err != nil {
		return filepath.Base(target)
	}
	return filepath.ToSlash(rel)
}

func sortedUnique(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
