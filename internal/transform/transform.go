// Package transform consolidates the namespace-scope declarations of a C/C++
// package into one generated header and rewrites the package sources to
// include it.
//
// A job moves through Collecting, GraphBuilt, Ordered, Generated, Rewritten,
// and Done. A dependency cycle or a generation failure ends it in Failed, and
// no file is written unless every step succeeded.
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jward/arbor/internal/ast"
	"github.com/jward/arbor/internal/builder"
	arborerrors "github.com/jward/arbor/internal/errors"
	"github.com/jward/arbor/internal/index"
)

// State is the position of a job in the transform state machine.
type State string

const (
	StateCollecting State = "collecting"
	StateGraphBuilt State = "graph_built"
	StateOrdered    State = "ordered"
	StateGenerated  State = "generated"
	StateRewritten  State = "rewritten"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

var transitions = map[State][]State{
	StateCollecting: {StateGraphBuilt, StateFailed},
	StateGraphBuilt: {StateOrdered, StateFailed},
	StateOrdered:    {StateGenerated, StateFailed},
	StateGenerated:  {StateRewritten, StateFailed},
	StateRewritten:  {StateDone},
}

// SourcePattern selects the C/C++ files of a package directory.
const SourcePattern = "**/*.{c,cc,cpp,cxx,h,hh,hpp,hxx}"

var headerExts = map[string]bool{".h": true, ".hh": true, ".hpp": true, ".hxx": true}

// Report is the result of a transform job.
type Report struct {
	Package    Package       `json:"package"`
	Convention string        `json:"convention"`
	State      State         `json:"state"`
	Trace      []State       `json:"trace"`
	Header     string        `json:"header,omitempty"`
	HeaderText string        `json:"header_text,omitempty"`
	Order      []Decl        `json:"order,omitempty"`
	Excluded   []string      `json:"excluded,omitempty"`
	Edges      int           `json:"edges"`
	Rewrites   []Rewrite     `json:"rewrites,omitempty"`
	DryRun     bool          `json:"dry_run"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`

	// Dependencies maps each ordered declaration to the declarations it
	// needs first. Declarations with none are absent.
	Dependencies map[string][]string `json:"dependencies,omitempty"`
}

func (r *Report) advance(next State) error {
	if !slices.Contains(transitions[r.State], next) {
		return fmt.Errorf("transform: illegal transition %s -> %s", r.State, next)
	}
	r.State = next
	r.Trace = append(r.Trace, next)
	return nil
}

// fail moves the job to Failed and returns err.
func (r *Report) fail(err error) error {
	_ = r.advance(StateFailed)
	r.Error = err.Error()
	return err
}

// Options tune one job.
type Options struct {
	Convention Convention
	Build      builder.Options
	// DryRun computes the report and file contents without writing anything.
	DryRun bool
}

// Transformer runs transform jobs against a builder and its index.
type Transformer struct {
	builder *builder.Builder
	index   *index.Index
	log     *slog.Logger
}

// Option configures a Transformer.
type Option func(*Transformer)

func WithLogger(l *slog.Logger) Option {
	return func(t *Transformer) { t.log = l }
}

func New(b *builder.Builder, ix *index.Index, opts ...Option) *Transformer {
	t := &Transformer{builder: b, index: ix, log: slog.Default()}
	for _, o := range opts {
		o(t)
	}
	return t
}

// job carries per-run state between steps.
type job struct {
	opts    Options
	report  *Report
	pkg     Package
	header  string // absolute path of the generated header
	decls   []Decl
	sources map[string]*source
	graph   *Graph
	order   []Decl
	outputs []output
}

// Run transforms the package rooted at dir. Cycle and generation failures
// return the report in state Failed together with the error; request errors
// such as an empty package return a nil report.
func (t *Transformer) Run(ctx context.Context, dir string, opts Options) (*Report, error) {
	start := time.Now()
	if opts.Convention == nil {
		opts.Convention = Upp{}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, arborerrors.NewValidationError("package", dir, err)
	}
	j := &job{
		opts:    opts,
		report:  &Report{State: StateCollecting, Trace: []State{StateCollecting}, Convention: opts.Convention.Name(), DryRun: opts.DryRun},
		sources: map[string]*source{},
	}
	defer func() { j.report.Duration = time.Since(start) }()

	if err := t.collect(ctx, j, abs); err != nil {
		if arborerrors.KindOf(err) == arborerrors.KindGeneration {
			return j.report, j.report.fail(err)
		}
		return nil, err
	}
	steps := []struct {
		next State
		run  func(context.Context, *job) error
	}{
		{StateGraphBuilt, t.buildGraph},
		{StateOrdered, t.orderDecls},
		{StateGenerated, t.generate},
		{StateRewritten, t.rewrite},
	}
	for _, s := range steps {
		if err := s.run(ctx, j); err != nil {
			t.log.Error("transform failed", "package", j.pkg.Name, "state", j.report.State, "error", err)
			return j.report, j.report.fail(err)
		}
		if err := j.report.advance(s.next); err != nil {
			return j.report, err
		}
	}
	if err := j.report.advance(StateDone); err != nil {
		return j.report, err
	}
	t.log.Info("transform finished",
		"package", j.pkg.Name,
		"header", j.report.Header,
		"decls", len(j.order),
		"rewritten", countChanged(j.report.Rewrites),
		"dry_run", opts.DryRun,
	)
	return j.report, nil
}

// collect discovers and builds the package sources, asks the convention for
// its plan, and gathers the namespace-scope declarations.
func (t *Transformer) collect(ctx context.Context, j *job, dir string) error {
	rel, err := doublestar.Glob(os.DirFS(dir), SourcePattern)
	if err != nil {
		return arborerrors.NewValidationError("package", dir, err)
	}
	var files []string
	for _, r := range rel {
		if strings.HasSuffix(r, stagingSuffix) || strings.HasSuffix(r, backupSuffix) {
			continue
		}
		files = append(files, filepath.Join(dir, filepath.FromSlash(r)))
	}
	slices.Sort(files)
	if len(files) == 0 {
		return arborerrors.Validationf("package", dir, "no C/C++ sources")
	}
	j.pkg = Package{Name: filepath.Base(dir), Dir: dir, Files: files}
	j.report.Package = j.pkg

	report, err := t.builder.Build(ctx, files, j.opts.Build)
	if err != nil {
		return err
	}
	if failed := report.Failed(); len(failed) > 0 {
		return &arborerrors.GenerationError{Path: failed[0], Underlying: fmt.Errorf("%d package sources failed to build", len(failed))}
	}

	var all []index.Symbol
	for _, f := range files {
		syms, err := t.index.SymbolsByFile(ctx, f)
		if err != nil {
			return err
		}
		all = append(all, syms...)
	}
	plan, err := j.opts.Convention.Plan(ctx, j.pkg, namespaceScope(all))
	if err == nil {
		err = validatePlan(plan)
	}
	if err != nil {
		if arborerrors.KindOf(err) != arborerrors.KindGeneration {
			err = &arborerrors.GenerationError{Path: dir, Underlying: err}
		}
		return err
	}
	j.header = filepath.Join(dir, plan.Header)
	j.report.Header = j.header

	// A previous run's header restates the package; its copies must not
	// shadow the original declarations.
	all = slices.DeleteFunc(all, func(s index.Symbol) bool { return s.Path == j.header })
	for _, d := range namespaceScope(all) {
		switch {
		case slices.Contains(plan.Exclude, d.Name) || slices.Contains(plan.Exclude, d.QualifiedName):
			j.report.Excluded = append(j.report.Excluded, d.QualifiedName)
		default:
			j.decls = append(j.decls, d)
		}
	}
	j.report.Excluded = sortedUnique(j.report.Excluded)
	return nil
}

// namespaceScope keeps the classes, functions, and variables declared outside
// any class body, collapsing a prototype and its definition into the earliest
// declaration. Static declarations have internal linkage and are skipped.
func namespaceScope(syms []index.Symbol) []Decl {
	classes := map[string]bool{}
	var bodies []index.Symbol
	for _, s := range syms {
		if s.Kind == index.KindClass {
			classes[s.QualifiedName] = true
			bodies = append(bodies, s)
		}
	}
	inside := func(s index.Symbol) bool {
		for _, c := range bodies {
			if c.Path == s.Path && c.QualifiedName != s.QualifiedName && encloses(c, s) {
				return true
			}
		}
		return false
	}

	seen := map[string]int{}
	var out []Decl
	for _, s := range syms {
		switch s.Kind {
		case index.KindClass, index.KindFunction, index.KindVariable:
		default:
			continue
		}
		if classes[parentName(s.QualifiedName)] || inside(s) {
			continue
		}
		d := newDecl(s)
		if d.has(ast.ModStatic) {
			continue
		}
		if i, ok := seen[d.key()]; ok {
			if compareDecls(d, out[i]) < 0 {
				out[i] = d
			}
			continue
		}
		seen[d.key()] = len(out)
		out = append(out, d)
	}
	slices.SortStableFunc(out, compareDecls)
	return out
}

func encloses(outer, inner index.Symbol) bool {
	startsAfter := inner.Line > outer.Line || (inner.Line == outer.Line && inner.Col >= outer.Col)
	endsBefore := inner.EndLine < outer.EndLine || (inner.EndLine == outer.EndLine && inner.EndCol <= outer.EndCol)
	return startsAfter && endsBefore
}

func parentName(qname string) string {
	if i := strings.LastIndex(qname, "::"); i >= 0 {
		return qname[:i]
	}
	return ""
}

// buildGraph adds an edge for every resolved occurrence outside a function
// body whose enclosing declaration and target both map to package nodes.
func (t *Transformer) buildGraph(ctx context.Context, j *job) error {
	j.graph = NewGraph(j.decls)
	owner := func(qname string) string {
		for qname != "" {
			if j.graph.Has(qname) {
				return qname
			}
			qname = parentName(qname)
		}
		return ""
	}
	for _, f := range j.pkg.Files {
		occs, err := t.index.ResolveFile(ctx, f)
		if err != nil {
			return err
		}
		for _, o := range occs {
			if o.Context == index.ContextBody || o.QualifiedName == "" {
				continue
			}
			from, to := owner(o.Enclosing), owner(o.QualifiedName)
			if from == "" || to == "" {
				continue
			}
			j.graph.AddEdge(from, to)
		}
	}
	j.report.Edges = j.graph.Edges()
	t.log.Debug("built declaration graph", "package", j.pkg.Name, "nodes", j.graph.Len(), "edges", j.graph.Edges())
	return nil
}

func (t *Transformer) orderDecls(_ context.Context, j *job) error {
	order, err := j.graph.Order()
	if err != nil {
		return err
	}
	j.order = order
	j.report.Order = order
	for _, d := range order {
		if deps := j.graph.DependsOn(d.QualifiedName); len(deps) > 0 {
			if j.report.Dependencies == nil {
				j.report.Dependencies = make(map[string][]string)
			}
			j.report.Dependencies[d.QualifiedName] = deps
		}
	}
	return nil
}

func (j *job) source(path string) (*source, error) {
	if s, ok := j.sources[path]; ok {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &arborerrors.GenerationError{Path: path, Underlying: err}
	}
	s := newSource(string(data))
	j.sources[path] = s
	return s, nil
}

// generate renders the header text and collects the includes it carries.
func (t *Transformer) generate(ctx context.Context, j *job) error {
	texts := make(map[string]string, len(j.order))
	for _, d := range j.order {
		src, err := j.source(d.Path)
		if err != nil {
			return err
		}
		text, err := declText(d, src)
		if err != nil {
			return &arborerrors.GenerationError{Path: d.Path, Underlying: err}
		}
		texts[d.key()] = text
	}

	var system, local []string
	for _, f := range j.pkg.Files {
		doc, err := t.builder.Document(ctx, f, j.opts.Build.Config)
		if err != nil {
			return &arborerrors.GenerationError{Path: f, Underlying: err}
		}
		for _, inc := range includesOf(doc) {
			switch {
			case inc.system:
				system = append(system, inc.name)
			case filepath.Dir(f) == j.pkg.Dir && !j.isPackageHeader(f, inc):
				local = append(local, inc.name)
			}
		}
	}

	j.report.HeaderText = generateHeader(headerInput{
		pkg:        j.pkg,
		convention: j.opts.Convention.Name(),
		header:     filepath.Base(j.header),
		system:     sortedUnique(system),
		local:      sortedUnique(local),
		decls:      j.order,
		texts:      texts,
	})
	j.outputs = append(j.outputs, output{path: j.header, content: j.report.HeaderText})
	return nil
}

// isPackageHeader reports whether a quoted include of file names a header of
// the package or the generated header.
func (j *job) isPackageHeader(file string, inc include) bool {
	target := filepath.Clean(filepath.Join(filepath.Dir(file), filepath.FromSlash(inc.name)))
	if target == j.header {
		return true
	}
	return headerExts[filepath.Ext(target)] && slices.Contains(j.pkg.Files, target)
}

// rewrite points every package translation unit at the generated header and
// commits all outputs unless this is a dry run.
func (t *Transformer) rewrite(ctx context.Context, j *job) error {
	for _, f := range j.pkg.Files {
		if headerExts[filepath.Ext(f)] {
			continue
		}
		doc, err := t.builder.Document(ctx, f, j.opts.Build.Config)
		if err != nil {
			return &arborerrors.GenerationError{Path: f, Underlying: err}
		}
		src, err := j.source(f)
		if err != nil {
			return err
		}
		rw := rewriteIncludes(f, src.text, includesOf(doc), func(inc include) bool {
			return j.isPackageHeader(f, inc)
		}, relInclude(f, j.header))
		j.report.Rewrites = append(j.report.Rewrites, rw)
		if rw.Changed {
			j.outputs = append(j.outputs, output{path: f, content: rw.content})
		}
	}
	if j.opts.DryRun {
		return nil
	}
	return commit(j.outputs)
}

func countChanged(rws []Rewrite) int {
	n := 0
	for _, rw := range rws {
		if rw.Changed {
			n++
		}
	}
	return n
}

// Changed returns the paths the job wrote or would write, sorted.
func (r *Report) Changed() []string {
	var out []string
	if r.Header != "" && r.HeaderText != "" {
		out = append(out, r.Header)
	}
	for _, rw := range r.Rewrites {
		if rw.Changed {
			out = append(out, rw.Path)
		}
	}
	slices.Sort(out)
	return out
}
