// Package builder drives parsing, caching, extraction, and index merges for a
// set of files.
//
// Builds run as a pipeline: a bounded pool of workers reads, parses, and
// extracts files in parallel, and a single committer merges their results into
// the index one file at a time. A failure in one file never aborts the batch;
// only index write failures do.
package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jward/arbor/internal/ast"
	"github.com/jward/arbor/internal/cache"
	"github.com/jward/arbor/internal/extract"
	"github.com/jward/arbor/internal/index"
	"github.com/jward/arbor/internal/parser"
)

// Status is the result of building one file.
type Status string

// StatusCached means a cached Document was reused and merged. StatusUnchanged
// means the index already held this content and configuration, so nothing was
// merged.
const (
	StatusIndexed   Status = "indexed"
	StatusCached    Status = "cached"
	StatusUnchanged Status = "unchanged"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// Outcome records what happened to one file.
type Outcome struct {
	Path        string           `json:"path"`
	Status      Status           `json:"status"`
	Language    string           `json:"language,omitempty"`
	Symbols     int              `json:"symbols"`
	Occurrences int              `json:"occurrences"`
	Diagnostics []ast.Diagnostic `json:"diagnostics,omitempty"`
	Err         error            `json:"-"`
	Error       string           `json:"error,omitempty"`
	Duration    time.Duration    `json:"duration_ns"`
}

// Report is the result of a Build.
type Report struct {
	Files    map[string]*Outcome `json:"files"`
	Duration time.Duration       `json:"duration_ns"`
}

// Outcomes returns every outcome ordered by path.
func (r *Report) Outcomes() []*Outcome {
	out := make([]*Outcome, 0, len(r.Files))
	for _, o := range r.Files {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Counts tallies outcomes by status.
func (r *Report) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, o := range r.Files {
		counts[o.Status]++
	}
	return counts
}

// Failed returns the paths whose build failed or timed out, sorted.
func (r *Report) Failed() []string {
	var out []string
	for _, o := range r.Outcomes() {
		if o.Status == StatusFailed || o.Status == StatusTimeout {
			out = append(out, o.Path)
		}
	}
	return out
}

// Progress is reported once per file as its result is committed.
type Progress struct {
	Done   int
	Total  int
	Path   string
	Status Status
}

// Options tune a single Build.
type Options struct {
	Config parser.Config
	// Threads bounds parallel parsing. Zero means runtime.NumCPU().
	Threads int
	// Force re-parses and re-merges every file regardless of hashes.
	Force bool
	// Timeout bounds the parse of each file. Zero means no limit.
	Timeout time.Duration
	// Progress is called from the committer goroutine.
	Progress func(Progress)
}

func (o Options) threads() int {
	if o.Threads > 0 {
		return o.Threads
	}
	return max(runtime.NumCPU(), 1)
}

// Builder owns no state beyond its collaborators; concurrent Builds are
// serialized only at the index writer.
type Builder struct {
	reg   *parser.Registry
	cache *cache.Cache
	index *index.Index
	log   *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.log = l }
}

// New returns a Builder over the given registry, cache, and index.
func New(reg *parser.Registry, c *cache.Cache, ix *index.Index, opts ...Option) *Builder {
	b := &Builder{reg: reg, cache: c, index: ix, log: slog.Default()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// result is what a worker hands to the committer.
type result struct {
	outcome *Outcome
	record  index.FileRecord
	extract *extract.Result // nil means nothing to merge
	stale   bool
}

// Build processes files and merges their entries into the index. It returns
// the report together with a fatal IndexError, or ctx.Err() when the build was
// cancelled. Per-file failures are only recorded in the report.
func (b *Builder) Build(ctx context.Context, files []string, opts Options) (*Report, error) {
	start := time.Now()
	files = dedupe(files)
	report := &Report{Files: make(map[string]*Outcome, len(files))}
	if len(files) == 0 {
		return report, nil
	}

	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()

	results := make(chan result, opts.threads())
	go func() {
		defer close(results)
		var g errgroup.Group
		g.SetLimit(opts.threads())
		for _, path := range files {
			if dispatchCtx.Err() != nil {
				results <- result{outcome: &Outcome{Path: path, Status: StatusCancelled}}
				continue
			}
			g.Go(func() error {
				// A slot may free up after cancellation; this is still a
				// file boundary.
				if dispatchCtx.Err() != nil {
					results <- result{outcome: &Outcome{Path: path, Status: StatusCancelled}}
					return nil
				}
				results <- b.process(context.WithoutCancel(ctx), path, opts)
				return nil
			})
		}
		_ = g.Wait()
	}()

	// Merges outlive cancellation so every finished parse is committed whole.
	commitCtx := context.WithoutCancel(ctx)
	var fatal error
	done := 0
	for res := range results {
		o := res.outcome
		switch {
		case fatal != nil:
			if res.extract != nil {
				o.Status = StatusCancelled
			}
		case res.extract != nil:
			err := b.index.Merge(commitCtx, res.record, res.extract.Definitions, res.extract.Occurrences)
			if err != nil {
				fatal = err
				stopDispatch()
				o.Status, o.Err = StatusFailed, err
				b.log.Error("index merge failed, aborting build", "path", o.Path, "error", err)
			}
		case res.stale:
			if err := b.index.MarkStale(commitCtx, o.Path); err != nil {
				fatal = err
				stopDispatch()
				b.log.Error("mark stale failed, aborting build", "path", o.Path, "error", err)
			}
		}
		if o.Err != nil {
			o.Error = o.Err.Error()
		}
		report.Files[o.Path] = o
		done++
		if opts.Progress != nil {
			opts.Progress(Progress{Done: done, Total: len(files), Path: o.Path, Status: o.Status})
		}
	}
	report.Duration = time.Since(start)

	counts := report.Counts()
	b.log.Info("build finished",
		"files", len(files),
		"indexed", counts[StatusIndexed]+counts[StatusCached],
		"unchanged", counts[StatusUnchanged],
		"failed", counts[StatusFailed]+counts[StatusTimeout],
		"cancelled", counts[StatusCancelled],
		"duration", report.Duration,
	)

	if fatal != nil {
		return report, fatal
	}
	if err := ctx.Err(); err != nil {
		b.log.Warn("build cancelled", "error", err)
		return report, err
	}
	return report, nil
}

// process runs on a worker: read, hash, cache lookup or parse, extract. ctx
// carries no cancellation; only opts.Timeout can cut a parse short.
func (b *Builder) process(ctx context.Context, path string, opts Options) result {
	start := time.Now()
	o := &Outcome{Path: path}
	res := result{outcome: o}
	defer func() { o.Duration = time.Since(start) }()

	p, err := b.reg.Resolve(path, opts.Config.Language)
	if err != nil {
		o.Status, o.Err = StatusFailed, err
		return res
	}
	cfg := parser.Effective(p, opts.Config)
	o.Language = p.Language()

	content, err := parser.ReadSource(path)
	if err != nil {
		o.Status, o.Err = StatusFailed, err
		o.Diagnostics = []ast.Diagnostic{{
			Severity: ast.SeverityError,
			Kind:     ast.DiagIO,
			Message:  err.Error(),
			Loc:      ast.Location{Path: path, StartLine: 1, StartCol: 1, EndLine: 1, EndCol: 1},
		}}
		res.stale = true
		return res
	}
	key := cache.Key{Path: path, ContentHash: parser.ContentHash(content), ConfigHash: cfg.Hash()}

	if !opts.Force {
		rec, err := b.index.File(ctx, path)
		if err != nil {
			o.Status, o.Err = StatusFailed, err
			return res
		}
		if rec != nil && !rec.Stale && rec.ContentHash == key.ContentHash && rec.ConfigHash == key.ConfigHash {
			o.Status = StatusUnchanged
			o.Language = rec.Language
			return res
		}
	}

	var doc *ast.Document
	status := StatusIndexed
	if !opts.Force {
		if cached, ok := b.cache.Get(ctx, key); ok {
			doc, status = cached, StatusCached
		}
	}
	if doc == nil {
		doc, err = parser.ParseContent(ctx, p, path, content, cfg, opts.Timeout)
		if err != nil {
			o.Status, o.Err = StatusTimeout, err
			if doc != nil {
				o.Diagnostics = doc.Diagnostics
			}
			res.stale = true
			b.log.Warn("parse timed out", "path", path, "timeout", opts.Timeout)
			return res
		}
		if err := b.cache.Put(ctx, key, doc); err != nil {
			b.log.Warn("cache put failed", "path", path, "error", err)
		}
	}

	x := extract.Extract(doc)
	o.Status = status
	o.Language = doc.Language
	o.Diagnostics = doc.Diagnostics
	o.Symbols = len(x.Definitions)
	o.Occurrences = len(x.Occurrences)
	res.extract = &x
	res.record = index.FileRecord{
		Path:        path,
		Language:    doc.Language,
		ContentHash: key.ContentHash,
		ConfigHash:  key.ConfigHash,
		LastIndexed: time.Now(),
	}
	return res
}

// Document returns the current Document for path under cfg, from the cache
// when possible and otherwise by parsing and caching it.
func (b *Builder) Document(ctx context.Context, path string, cfg parser.Config) (*ast.Document, error) {
	p, err := b.reg.Resolve(path, cfg.Language)
	if err != nil {
		return nil, err
	}
	cfg = parser.Effective(p, cfg)
	content, err := parser.ReadSource(path)
	if err != nil {
		return nil, err
	}
	key := cache.Key{Path: path, ContentHash: parser.ContentHash(content), ConfigHash: cfg.Hash()}
	if doc, ok := b.cache.Get(ctx, key); ok {
		return doc, nil
	}
	doc, err := parser.ParseContent(ctx, p, path, content, cfg, 0)
	if err != nil {
		return nil, fmt.Errorf("builder: parse %s: %w", path, err)
	}
	if err := b.cache.Put(ctx, key, doc); err != nil {
		b.log.Warn("cache put failed", "path", path, "error", err)
	}
	return doc, nil
}

// Remove drops every index entry for paths that no longer exist.
func (b *Builder) Remove(ctx context.Context, paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := b.index.Remove(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func dedupe(files []string) []string {
	seen := make(map[string]bool, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		f = filepath.Clean(f)
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}
