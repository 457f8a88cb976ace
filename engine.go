package arbor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jward/arbor/internal/builder"
	"github.com/jward/arbor/internal/cache"
	"github.com/jward/arbor/internal/config"
	"github.com/jward/arbor/internal/index"
	"github.com/jward/arbor/internal/parser"
	"github.com/jward/arbor/internal/store"
	"github.com/jward/arbor/internal/transform"
)

// Engine ties the parser registry, Document cache, symbol index, builder, and
// transform pipeline to one project and its storage root.
type Engine struct {
	root     string
	cfg      config.Config
	cfgSet   bool
	registry *parser.Registry
	lock     *store.RootLock
	index    *index.Index
	cache    *cache.Cache
	builder  *builder.Builder
	tr       *transform.Transformer
	log      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the configuration otherwise loaded from the project's
// .arbor.toml.
func WithConfig(cfg config.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
		e.cfgSet = true
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithRegistry replaces the default parser registry.
func WithRegistry(r *parser.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// Open prepares the storage root of the project at root and takes its
// advisory lock. A second Engine on the same storage root fails with an
// IndexError wrapping ErrLocked until the first is closed.
func Open(root string, opts ...Option) (*Engine, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("arbor: resolve root: %w", err)
	}
	e := &Engine{root: abs, log: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	if !e.cfgSet {
		if e.cfg, err = config.Load(abs); err != nil {
			return nil, err
		}
	} else if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	if e.cfg.Storage == "" {
		e.cfg.Storage = config.DefaultStorage
	}
	if !filepath.IsAbs(e.cfg.Storage) {
		e.cfg.Storage = filepath.Join(abs, e.cfg.Storage)
	}
	if e.registry == nil {
		e.registry = parser.DefaultRegistry()
	}

	if err := os.MkdirAll(e.cfg.Storage, 0o755); err != nil {
		return nil, fmt.Errorf("arbor: create storage root: %w", err)
	}
	if e.lock, err = store.AcquireRootLock(e.cfg.Storage); err != nil {
		return nil, err
	}
	if e.index, err = index.Open(e.cfg.Storage, index.WithLogger(e.log)); err != nil {
		e.lock.Release()
		return nil, err
	}
	e.cache, err = cache.New(e.index.Store(),
		cache.WithMaxEntries(e.cfg.Cache.MaxEntries),
		cache.WithMemoryEntries(e.cfg.Cache.MemoryEntries),
		cache.WithLogger(e.log),
	)
	if err != nil {
		e.index.Close()
		e.lock.Release()
		return nil, err
	}
	e.builder = builder.New(e.registry, e.cache, e.index, builder.WithLogger(e.log))
	e.tr = transform.New(e.builder, e.index, transform.WithLogger(e.log))
	return e, nil
}

// Close releases the database and the storage lock.
func (e *Engine) Close() error {
	err := e.index.Close()
	return errors.Join(err, e.lock.Release())
}

// Root returns the absolute project root.
func (e *Engine) Root() string { return e.root }

// Config returns the effective configuration.
func (e *Engine) Config() config.Config { return e.cfg }

// Index exposes the symbol index for scripting hosts.
func (e *Engine) Index() *index.Index { return e.index }

// BuildOption adjusts a single build.
type BuildOption func(*builder.Options)

// WithForce re-parses and re-merges every file regardless of hashes.
func WithForce() BuildOption {
	return func(o *builder.Options) { o.Force = true }
}

// WithProgress receives one callback per finished file.
func WithProgress(fn func(BuildProgress)) BuildOption {
	return func(o *builder.Options) { o.Progress = fn }
}

// WithThreads overrides the configured parse parallelism.
func WithThreads(n int) BuildOption {
	return func(o *builder.Options) { o.Threads = n }
}

func (e *Engine) buildOptions(opts []BuildOption) builder.Options {
	o := builder.Options{
		Config:  e.cfg.Parser(),
		Threads: e.cfg.Build.Threads,
		Timeout: e.cfg.Timeout(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Build parses and indexes files. Relative paths are taken from the project
// root. Per-file failures are reported in the result; only index failures and
// cancellation return an error.
func (e *Engine) Build(ctx context.Context, files []string, opts ...BuildOption) (*BuildReport, error) {
	abs := make([]string, len(files))
	for i, f := range files {
		abs[i] = e.abs(f)
	}
	return e.builder.Build(ctx, abs, e.buildOptions(opts))
}

// BuildDirectory discovers the supported sources under dir and builds them.
// Inside a git work tree the file list comes from git ls-files so ignored
// files stay out; otherwise the tree is walked. Files previously indexed under
// dir that no longer exist are dropped from the index.
func (e *Engine) BuildDirectory(ctx context.Context, dir string, opts ...BuildOption) (*BuildReport, error) {
	dir = e.abs(dir)
	paths, err := e.gitListFiles(dir)
	if err != nil {
		e.log.Debug("git listing unavailable, walking", "dir", dir, "error", err)
		if paths, err = e.walkListFiles(dir); err != nil {
			return nil, err
		}
	}
	if err := e.prune(ctx, dir, paths); err != nil {
		return nil, err
	}
	return e.Build(ctx, paths, opts...)
}

// Files lists the sources a directory build of dir would select.
func (e *Engine) Files(dir string) ([]string, error) {
	dir = e.abs(dir)
	paths, err := e.gitListFiles(dir)
	if err != nil {
		return e.walkListFiles(dir)
	}
	return paths, nil
}

// selected reports whether a discovered file belongs to the build.
func (e *Engine) selected(path string) bool {
	if !e.registry.Supports(path) || strings.HasPrefix(path, e.cfg.Storage+string(filepath.Separator)) {
		return false
	}
	rel, err := filepath.Rel(e.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = path
	}
	return e.cfg.Files.Match(filepath.ToSlash(rel))
}

// gitListFiles uses git ls-files to discover tracked and untracked (but not
// ignored) files under root.
func (e *Engine) gitListFiles(root string) ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		p := filepath.Join(root, line)
		if e.selected(p) {
			paths = append(paths, p)
		}
	}
	slices.Sort(paths)
	return paths, nil
}

// walkListFiles walks root, skipping hidden directories, the storage root,
// and directories the configuration excludes.
func (e *Engine) walkListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			rel, _ := filepath.Rel(e.root, path)
			if strings.HasPrefix(d.Name(), ".") || path == e.cfg.Storage || e.cfg.Files.ExcludesDir(filepath.ToSlash(rel)) {
				return filepath.SkipDir
			}
			return nil
		}
		if e.selected(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("arbor: walk %s: %w", root, err)
	}
	return paths, nil
}

// prune drops index entries under dir whose files are gone.
func (e *Engine) prune(ctx context.Context, dir string, present []string) error {
	files, err := e.index.Files(ctx)
	if err != nil {
		return err
	}
	keep := make(map[string]bool, len(present))
	for _, p := range present {
		keep[p] = true
	}
	var gone []string
	prefix := dir + string(filepath.Separator)
	for _, f := range files {
		if !strings.HasPrefix(f.Path, prefix) || keep[f.Path] {
			continue
		}
		if _, err := os.Stat(f.Path); errors.Is(err, fs.ErrNotExist) {
			gone = append(gone, f.Path)
		}
	}
	if len(gone) == 0 {
		return nil
	}
	e.log.Info("pruning removed files", "count", len(gone))
	return e.builder.Remove(ctx, gone)
}

// Watch rebuilds files under dirs as they change until ctx is done. onBuild,
// when set, receives every incremental rebuild.
func (e *Engine) Watch(ctx context.Context, dirs []string, onBuild func(*BuildReport, error)) error {
	abs := make([]string, len(dirs))
	for i, d := range dirs {
		abs[i] = e.abs(d)
	}
	return e.builder.Watch(ctx, abs, builder.WatchOptions{
		Build:   e.buildOptions(nil),
		Filter:  e.selected,
		OnBuild: onBuild,
	})
}

// CacheClear removes cached Documents in scope and returns how many went.
func (e *Engine) CacheClear(ctx context.Context, scope CacheScope) (int, error) {
	return e.cache.Clear(ctx, scope)
}

// CacheStats reports cache occupancy.
func (e *Engine) CacheStats(ctx context.Context) (CacheStats, error) {
	return e.cache.Stats(ctx)
}

// IndexStats reports the index size.
func (e *Engine) IndexStats(ctx context.Context) (IndexStats, error) {
	return e.index.Stats(ctx)
}

func (e *Engine) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(e.root, p)
}
