// Package runtime embeds a Risor VM for user-supplied transform conventions.
// Scripts see host functions for tree-sitter queries over source text, symbol
// lookups against the index, and logging, plus any globals the caller adds.
package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/arbor/internal/index"
)

// Runtime evaluates Risor scripts. A Runtime holds no per-script state and may
// be shared.
type Runtime struct {
	index      *index.Index
	scriptsDir string
	fsys       fs.FS
	log        *slog.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithFS loads scripts and their imports from fsys instead of scriptsDir.
func WithFS(fsys fs.FS) Option {
	return func(r *Runtime) { r.fsys = fsys }
}

// WithIndex exposes symbol lookups to scripts.
func WithIndex(ix *index.Index) Option {
	return func(r *Runtime) { r.index = ix }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) { r.log = l }
}

// New returns a Runtime resolving relative script paths and imports against
// scriptsDir.
func New(scriptsDir string, opts ...Option) *Runtime {
	r := &Runtime{scriptsDir: scriptsDir, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunScript loads and evaluates a script, returning the value of its last
// expression.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) (object.Object, error) {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return nil, err
	}
	return r.eval(ctx, src, scriptPath, extraGlobals)
}

// RunSource evaluates Risor source directly.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) (object.Object, error) {
	return r.eval(ctx, source, "<inline>", extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extraGlobals map[string]any) (object.Object, error) {
	globals := r.buildGlobals(extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	result, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return nil, fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return result, nil
}

// buildImporter returns nil when neither an fs.FS nor a scripts directory is
// configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file from the configured fs.FS, or from disk
// relative to scriptsDir.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.scriptsDir, path)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

func (r *Runtime) buildGlobals(extra map[string]any) map[string]any {
	globals := map[string]any{
		"query":     makeQueryFn(),
		"read_file": makeReadFileFn(),
		"log":       mustProxy(&logObject{log: r.log}),
	}
	if r.index != nil {
		globals["symbols"] = makeSymbolsFn(r.index)
		globals["references"] = makeReferencesFn(r.index)
	}
	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
