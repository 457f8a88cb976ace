package arbor

import (
	"context"
	"strings"

	"github.com/jward/arbor/internal/runtime"
	"github.com/jward/arbor/internal/transform"
)

// TransformOptions tune Engine.Transform.
type TransformOptions struct {
	// Convention is "upp", "flat", or the path of a .risor script. Empty
	// uses the configured convention.
	Convention string
	DryRun     bool
}

// Transform consolidates the package at dir into its generated header and
// rewrites the package sources to include it. After a successful run that
// wrote files, the changed files are rebuilt so the index matches the disk.
func (e *Engine) Transform(ctx context.Context, dir string, opts TransformOptions) (*TransformReport, error) {
	name := opts.Convention
	if name == "" {
		name = e.cfg.Transform.Convention
	}
	var rt *runtime.Runtime
	if strings.HasSuffix(name, ".risor") {
		name = e.abs(name)
		rt = runtime.New(e.root, runtime.WithIndex(e.index), runtime.WithLogger(e.log))
	}
	conv, err := transform.ConventionFor(name, rt)
	if err != nil {
		return nil, err
	}

	report, err := e.tr.Run(ctx, e.abs(dir), transform.Options{
		Convention: conv,
		Build:      e.buildOptions(nil),
		DryRun:     opts.DryRun,
	})
	if err != nil || opts.DryRun {
		return report, err
	}
	if changed := report.Changed(); len(changed) > 0 {
		if _, err := e.Build(ctx, changed); err != nil {
			return report, err
		}
	}
	return report, nil
}
