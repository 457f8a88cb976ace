package server

import (
	"context"
	"encoding/json"

	"github.com/jward/arbor"
	"github.com/jward/arbor/internal/ast"
	arborerrors "github.com/jward/arbor/internal/errors"
)

type handlerFunc func(ctx context.Context, e Engine, params json.RawMessage) (any, error)

var handlers = map[string]handlerFunc{
	MethodBuild:      handleBuild,
	MethodQuery:      handleQuery,
	MethodComplete:   handleComplete,
	MethodDefinition: handleDefinition,
	MethodReferences: handleReferences,
	MethodAST:        handleAST,
	MethodInfo:       handleInfo,
	MethodCacheStats: handleCacheStats,
}

func handleBuild(ctx context.Context, e Engine, params json.RawMessage) (any, error) {
	var p BuildParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	var opts []arbor.BuildOption
	if p.Force {
		opts = append(opts, arbor.WithForce())
	}
	if p.Threads > 0 {
		opts = append(opts, arbor.WithThreads(p.Threads))
	}

	var report *arbor.BuildReport
	var err error
	if len(p.Paths) == 0 {
		report, err = e.BuildDirectory(ctx, e.Root(), opts...)
	} else {
		report, err = e.Build(ctx, p.Paths, opts...)
	}
	if err != nil {
		return nil, err
	}
	return summarize(report), nil
}

func summarize(r *arbor.BuildReport) BuildResult {
	out := BuildResult{
		Files:      r.Outcomes(),
		Counts:     make(map[string]int),
		Failed:     r.Failed(),
		DurationMS: r.Duration.Milliseconds(),
	}
	for status, n := range r.Counts() {
		out.Counts[string(status)] = n
	}
	if out.Failed == nil {
		out.Failed = []string{}
	}
	return out
}

func handleQuery(ctx context.Context, e Engine, params json.RawMessage) (any, error) {
	var p QueryParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	syms, err := e.Query(ctx, arbor.Filter{
		Name:   p.Name,
		File:   p.File,
		Kind:   p.Kind,
		Exact:  p.Exact,
		Prefix: p.Prefix,
		Limit:  p.Limit,
	})
	if err != nil {
		return nil, err
	}
	return arbor.Records(syms), nil
}

func handleComplete(ctx context.Context, e Engine, params json.RawMessage) (any, error) {
	var p CompleteParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if err := requirePosition(p.File, p.Line, p.Col); err != nil {
		return nil, err
	}
	return e.Complete(ctx, p.File, p.Line, p.Col, arbor.CompleteOptions{Limit: p.Limit, Fuzzy: p.Fuzzy})
}

func handleDefinition(ctx context.Context, e Engine, params json.RawMessage) (any, error) {
	var p DefinitionParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if err := requirePosition(p.File, p.Line, p.Col); err != nil {
		return nil, err
	}
	return e.Definition(ctx, p.File, p.Line, p.Col)
}

func handleReferences(ctx context.Context, e Engine, params json.RawMessage) (any, error) {
	var p ReferencesParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	occs, err := e.References(ctx, p.Name, p.File, p.Line, arbor.RefOptions{IncludeDeclaration: p.IncludeDeclaration})
	if err != nil {
		return nil, err
	}
	out := make([]arbor.Record, len(occs))
	for i, o := range occs {
		out[i] = arbor.OccurrenceRecord(o)
	}
	return out, nil
}

func handleAST(ctx context.Context, e Engine, params json.RawMessage) (any, error) {
	var p ASTParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.File == "" {
		return nil, arborerrors.Validationf("file", "", "file is required")
	}
	opts := arbor.PrintOptions{
		ShowTypes:     p.ShowTypes,
		ShowLocations: p.ShowLocations,
		ShowValues:    p.ShowValues,
		ShowModifiers: p.ShowModifiers,
		MaxDepth:      p.MaxDepth,
	}
	for _, k := range p.Kinds {
		opts.Kinds = append(opts.Kinds, ast.Kind(k))
	}
	text, err := e.PrintAST(ctx, p.File, opts)
	if err != nil {
		return nil, err
	}
	return ASTResult{Text: text}, nil
}

func handleInfo(ctx context.Context, e Engine, params json.RawMessage) (any, error) {
	var p InfoParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.Dir == "" {
		p.Dir = e.Root()
	}
	return e.Info(ctx, p.Dir)
}

func handleCacheStats(ctx context.Context, e Engine, _ json.RawMessage) (any, error) {
	cs, err := e.CacheStats(ctx)
	if err != nil {
		return nil, err
	}
	is, err := e.IndexStats(ctx)
	if err != nil {
		return nil, err
	}
	return StatsResult{Cache: cs, Index: is}, nil
}

func requirePosition(file string, line, col int) error {
	switch {
	case file == "":
		return arborerrors.Validationf("file", "", "file is required")
	case line < 1:
		return arborerrors.Validationf("line", "", "line must be 1 or greater")
	case col < 1:
		return arborerrors.Validationf("col", "", "col must be 1 or greater")
	}
	return nil
}
