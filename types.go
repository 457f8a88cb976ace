package arbor

import (
	"github.com/jward/arbor/internal/ast"
	"github.com/jward/arbor/internal/builder"
	"github.com/jward/arbor/internal/cache"
	"github.com/jward/arbor/internal/index"
	"github.com/jward/arbor/internal/transform"
)

// Public aliases for the internal types that appear in the Engine API. They
// are identical to the internal types, so no conversion is needed.

type Document = ast.Document
type Node = ast.Node
type Diagnostic = ast.Diagnostic
type PrintOptions = ast.PrintOptions

type Symbol = index.Symbol
type Occurrence = index.Occurrence
type Filter = index.Filter
type RefOptions = index.RefOptions
type IndexStats = index.Stats

type BuildReport = builder.Report
type BuildOutcome = builder.Outcome
type BuildProgress = builder.Progress

type CacheScope = cache.Scope
type CacheStats = cache.Stats

type TransformReport = transform.Report

// Cache scopes for Engine.CacheClear.
var (
	CacheAll        = cache.ScopeAll
	CachePath       = cache.ScopePath
	CacheSuperseded = cache.ScopeSuperseded
)
