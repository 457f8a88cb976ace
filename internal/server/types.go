package server

import (
	"encoding/json"

	"github.com/jward/arbor"
)

// Methods understood by the server.
const (
	MethodBuild      = "build"
	MethodQuery      = "query"
	MethodComplete   = "complete"
	MethodDefinition = "definition"
	MethodReferences = "references"
	MethodAST        = "ast"
	MethodInfo       = "info"
	MethodCacheStats = "cache_stats"
	MethodShutdown   = "shutdown"
)

// Request is one input line. ID is echoed back verbatim and may be any JSON
// value.
type Request struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is one output line. Exactly one of Result and Error is set.
type Response struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody carries the error classification and message.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// BuildParams builds the listed paths, or the whole project when empty.
type BuildParams struct {
	Paths   []string `json:"paths,omitempty"`
	Force   bool     `json:"force,omitempty"`
	Threads int      `json:"threads,omitempty"`
}

// BuildResult summarizes a build.
type BuildResult struct {
	Files      []*arbor.BuildOutcome `json:"files"`
	Counts     map[string]int        `json:"counts"`
	Failed     []string              `json:"failed"`
	DurationMS int64                 `json:"duration_ms"`
}

// QueryParams mirror arbor.Filter.
type QueryParams struct {
	Name   string `json:"name,omitempty"`
	File   string `json:"file,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Exact  bool   `json:"exact,omitempty"`
	Prefix bool   `json:"prefix,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// CompleteParams locate the cursor with 1-based line and column.
type CompleteParams struct {
	File  string `json:"file"`
	Line  int    `json:"line"`
	Col   int    `json:"col"`
	Limit int    `json:"limit,omitempty"`
	Fuzzy bool   `json:"fuzzy,omitempty"`
}

// DefinitionParams locate the cursor with 1-based line and column.
type DefinitionParams struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Col  int    `json:"col"`
}

// InfoParams select a directory; empty means the project root.
type InfoParams struct {
	Dir string `json:"dir,omitempty"`
}

// ReferencesParams name the target by its definition site. An empty File
// looks Name up as a qualified name.
type ReferencesParams struct {
	Name               string `json:"name"`
	File               string `json:"file,omitempty"`
	Line               int    `json:"line,omitempty"`
	IncludeDeclaration bool   `json:"include_declaration,omitempty"`
}

// ASTParams select the file and the printer options.
type ASTParams struct {
	File          string   `json:"file"`
	ShowTypes     bool     `json:"show_types,omitempty"`
	ShowLocations bool     `json:"show_locations,omitempty"`
	ShowValues    bool     `json:"show_values,omitempty"`
	ShowModifiers bool     `json:"show_modifiers,omitempty"`
	MaxDepth      int      `json:"max_depth,omitempty"`
	Kinds         []string `json:"kinds,omitempty"`
}

// ASTResult holds the rendered tree.
type ASTResult struct {
	Text string `json:"text"`
}

// StatsResult reports cache and index occupancy.
type StatsResult struct {
	Cache arbor.CacheStats `json:"cache"`
	Index arbor.IndexStats `json:"index"`
}
