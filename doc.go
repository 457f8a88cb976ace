// Package arbor parses C, C++, and Go sources into a language-neutral syntax
// tree, caches the trees by content, and maintains a persistent cross-file
// symbol index on top of them.
//
// # Pipeline
//
// A build runs in three stages:
//
//  1. Parse: each file is parsed with tree-sitter into a [Document]. The
//     Document is cached under its content hash and parser configuration, so
//     an unchanged file is never parsed twice.
//
//  2. Extract: definitions and name occurrences are pulled from the Document
//     with the scope they appear in.
//
//  3. Merge: a single writer replaces everything the index holds for the file
//     in one transaction. Queries see either the old or the new contents of a
//     file, never a mix.
//
// Parsing runs on a bounded worker pool. A file that fails to parse or times
// out is reported and marked stale without stopping the rest of the build.
//
// # Usage
//
//	e, err := arbor.Open("path/to/project")
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	report, err := e.BuildDirectory(ctx, ".")
//	syms, err := e.Query(ctx, arbor.Filter{Name: "geo::area", Exact: true})
//	refs, err := e.References(ctx, "area", "src/shape.cpp", 2, arbor.RefOptions{})
//	items, err := e.Complete(ctx, "src/main.cpp", 5, 12, arbor.CompleteOptions{})
//
// # Transform
//
// [Engine.Transform] consolidates the namespace-scope declarations of a C/C++
// package into one generated header, ordered so each declaration follows the
// ones it depends on, and rewrites the package sources to include it.
// Conventions decide the header name: "upp", "flat", or a Risor script.
//
// # Storage
//
// The index and the Document cache share one SQLite database under the
// storage root (".arbor" in the project by default). The Engine holds an
// advisory lock on the storage root while it is open.
package arbor
