package main

import (
	"github.com/jward/arbor"
	"github.com/jward/arbor/internal/builder"
	arborerrors "github.com/jward/arbor/internal/errors"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"error_kind,omitempty"`
}

// CLICleared reports how many cache entries a clear removed.
type CLICleared struct {
	Removed int `json:"removed"`
}

// CLIStats combines cache and index occupancy.
type CLIStats struct {
	Cache arbor.CacheStats `json:"cache"`
	Index arbor.IndexStats `json:"index"`
}

// buildStatuses is the order statuses are summarized in.
var buildStatuses = []builder.Status{
	builder.StatusIndexed,
	builder.StatusCached,
	builder.StatusUnchanged,
	builder.StatusFailed,
	builder.StatusTimeout,
	builder.StatusCancelled,
}

// buildOutcomes returns the per-file outcomes ordered by path, never nil.
func buildOutcomes(r *arbor.BuildReport) []*arbor.BuildOutcome {
	out := r.Outcomes()
	if out == nil {
		out = []*arbor.BuildOutcome{}
	}
	return out
}

func errorKind(err error) string {
	return string(arborerrors.KindOf(err))
}
