package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/jward/arbor"
)

// formatRecordsText formats symbols and occurrences as aligned columns.
func formatRecordsText(w io.Writer, recs []arbor.Record) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCATION\tKIND\tNAME")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s:%d:%d\t%s\t%s\n", r.Path, r.Line, r.Column, r.Kind, r.QualifiedName)
	}
	tw.Flush()
}

// formatOutcomesText formats build outcomes as aligned columns.
func formatOutcomesText(w io.Writer, outcomes []*arbor.BuildOutcome) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tSYMBOLS\tPATH\tERROR")
	for _, o := range outcomes {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", o.Status, o.Symbols, o.Path, o.Error)
	}
	tw.Flush()
}

// formatCompletionText lists completion items, locals marked with '*'.
func formatCompletionText(w io.Writer, c *arbor.Completion) {
	if c.Fuzzy {
		fmt.Fprintf(w, "No names start with %q; similar names:\n", c.Prefix)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, it := range c.Items {
		mark := " "
		if it.Local {
			mark = "*"
		}
		name := it.QualifiedName
		if name == "" {
			name = it.Name
		}
		fmt.Fprintf(tw, "%s %s\t%s\t%s\n", mark, name, it.Kind, it.Signature)
	}
	tw.Flush()
}

// formatDefinitionText lists the definition sites of the identifier.
func formatDefinitionText(w io.Writer, d *arbor.Definition) {
	if d.Name == "" {
		fmt.Fprintln(w, "No identifier at position")
		return
	}
	if len(d.Locations) == 0 {
		fmt.Fprintf(w, "No definition found for %s\n", d.Name)
		return
	}
	if d.Local {
		fmt.Fprintf(w, "%s (local)\n", d.Name)
	} else {
		fmt.Fprintf(w, "%s (%s)\n", d.QualifiedName, d.Confidence)
	}
	formatRecordsText(w, d.Locations)
}

// formatInfoText formats a directory summary as aligned columns.
func formatInfoText(w io.Writer, p *arbor.PackageInfo) {
	fmt.Fprintf(w, "Package: %s (%s)\n", p.Name, p.Dir)
	fmt.Fprintf(w, "Units: %d  symbols: %d  occurrences: %d  stale: %d  cached: %d\n",
		len(p.Units), p.Symbols, p.Occurrences, p.Stale, p.Cached)
	if len(p.Units) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tLANG\tSYMBOLS\tOCCURRENCES\tSTATE")
	for _, u := range p.Units {
		var state []string
		if u.Stale {
			state = append(state, "stale")
		}
		if u.Cached {
			state = append(state, "cached")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", u.Path, u.Language, u.Symbols, u.Occurrences, strings.Join(state, ","))
	}
	tw.Flush()
}

// formatTransformText summarizes a transform job.
func formatTransformText(w io.Writer, r *arbor.TransformReport) {
	fmt.Fprintf(w, "Package: %s\n", r.Package.Name)
	fmt.Fprintf(w, "Convention: %s\n", r.Convention)
	fmt.Fprintf(w, "State: %s (%s)\n", r.State, joinStates(r))
	if r.Header != "" {
		fmt.Fprintf(w, "Header: %s\n", r.Header)
	}
	if len(r.Order) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Declarations:")
		for i, d := range r.Order {
			fmt.Fprintf(w, "  %3d  %-9s %s", i+1, d.Kind, d.QualifiedName)
			if deps := r.Dependencies[d.QualifiedName]; len(deps) > 0 {
				fmt.Fprintf(w, "  (after %s)", strings.Join(deps, ", "))
			}
			fmt.Fprintln(w)
		}
	}
	if len(r.Excluded) > 0 {
		fmt.Fprintf(w, "Excluded: %s\n", strings.Join(r.Excluded, ", "))
	}
	var changed []string
	for _, rw := range r.Rewrites {
		if rw.Changed {
			changed = append(changed, rw.Path)
		}
	}
	if len(changed) > 0 {
		fmt.Fprintln(w)
		verb := "Rewrote"
		if r.DryRun {
			verb = "Would rewrite"
		}
		fmt.Fprintf(w, "%s:\n", verb)
		for _, p := range changed {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
}

func joinStates(r *arbor.TransformReport) string {
	parts := make([]string, len(r.Trace))
	for i, s := range r.Trace {
		parts[i] = string(s)
	}
	return strings.Join(parts, " -> ")
}

// formatStatsText formats cache and index occupancy.
func formatStatsText(w io.Writer, s CLIStats) {
	fmt.Fprintln(w, "Cache")
	fmt.Fprintf(w, "  entries: %d\n", s.Cache.EntryCount)
	fmt.Fprintf(w, "  files:   %d\n", s.Cache.Paths)
	fmt.Fprintf(w, "  bytes:   %d\n", s.Cache.TotalBytes)
	fmt.Fprintln(w, "Index")
	fmt.Fprintf(w, "  files:       %d\n", s.Index.Files)
	fmt.Fprintf(w, "  symbols:     %d\n", s.Index.Symbols)
	fmt.Fprintf(w, "  occurrences: %d\n", s.Index.Occurrences)
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []arbor.Record:
		formatRecordsText(w, v)
	case []*arbor.BuildOutcome:
		formatOutcomesText(w, v)
	case *arbor.Completion:
		formatCompletionText(w, v)
	case *arbor.Definition:
		formatDefinitionText(w, v)
	case *arbor.PackageInfo:
		formatInfoText(w, v)
	case *arbor.TransformReport:
		formatTransformText(w, v)
	case CLIStats:
		formatStatsText(w, v)
	case CLICleared:
		fmt.Fprintf(w, "Removed %d cache entries\n", v.Removed)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
