package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/arbor"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the symbol index",
	Long:  "Run queries against the symbol index. Line and column numbers are 1-based.",
}

func init() {
	queryCmd.AddCommand(symbolsCmd)
	queryCmd.AddCommand(refsCmd)
}

// outputResult writes result to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(os.Stdout, result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
		Kind:    errorKind(err),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

// --- symbols ---

var (
	flagName   string
	flagFile   string
	flagKind   string
	flagExact  bool
	flagPrefix bool
	flagLimit  int
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols [name]",
	Short: "List definitions",
	Long:  "Lists indexed definitions. The name matches anywhere in the qualified name unless --exact or --prefix is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSymbols,
}

func init() {
	f := symbolsCmd.Flags()
	f.StringVar(&flagFile, "file", "", "only definitions in this file")
	f.StringVar(&flagKind, "kind", "", "only definitions of this kind (function, class, variable, namespace, other)")
	f.BoolVar(&flagExact, "exact", false, "match the simple or qualified name exactly")
	f.BoolVar(&flagPrefix, "prefix", false, "match names starting with the argument")
	f.IntVar(&flagLimit, "limit", 0, "maximum number of results (0: no limit)")
	symbolsCmd.MarkFlagsMutuallyExclusive("exact", "prefix")
}

func runSymbols(cmd *cobra.Command, args []string) error {
	filter := arbor.Filter{
		Kind:   flagKind,
		Exact:  flagExact,
		Prefix: flagPrefix,
		Limit:  flagLimit,
	}
	if len(args) > 0 {
		filter.Name = args[0]
	}
	if flagFile != "" {
		p, err := resolveFilePath(flagFile)
		if err != nil {
			return outputError("query symbols", err)
		}
		filter.File = p
	}

	e, err := openEngine()
	if err != nil {
		return outputError("query symbols", err)
	}
	defer e.Close()

	syms, err := e.Query(cmd.Context(), filter)
	if err != nil {
		return outputError("query symbols", err)
	}
	return outputResult(CLIResult{Command: "query symbols", Results: arbor.Records(syms)})
}

// --- refs ---

var flagIncludeDecl bool

var refsCmd = &cobra.Command{
	Use:   "refs <name> [<file> <line>]",
	Short: "List references to a symbol",
	Long:  "Lists every occurrence that resolves to the symbol defined at file:line. Without a location the name is looked up as a qualified name.",
	Args:  cobra.RangeArgs(1, 3),
	RunE:  runRefs,
}

func init() {
	refsCmd.Flags().BoolVar(&flagIncludeDecl, "include-declaration", false, "also list the definition sites")
}

func runRefs(cmd *cobra.Command, args []string) error {
	name := args[0]
	var file string
	var line int
	if len(args) > 1 {
		p, err := resolveFilePath(args[1])
		if err != nil {
			return outputError("query refs", err)
		}
		file = p
	}
	if len(args) > 2 {
		n, err := parsePositive(args[2], "line")
		if err != nil {
			return outputError("query refs", err)
		}
		line = n
	}

	e, err := openEngine()
	if err != nil {
		return outputError("query refs", err)
	}
	defer e.Close()

	occs, err := e.References(cmd.Context(), name, file, line, arbor.RefOptions{IncludeDeclaration: flagIncludeDecl})
	if err != nil {
		return outputError("query refs", err)
	}
	recs := make([]arbor.Record, len(occs))
	for i, o := range occs {
		recs[i] = arbor.OccurrenceRecord(o)
	}
	return outputResult(CLIResult{Command: "query refs", Results: recs})
}
