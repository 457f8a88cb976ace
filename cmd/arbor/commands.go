package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/arbor"
	"github.com/jward/arbor/internal/ast"
	"github.com/jward/arbor/internal/server"
)

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// parsePositive parses a 1-based line or column argument.
func parsePositive(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", name, value)
	}
	if n < 1 {
		return 0, fmt.Errorf("invalid %s %q: must be 1 or greater", name, value)
	}
	return n, nil
}

// --- build ---

var flagForce bool

var buildCmd = &cobra.Command{
	Use:   "build [paths...]",
	Short: "Parse and index files",
	Long:  "Parses the given files, or every supported source under the project root, and merges their symbols into the index. Unchanged files are skipped.",
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&flagForce, "force", false, "re-parse and re-index every file regardless of content hashes")
}

func runBuild(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return outputError("build", err)
	}
	defer e.Close()

	ctx, cancel := signalContext()
	defer cancel()

	var opts []arbor.BuildOption
	if flagForce {
		opts = append(opts, arbor.WithForce())
	}
	report, err := buildPaths(ctx, e, args, opts...)
	if err != nil {
		return outputError("build", err)
	}
	printBuildSummary(report)
	return outputResult(CLIResult{Command: "build", Results: buildOutcomes(report)})
}

func buildPaths(ctx context.Context, e *arbor.Engine, args []string, opts ...arbor.BuildOption) (*arbor.BuildReport, error) {
	if len(args) == 0 {
		return e.BuildDirectory(ctx, e.Root(), opts...)
	}
	paths := make([]string, len(args))
	for i, a := range args {
		p, err := resolveFilePath(a)
		if err != nil {
			return nil, err
		}
		paths[i] = p
	}
	return e.Build(ctx, paths, opts...)
}

func printBuildSummary(r *arbor.BuildReport) {
	counts := r.Counts()
	fmt.Fprintf(os.Stderr, "Built %d files in %s (", len(r.Files), r.Duration.Round(time.Millisecond))
	first := true
	for _, s := range buildStatuses {
		if counts[s] == 0 {
			continue
		}
		if !first {
			fmt.Fprint(os.Stderr, ", ")
		}
		fmt.Fprintf(os.Stderr, "%s: %d", s, counts[s])
		first = false
	}
	fmt.Fprintln(os.Stderr, ")")
}

// --- complete ---

var (
	flagCompleteLimit int
	flagFuzzy         bool
)

var completeCmd = &cobra.Command{
	Use:   "complete <file> <line> <col>",
	Short: "List completions at a cursor position",
	Long:  "Lists the names visible at a 1-based line and column that start with the identifier being typed there. Local names come first.",
	Args:  cobra.ExactArgs(3),
	RunE:  runComplete,
}

func init() {
	completeCmd.Flags().IntVar(&flagCompleteLimit, "limit", 0, "maximum number of items (0: no limit)")
	completeCmd.Flags().BoolVar(&flagFuzzy, "fuzzy", false, "offer similarly named symbols when nothing matches the prefix")
}

func runComplete(cmd *cobra.Command, args []string) error {
	file, err := resolveFilePath(args[0])
	if err != nil {
		return outputError("complete", err)
	}
	line, err := parsePositive(args[1], "line")
	if err != nil {
		return outputError("complete", err)
	}
	col, err := parsePositive(args[2], "col")
	if err != nil {
		return outputError("complete", err)
	}

	e, err := openEngine()
	if err != nil {
		return outputError("complete", err)
	}
	defer e.Close()

	c, err := e.Complete(cmd.Context(), file, line, col, arbor.CompleteOptions{Limit: flagCompleteLimit, Fuzzy: flagFuzzy})
	if err != nil {
		return outputError("complete", err)
	}
	return outputResult(CLIResult{Command: "complete", Results: c})
}

// --- definition ---

var definitionCmd = &cobra.Command{
	Use:   "definition <file> <line> <col>",
	Short: "Find where the identifier at a cursor position is defined",
	Args:  cobra.ExactArgs(3),
	RunE:  runDefinition,
}

func runDefinition(cmd *cobra.Command, args []string) error {
	file, err := resolveFilePath(args[0])
	if err != nil {
		return outputError("definition", err)
	}
	line, err := parsePositive(args[1], "line")
	if err != nil {
		return outputError("definition", err)
	}
	col, err := parsePositive(args[2], "col")
	if err != nil {
		return outputError("definition", err)
	}

	e, err := openEngine()
	if err != nil {
		return outputError("definition", err)
	}
	defer e.Close()

	d, err := e.Definition(cmd.Context(), file, line, col)
	if err != nil {
		return outputError("definition", err)
	}
	return outputResult(CLIResult{Command: "definition", Results: d})
}

// --- info ---

var infoCmd = &cobra.Command{
	Use:   "info [dir]",
	Short: "Summarize the translation units indexed under a directory",
	Long:  "Reports symbol and occurrence counts, staleness, and cache state for every indexed file under dir (default: the project root).",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return outputError("info", err)
	}
	defer e.Close()

	dir := e.Root()
	if len(args) == 1 {
		if dir, err = resolveFilePath(args[0]); err != nil {
			return outputError("info", err)
		}
	}
	info, err := e.Info(cmd.Context(), dir)
	if err != nil {
		return outputError("info", err)
	}
	return outputResult(CLIResult{Command: "info", Results: info})
}

// --- ast ---

var (
	flagShowTypes     bool
	flagShowLocations bool
	flagShowValues    bool
	flagShowModifiers bool
	flagMaxDepth      int
	flagKinds         []string
)

var astCmd = &cobra.Command{
	Use:   "ast <file>",
	Short: "Print the normalized syntax tree of a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runAST,
}

func init() {
	f := astCmd.Flags()
	f.BoolVar(&flagShowTypes, "types", false, "show type names")
	f.BoolVar(&flagShowLocations, "locations", false, "show source ranges")
	f.BoolVar(&flagShowValues, "values", false, "show initializer values")
	f.BoolVar(&flagShowModifiers, "modifiers", false, "show modifiers")
	f.IntVar(&flagMaxDepth, "depth", 0, "maximum depth below the root (0: unlimited)")
	f.StringSliceVar(&flagKinds, "kind", nil, "only show nodes of these kinds")
}

func runAST(cmd *cobra.Command, args []string) error {
	file, err := resolveFilePath(args[0])
	if err != nil {
		return outputError("ast", err)
	}
	e, err := openEngine()
	if err != nil {
		return outputError("ast", err)
	}
	defer e.Close()

	opts := arbor.PrintOptions{
		ShowTypes:     flagShowTypes,
		ShowLocations: flagShowLocations,
		ShowValues:    flagShowValues,
		ShowModifiers: flagShowModifiers,
		MaxDepth:      flagMaxDepth,
	}
	for _, k := range flagKinds {
		opts.Kinds = append(opts.Kinds, ast.Kind(k))
	}

	if flagFormat == "json" {
		doc, err := e.Document(cmd.Context(), file)
		if err != nil {
			return outputError("ast", err)
		}
		return outputResult(CLIResult{Command: "ast", Results: doc})
	}
	text, err := e.PrintAST(cmd.Context(), file, opts)
	if err != nil {
		return outputError("ast", err)
	}
	fmt.Fprint(os.Stdout, text)
	return nil
}

// --- transform ---

var (
	flagConvention string
	flagDryRun     bool
)

var transformCmd = &cobra.Command{
	Use:   "transform <package-dir>",
	Short: "Consolidate a package into one generated header",
	Long:  "Orders the package's namespace-scope declarations by dependency, writes them into a generated header named by the convention, and rewrites the package sources to include it.",
	Args:  cobra.ExactArgs(1),
	RunE:  runTransform,
}

func init() {
	transformCmd.Flags().StringVar(&flagConvention, "convention", "", "upp, flat, or the path of a .risor script (default: configured convention)")
	transformCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "report the planned header and rewrites without writing")
}

func runTransform(cmd *cobra.Command, args []string) error {
	dir, err := resolveFilePath(args[0])
	if err != nil {
		return outputError("transform", err)
	}
	e, err := openEngine()
	if err != nil {
		return outputError("transform", err)
	}
	defer e.Close()

	ctx, cancel := signalContext()
	defer cancel()

	conv := flagConvention
	if strings.HasSuffix(conv, ".risor") {
		if conv, err = resolveFilePath(conv); err != nil {
			return outputError("transform", err)
		}
	}
	report, err := e.Transform(ctx, dir, arbor.TransformOptions{Convention: conv, DryRun: flagDryRun})
	if report == nil {
		return outputError("transform", err)
	}
	if err == nil {
		return outputResult(CLIResult{Command: "transform", Results: report})
	}
	// A failed job still reports how far it got.
	errorHandled = true
	if flagFormat == "text" {
		_ = outputResultText(os.Stdout, CLIResult{Command: "transform", Results: report})
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	_ = outputResult(CLIResult{Command: "transform", Results: report, Error: err.Error(), Kind: errorKind(err)})
	return err
}

// --- cache ---

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the parse cache",
}

var (
	flagClearPath       string
	flagClearSuperseded bool
)

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached documents",
	Long:  "Removes every cached document, those of one file (--path), or only entries superseded by a newer version of their file (--superseded). The index is not touched.",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache and index occupancy",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

func init() {
	cacheClearCmd.Flags().StringVar(&flagClearPath, "path", "", "only clear entries for this file")
	cacheClearCmd.Flags().BoolVar(&flagClearSuperseded, "superseded", false, "only clear entries whose file has a newer cached version")
	cacheClearCmd.MarkFlagsMutuallyExclusive("path", "superseded")

	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return outputError("cache clear", err)
	}
	defer e.Close()

	scope := arbor.CacheAll()
	switch {
	case flagClearPath != "":
		p, err := resolveFilePath(flagClearPath)
		if err != nil {
			return outputError("cache clear", err)
		}
		scope = arbor.CachePath(p)
	case flagClearSuperseded:
		scope = arbor.CacheSuperseded()
	}
	n, err := e.CacheClear(cmd.Context(), scope)
	if err != nil {
		return outputError("cache clear", err)
	}
	return outputResult(CLIResult{Command: "cache clear", Results: CLICleared{Removed: n}})
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return outputError("cache stats", err)
	}
	defer e.Close()

	cs, err := e.CacheStats(cmd.Context())
	if err != nil {
		return outputError("cache stats", err)
	}
	is, err := e.IndexStats(cmd.Context())
	if err != nil {
		return outputError("cache stats", err)
	}
	return outputResult(CLIResult{Command: "cache stats", Results: CLIStats{Cache: cs, Index: is}})
}

// --- serve ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer JSON-lines requests on stdin",
	Long:  "Reads one JSON request per line from stdin and writes one JSON response per line to stdout until stdin closes or a shutdown request arrives.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext()
	defer cancel()
	return server.New(e).Serve(ctx, os.Stdin, os.Stdout)
}

// --- watch ---

var watchCmd = &cobra.Command{
	Use:   "watch [dirs...]",
	Short: "Rebuild files as they change",
	Long:  "Builds the project, then watches the given directories (default: the project root) and rebuilds changed files until interrupted. Each rebuild is written as one result.",
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return outputError("watch", err)
	}
	defer e.Close()

	ctx, cancel := signalContext()
	defer cancel()

	report, err := e.BuildDirectory(ctx, e.Root())
	if err != nil {
		return outputError("watch", err)
	}
	printBuildSummary(report)

	dirs := args
	if len(dirs) == 0 {
		dirs = []string{e.Root()}
	}
	for i, d := range dirs {
		if dirs[i], err = resolveFilePath(d); err != nil {
			return outputError("watch", err)
		}
	}
	err = e.Watch(ctx, dirs, func(r *arbor.BuildReport, err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			return
		}
		printBuildSummary(r)
		_ = outputResult(CLIResult{Command: "watch", Results: buildOutcomes(r)})
	})
	if err != nil && ctx.Err() == nil {
		return outputError("watch", err)
	}
	return nil
}
