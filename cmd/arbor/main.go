package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/arbor"
	"github.com/jward/arbor/internal/config"
)

var (
	flagRoot     string
	flagFormat   string
	flagLang     string
	flagFlags    []string
	flagThreads  int
	flagLogLevel string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "arbor",
	Short:         "Translation unit analysis for C, C++ and Go",
	Long:          "Arbor parses source files into normalized syntax trees, caches them, indexes their symbols, and answers completion, reference and AST queries.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		return setupLogging(flagLogLevel)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagRoot, "root", "", "project root (default: enclosing git work tree, else the current directory)")
	pf.StringVar(&flagFormat, "format", "json", "output format: json|text")
	pf.StringVar(&flagLang, "lang", "", "parse every file as this language instead of detecting it from the extension")
	pf.StringArrayVar(&flagFlags, "flag", nil, "compile flag passed to the parser (repeatable)")
	pf.IntVar(&flagThreads, "threads", 0, "parse parallelism (default: configured value, else GOMAXPROCS)")
	pf.StringVar(&flagLogLevel, "log-level", "warn", "log level: debug|info|warn|error")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(definitionCmd)
	rootCmd.AddCommand(astCmd)
	rootCmd.AddCommand(transformCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// setupLogging installs a text handler on stderr as the default logger.
func setupLogging(level string) error {
	lvl, ok := logLevels[strings.ToLower(level)]
	if !ok {
		return fmt.Errorf("invalid log level %q: must be debug, info, warn or error", level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

// openEngine opens the project at --root with the CLI overrides layered over
// the project configuration.
func openEngine() (*arbor.Engine, error) {
	root, err := resolveRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	applyOverrides(&cfg)
	return arbor.Open(root, arbor.WithConfig(cfg), arbor.WithLogger(slog.Default()))
}

func applyOverrides(cfg *config.Config) {
	if flagLang != "" {
		cfg.Build.Language = flagLang
	}
	if len(flagFlags) > 0 {
		cfg.Build.CompileFlags = append(append([]string(nil), cfg.Build.CompileFlags...), flagFlags...)
	}
	if flagThreads > 0 {
		cfg.Build.Threads = flagThreads
	}
}

// resolveRoot returns the absolute project root from --root or the working
// directory.
func resolveRoot() (string, error) {
	if flagRoot != "" {
		abs, err := filepath.Abs(flagRoot)
		if err != nil {
			return "", fmt.Errorf("resolving root %q: %w", flagRoot, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", fmt.Errorf("root not found: %s", abs)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("root is not a directory: %s", abs)
		}
		return abs, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}
	return findRepoRoot(cwd), nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveFilePath converts a file argument to an absolute path relative to
// the current working directory.
func resolveFilePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}
