// Package config loads project settings from .arbor.toml, layered over
// defaults and then command-line overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"

	arborerrors "github.com/jward/arbor/internal/errors"
	"github.com/jward/arbor/internal/parser"
)

// FileName is the project configuration file looked up in the project root.
const FileName = ".arbor.toml"

// DefaultStorage is the storage root, relative to the project root.
const DefaultStorage = ".arbor"

type Config struct {
	// Storage is the directory holding the index and cache database.
	Storage   string    `toml:"storage"`
	Build     Build     `toml:"build"`
	Cache     Cache     `toml:"cache"`
	Files     Files     `toml:"files"`
	Transform Transform `toml:"transform"`
}

type Build struct {
	Threads      int      `toml:"threads"`
	TimeoutMS    int      `toml:"timeout_ms"`
	CompileFlags []string `toml:"compile_flags"`
	Language     string   `toml:"language"`
}

type Cache struct {
	MaxEntries    int `toml:"max_entries"`
	MemoryEntries int `toml:"memory_entries"`
}

// Files selects the sources a directory build discovers. Patterns are
// doublestar globs matched against slash-separated paths relative to the
// project root.
type Files struct {
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
}

type Transform struct {
	Convention string `toml:"convention"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: DefaultStorage,
		Cache: Cache{
			MaxEntries:    10000,
			MemoryEntries: 256,
		},
		Files: Files{
			Exclude: []string{"**/.git/**", "**/node_modules/**", "**/vendor/**", "**/build/**"},
		},
		Transform: Transform{Convention: "upp"},
	}
}

// Load reads FileName from projectDir over the defaults. A missing file is
// not an error. The storage root is resolved against projectDir.
func Load(projectDir string) (Config, error) {
	cfg := Default()
	path := filepath.Join(projectDir, FileName)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, arborerrors.NewValidationError("config", path, err)
		}
	}
	if !filepath.IsAbs(cfg.Storage) {
		cfg.Storage = filepath.Join(projectDir, cfg.Storage)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects negative limits and malformed globs.
func (c Config) Validate() error {
	switch {
	case c.Storage == "":
		return arborerrors.Validationf("storage", "", "storage root is required")
	case c.Build.Threads < 0:
		return arborerrors.Validationf("build.threads", fmt.Sprint(c.Build.Threads), "must not be negative")
	case c.Build.TimeoutMS < 0:
		return arborerrors.Validationf("build.timeout_ms", fmt.Sprint(c.Build.TimeoutMS), "must not be negative")
	case c.Cache.MaxEntries < 0:
		return arborerrors.Validationf("cache.max_entries", fmt.Sprint(c.Cache.MaxEntries), "must not be negative")
	case c.Cache.MemoryEntries < 0:
		return arborerrors.Validationf("cache.memory_entries", fmt.Sprint(c.Cache.MemoryEntries), "must not be negative")
	}
	for _, p := range append(append([]string{}, c.Files.Include...), c.Files.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return arborerrors.Validationf("files", p, "malformed glob")
		}
	}
	return nil
}

// Parser returns the parser configuration of a build.
func (c Config) Parser() parser.Config {
	return parser.Config{Language: c.Build.Language, CompileFlags: c.Build.CompileFlags}
}

// Timeout is the per-file parse timeout, zero when unlimited.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Build.TimeoutMS) * time.Millisecond
}

// Match reports whether rel, a path relative to the project root, is selected.
// An empty include list selects everything not excluded.
func (f Files) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range f.Exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, p := range f.Include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// ExcludesDir reports whether every file below the directory rel would be
// excluded, so a walk can skip it.
func (f Files) ExcludesDir(rel string) bool {
	rel = strings.TrimSuffix(filepath.ToSlash(rel), "/")
	if rel == "." || rel == "" {
		return false
	}
	for _, p := range f.Exclude {
		if ok, _ := doublestar.Match(p, rel+"/x"); ok && strings.HasSuffix(p, "/**") {
			return true
		}
	}
	return false
}
