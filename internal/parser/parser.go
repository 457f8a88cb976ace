// Package parser turns source files into language-neutral ast.Documents.
//
// Each supported language provides a Parser. Parsers never fail on malformed
// input: syntax problems become diagnostics inside a best-effort Document.
package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/jward/arbor/internal/ast"
	arborerrors "github.com/jward/arbor/internal/errors"
)

// Version identifies the AST shape produced by the bundled backends. It is
// folded into every config hash so cached Documents are invalidated when the
// conversion rules change.
const Version = "arbor-ast/1"

// Parser converts the content of one file into a Document.
type Parser interface {
	// Language returns the canonical language name (e.g. "cpp", "go").
	Language() string
	// Extensions returns the file extensions this parser claims.
	Extensions() []string
	// Parse builds a Document. The only error it returns is a ParseError
	// wrapping ErrParseTimeout when ctx expires mid-parse.
	Parse(ctx context.Context, path string, content []byte, cfg Config) (*ast.Document, error)
}

// Config is the per-build parser configuration.
type Config struct {
	// Language overrides extension-based detection when non-empty.
	Language     string   `json:"language,omitempty"`
	CompileFlags []string `json:"compile_flags,omitempty"`
}

// Hash returns the configuration hash recorded on Documents and cache keys.
// Flag order is significant, matching compiler semantics.
func (c Config) Hash() string {
	d := xxhash.New()
	_, _ = d.WriteString(Version)
	_, _ = d.WriteString("\x00lang:")
	_, _ = d.WriteString(c.Language)
	for _, f := range c.CompileFlags {
		_, _ = d.WriteString("\x00flag:")
		_, _ = d.WriteString(f)
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

// WithLanguage returns a copy of c with Language set.
func (c Config) WithLanguage(lang string) Config {
	c.Language = lang
	c.CompileFlags = append([]string(nil), c.CompileFlags...)
	return c
}

// ContentHash returns the content hash used for cache keys and incremental
// builds.
func ContentHash(content []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(content))
}

// Registry holds the registered parsers.
type Registry struct {
	parsers   map[string]Parser // language name -> parser
	extToLang map[string]string // extension -> language name
	aliases   map[string]string // alias -> language name
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		parsers:   make(map[string]Parser),
		extToLang: make(map[string]string),
		aliases:   make(map[string]string),
	}
}

// DefaultRegistry returns a registry with the C/C++ and Go backends.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewCppParser())
	r.Register(NewGoParser())
	r.Alias("c", "cpp")
	r.Alias("c++", "cpp")
	r.Alias("golang", "go")
	return r
}

// Register adds p, claiming its extensions.
func (r *Registry) Register(p Parser) {
	lang := p.Language()
	r.parsers[lang] = p
	for _, ext := range p.Extensions() {
		r.extToLang[strings.ToLower(ext)] = lang
	}
}

// Alias makes name resolve to the parser registered for lang.
func (r *Registry) Alias(name, lang string) {
	r.aliases[strings.ToLower(name)] = lang
}

// ForFile returns the parser registered for path's extension.
func (r *Registry) ForFile(path string) (Parser, bool) {
	lang, ok := r.extToLang[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, false
	}
	p, ok := r.parsers[lang]
	return p, ok
}

// ForLanguage returns the parser registered for lang or one of its aliases.
func (r *Registry) ForLanguage(lang string) (Parser, bool) {
	lang = strings.ToLower(lang)
	if p, ok := r.parsers[lang]; ok {
		return p, true
	}
	if target, ok := r.aliases[lang]; ok {
		p, ok := r.parsers[target]
		return p, ok
	}
	return nil, false
}

// Resolve picks the parser for path. A non-empty override wins over the
// extension. Unknown languages yield a ValidationError wrapping
// ErrUnknownLanguage.
func (r *Registry) Resolve(path, override string) (Parser, error) {
	if override != "" {
		p, ok := r.ForLanguage(override)
		if !ok {
			return nil, arborerrors.NewValidationError("language", override,
				fmt.Errorf("%w (supported: %s)", arborerrors.ErrUnknownLanguage, strings.Join(r.Languages(), ", ")))
		}
		return p, nil
	}
	p, ok := r.ForFile(path)
	if !ok {
		return nil, arborerrors.NewValidationError("extension", filepath.Ext(path),
			fmt.Errorf("%w (supported: %s)", arborerrors.ErrUnknownLanguage, strings.Join(r.Extensions(), " ")))
	}
	return p, nil
}

// Supports reports whether some parser claims path's extension.
func (r *Registry) Supports(path string) bool {
	_, ok := r.ForFile(path)
	return ok
}

// Languages returns the registered language names, sorted.
func (r *Registry) Languages() []string {
	langs := make([]string, 0, len(r.parsers))
	for l := range r.parsers {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// Extensions returns every claimed extension, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
