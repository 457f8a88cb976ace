package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jward/arbor/internal/ast"
	arborerrors "github.com/jward/arbor/internal/errors"
)

// ReadSource reads path. Failures are FileErrors, distinct from parse errors.
func ReadSource(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, arborerrors.NewFileError("read", path, err)
	}
	return content, nil
}

// ParseContent parses content with p under an optional per-file timeout.
// On timeout it returns a placeholder Document carrying a timeout diagnostic
// together with a ParseError wrapping ErrParseTimeout.
func ParseContent(ctx context.Context, p Parser, path string, content []byte, cfg Config, timeout time.Duration) (*ast.Document, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	doc, err := p.Parse(ctx, path, content, cfg)
	if err == nil {
		return doc, nil
	}
	if errors.Is(err, arborerrors.ErrParseTimeout) {
		return TimeoutDocument(path, p.Language(), content, cfg, timeout), err
	}
	return nil, err
}

// ParseFile resolves the parser for path, reads the file, and parses it.
func ParseFile(ctx context.Context, reg *Registry, path string, cfg Config, timeout time.Duration) (*ast.Document, error) {
	p, err := reg.Resolve(path, cfg.Language)
	if err != nil {
		return nil, err
	}
	content, err := ReadSource(path)
	if err != nil {
		return nil, err
	}
	return ParseContent(ctx, p, path, content, Effective(p, cfg), timeout)
}

// Effective returns cfg with the parser's language filled in when no
// override was given.
func Effective(p Parser, cfg Config) Config {
	if cfg.Language == "" {
		return cfg.WithLanguage(p.Language())
	}
	return cfg
}

// TimeoutDocument is the Document recorded for a file whose parse exceeded
// its deadline: an empty module with a single timeout diagnostic.
func TimeoutDocument(path, lang string, content []byte, cfg Config, timeout time.Duration) *ast.Document {
	msg := "parse timed out"
	if timeout > 0 {
		msg = fmt.Sprintf("parse timed out after %s", timeout)
	}
	return &ast.Document{
		Path:        path,
		Language:    lang,
		ContentHash: ContentHash(content),
		ConfigHash:  cfg.Hash(),
		Root:        &ast.Node{Kind: ast.KindModule, Name: path, Loc: ast.Location{Path: path, StartLine: 1, StartCol: 1, EndLine: 1, EndCol: 1}},
		Diagnostics: []ast.Diagnostic{{
			Severity: ast.SeverityError,
			Kind:     ast.DiagTimeout,
			Message:  msg,
			Loc:      ast.Location{Path: path, StartLine: 1, StartCol: 1, EndLine: 1, EndCol: 1},
		}},
	}
}
