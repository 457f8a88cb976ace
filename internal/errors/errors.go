// Package errors defines the error taxonomy shared by the parser, cache,
// index, builder, and transform packages.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for reporting and for the request/response service.
type Kind string

const (
	KindParse      Kind = "parse"
	KindCache      Kind = "cache"
	KindIndex      Kind = "index"
	KindValidation Kind = "validation"
	KindCycle      Kind = "cycle"
	KindFile       Kind = "file"
	KindGeneration Kind = "generation"
	KindInternal   Kind = "internal"
)

var (
	// ErrParseTimeout is wrapped by ParseError when a per-file deadline expires.
	ErrParseTimeout = errors.New("parse timed out")
	// ErrUnknownLanguage is wrapped by ValidationError for unsupported languages.
	ErrUnknownLanguage = errors.New("unknown language")
	// ErrLocked is wrapped by IndexError when another process holds the storage lock.
	ErrLocked = errors.New("storage root is locked by another process")
)

// ParseError is a recoverable per-file failure: malformed source that could
// not produce a document, an unsupported construct, or a timeout.
type ParseError struct {
	Path       string
	Line       int
	Column     int
	Underlying error
}

func NewParseError(path string, err error) *ParseError {
	return &ParseError{Path: path, Underlying: err}
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at %s:%d:%d: %v", e.Path, e.Line, e.Column, e.Underlying)
	}
	return fmt.Sprintf("parse error in %s: %v", e.Path, e.Underlying)
}

func (e *ParseError) Unwrap() error { return e.Underlying }

// CacheError describes a corrupt or unreadable cache entry. Callers treat it
// as a miss.
type CacheError struct {
	Path       string
	Operation  string
	Underlying error
}

func NewCacheError(op, path string, err error) *CacheError {
	return &CacheError{Operation: op, Path: path, Underlying: err}
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
}

func (e *CacheError) Unwrap() error { return e.Underlying }

// IndexError is fatal for the current build: the index storage is unwritable
// or corrupted.
type IndexError struct {
	Operation  string
	Path       string
	Underlying error
}

func NewIndexError(op string, err error) *IndexError {
	return &IndexError{Operation: op, Underlying: err}
}

// WithPath attaches the file being merged when the failure happened.
func (e *IndexError) WithPath(path string) *IndexError {
	e.Path = path
	return e
}

func (e *IndexError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("index %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
	}
	return fmt.Sprintf("index %s failed: %v", e.Operation, e.Underlying)
}

func (e *IndexError) Unwrap() error { return e.Underlying }

// ValidationError rejects a request before it reaches the parser or index.
type ValidationError struct {
	Field      string
	Value      string
	Underlying error
}

func NewValidationError(field, value string, err error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Underlying: err}
}

// Validationf builds a ValidationError from a format string.
func Validationf(field, value, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Value: value, Underlying: fmt.Errorf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Underlying)
	}
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Underlying)
}

func (e *ValidationError) Unwrap() error { return e.Underlying }

// CycleMember is one declaration participating in a dependency cycle.
type CycleMember struct {
	Path          string `json:"path"`
	Line          int    `json:"line"`
	QualifiedName string `json:"qualified_name"`
}

// CycleError aborts a transform job. Members lists every declaration of the
// cycle ordered by (path, line).
type CycleError struct {
	Members []CycleMember
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Members))
	for i, m := range e.Members {
		parts[i] = fmt.Sprintf("%s (%s:%d)", m.QualifiedName, m.Path, m.Line)
	}
	return "dependency cycle: " + strings.Join(parts, " -> ")
}

// Names returns the qualified names of the cycle members in order.
func (e *CycleError) Names() []string {
	names := make([]string, len(e.Members))
	for i, m := range e.Members {
		names[i] = m.QualifiedName
	}
	return names
}

// GenerationError aborts a transform job while emitting or rewriting files.
type GenerationError struct {
	Path       string
	Underlying error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed for %s: %v", e.Path, e.Underlying)
}

func (e *GenerationError) Unwrap() error { return e.Underlying }

// FileError is an I/O failure reading a source file.
type FileError struct {
	Path       string
	Operation  string
	Underlying error
}

func NewFileError(op, path string, err error) *FileError {
	return &FileError{Operation: op, Path: path, Underlying: err}
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
}

func (e *FileError) Unwrap() error { return e.Underlying }

// KindOf classifies err by the first typed error found in its chain.
func KindOf(err error) Kind {
	var (
		pe  *ParseError
		ce  *CacheError
		ie  *IndexError
		ve  *ValidationError
		cye *CycleError
		ge  *GenerationError
		fe  *FileError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &cye):
		return KindCycle
	case errors.As(err, &ie):
		return KindIndex
	case errors.As(err, &ge):
		return KindGeneration
	case errors.As(err, &pe):
		return KindParse
	case errors.As(err, &fe):
		return KindFile
	case errors.As(err, &ce):
		return KindCache
	}
	return KindInternal
}

// IsFatal reports whether err must abort a whole build.
func IsFatal(err error) bool {
	return KindOf(err) == KindIndex
}
