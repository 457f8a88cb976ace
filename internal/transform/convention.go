package transform

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	arborerrors "github.com/jward/arbor/internal/errors"
	"github.com/jward/arbor/internal/runtime"
)

// Package is a directory of C/C++ sources transformed as one unit.
type Package struct {
	Name  string   `json:"name"`
	Dir   string   `json:"dir"`
	Files []string `json:"files"`
}

// Plan is a convention's decision for one package.
type Plan struct {
	// Header is the generated header's file name inside the package directory.
	Header string
	// Exclude names declarations (simple or qualified) kept out of the header.
	Exclude []string
}

// Convention decides where a package's declarations are consolidated.
type Convention interface {
	Name() string
	Plan(ctx context.Context, pkg Package, decls []Decl) (Plan, error)
}

// Upp is the U++ convention: one "<Package>.h" per package, without main.
type Upp struct{}

func (Upp) Name() string { return "upp" }

func (Upp) Plan(_ context.Context, pkg Package, _ []Decl) (Plan, error) {
	return Plan{Header: pkg.Name + ".h", Exclude: []string{"main"}}, nil
}

// Flat consolidates everything into "<package>_all.h".
type Flat struct{}

func (Flat) Name() string { return "flat" }

func (Flat) Plan(_ context.Context, pkg Package, _ []Decl) (Plan, error) {
	return Plan{Header: strings.ToLower(pkg.Name) + "_all.h"}, nil
}

// Script runs a Risor convention. The script sees a "pkg" map (name, dir,
// files) and a "decls" list, and must evaluate to a map holding "header" and
// optionally "exclude".
type Script struct {
	rt   *runtime.Runtime
	path string
}

// NewScript returns a convention backed by the script at path.
func NewScript(rt *runtime.Runtime, path string) *Script {
	return &Script{rt: rt, path: path}
}

func (s *Script) Name() string { return filepath.Base(s.path) }

func (s *Script) Plan(ctx context.Context, pkg Package, decls []Decl) (Plan, error) {
	list := make([]any, len(decls))
	for i, d := range decls {
		list[i] = map[string]any{
			"qualified_name": d.QualifiedName,
			"name":           d.Name,
			"kind":           d.Kind,
			"namespace":      d.Namespace,
			"signature":      d.Signature,
			"path":           d.Path,
			"line":           d.Line,
			"modifiers":      d.Modifiers,
		}
	}
	result, err := s.rt.RunScript(ctx, s.path, map[string]any{
		"pkg": runtime.ToObject(map[string]any{
			"name":  pkg.Name,
			"dir":   pkg.Dir,
			"files": pkg.Files,
		}),
		"decls": runtime.ToObject(list),
	})
	if err != nil {
		return Plan{}, &arborerrors.GenerationError{Path: s.path, Underlying: err}
	}
	m, err := runtime.MapValue(result)
	if err != nil {
		return Plan{}, &arborerrors.GenerationError{Path: s.path, Underlying: fmt.Errorf("convention result: %w", err)}
	}
	exclude, err := runtime.GetStringList(m, "exclude")
	if err != nil {
		return Plan{}, &arborerrors.GenerationError{Path: s.path, Underlying: err}
	}
	return Plan{Header: runtime.GetString(m, "header"), Exclude: exclude}, nil
}

// ConventionFor resolves a built-in convention name or a .risor script path.
func ConventionFor(name string, rt *runtime.Runtime) (Convention, error) {
	switch {
	case name == "" || name == "upp":
		return Upp{}, nil
	case name == "flat":
		return Flat{}, nil
	case strings.HasSuffix(name, ".risor"):
		abs, err := filepath.Abs(name)
		if err != nil {
			return nil, arborerrors.NewValidationError("convention", name, err)
		}
		if rt == nil {
			rt = runtime.New(filepath.Dir(abs))
		}
		return NewScript(rt, abs), nil
	}
	return nil, arborerrors.Validationf("convention", name, "want upp, flat, or a .risor script")
}

func validatePlan(p Plan) error {
	if p.Header == "" || filepath.Base(p.Header) != p.Header || strings.HasPrefix(p.Header, ".") {
		return fmt.Errorf("convention header %q: must name a file in the package directory", p.Header)
	}
	return nil
}
