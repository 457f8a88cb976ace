package arbor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/config"
)

// Golden test format.
type goldenFile struct {
	Definitions []goldenDef `json:"definitions,omitempty"`
	References  []goldenRef `json:"references,omitempty"`
}

type goldenDef struct {
	Name          string `json:"name"`
	QualifiedName string `json:"qualified_name,omitempty"`
	Kind          string `json:"kind"`
	File          string `json:"file"`
	Line          int    `json:"line"`
}

type goldenRef struct {
	Symbol     string      `json:"symbol"`
	Refs       []goldenLoc `json:"refs"`
	Confidence string      `json:"confidence,omitempty"`
}

type goldenLoc struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// TestGolden walks testdata/{language}/{case}/ directories, builds each src/
// tree, and checks the index against golden.json.
func TestGolden(t *testing.T) {
	langDirs, err := os.ReadDir("testdata")
	if err != nil {
		t.Skip("no testdata directory found")
	}

	for _, langDir := range langDirs {
		if !langDir.IsDir() {
			continue
		}
		lang := langDir.Name()
		langRoot := filepath.Join("testdata", lang)
		cases, err := os.ReadDir(langRoot)
		if err != nil {
			continue
		}

		for _, c := range cases {
			if !c.IsDir() {
				continue
			}
			testDir := filepath.Join(langRoot, c.Name())
			goldenPath := filepath.Join(testDir, "golden.json")
			srcDir := filepath.Join(testDir, "src")

			if _, err := os.Stat(goldenPath); err != nil {
				continue
			}
			if _, err := os.Stat(srcDir); err != nil {
				continue
			}

			t.Run(lang+"/"+c.Name(), func(t *testing.T) {
				runGoldenTest(t, srcDir, goldenPath)
			})
		}
	}
}

func runGoldenTest(t *testing.T, srcDir, goldenPath string) {
	t.Helper()

	goldenData, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	var golden goldenFile
	require.NoError(t, json.Unmarshal(goldenData, &golden))

	cfg := config.Default()
	cfg.Storage = t.TempDir()
	engine, err := Open(srcDir, WithConfig(cfg))
	require.NoError(t, err)
	defer engine.Close()

	ctx := context.Background()
	report, err := engine.BuildDirectory(ctx, srcDir)
	require.NoError(t, err)
	require.Empty(t, report.Failed())

	if len(golden.Definitions) > 0 {
		t.Run("definitions", func(t *testing.T) {
			verifyDefinitions(t, engine, golden.Definitions)
		})
	}
	if len(golden.References) > 0 {
		t.Run("references", func(t *testing.T) {
			verifyReferences(t, engine, golden.References)
		})
	}
}

func verifyDefinitions(t *testing.T, engine *Engine, expected []goldenDef) {
	t.Helper()
	syms, err := engine.Query(context.Background(), Filter{})
	require.NoError(t, err)

	type defKey struct {
		Name string
		Kind string
		File string
		Line int
	}
	actual := make(map[defKey]string)
	for _, s := range syms {
		actual[defKey{s.Name, s.Kind, filepath.Base(s.Path), s.Line}] = s.QualifiedName
	}

	for _, exp := range expected {
		qn, ok := actual[defKey{exp.Name, exp.Kind, exp.File, exp.Line}]
		if !assert.True(t, ok, "missing definition: %+v", exp) {
			continue
		}
		if exp.QualifiedName != "" {
			assert.Equal(t, exp.QualifiedName, qn, "qualified name of %+v", exp)
		}
	}
}

func verifyReferences(t *testing.T, engine *Engine, expected []goldenRef) {
	t.Helper()
	for _, exp := range expected {
		refs, err := engine.References(context.Background(), exp.Symbol, "", 0, RefOptions{})
		require.NoError(t, err)

		actual := make(map[goldenLoc]bool)
		for _, r := range refs {
			actual[goldenLoc{File: filepath.Base(r.Path), Line: r.Line}] = true
			if exp.Confidence != "" {
				assert.Equal(t, exp.Confidence, r.Confidence, "confidence of %s at %s:%d", exp.Symbol, r.Path, r.Line)
			}
		}
		for _, loc := range exp.Refs {
			assert.True(t, actual[loc], "missing reference to %s at %s:%d (got %d references)", exp.Symbol, loc.File, loc.Line, len(refs))
		}
	}
}
