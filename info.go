package arbor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jward/arbor/internal/cache"
	arborerrors "github.com/jward/arbor/internal/errors"
)

// UnitInfo describes one indexed translation unit.
type UnitInfo struct {
	Path        string    `json:"path"`
	Language    string    `json:"language"`
	Stale       bool      `json:"stale"`
	Cached      bool      `json:"cached"`
	Symbols     int       `json:"symbols"`
	Occurrences int       `json:"occurrences"`
	LastIndexed time.Time `json:"last_indexed"`
}

// PackageInfo summarizes the translation units indexed under a directory.
type PackageInfo struct {
	Dir         string     `json:"dir"`
	Name        string     `json:"name"`
	Units       []UnitInfo `json:"units"`
	Symbols     int        `json:"symbols"`
	Occurrences int        `json:"occurrences"`
	Stale       int        `json:"stale"`
	Cached      int        `json:"cached"`
}

// Info reports the index and cache state of every translation unit indexed
// under dir, ordered by path. Cached means the cache holds the Document for
// the unit's indexed content and configuration.
func (e *Engine) Info(ctx context.Context, dir string) (*PackageInfo, error) {
	dir = e.abs(dir)
	st, err := os.Stat(dir)
	if err != nil {
		return nil, arborerrors.NewFileError("stat", dir, err)
	}
	if !st.IsDir() {
		return nil, arborerrors.Validationf("dir", dir, "not a directory")
	}

	files, err := e.index.Files(ctx)
	if err != nil {
		return nil, err
	}
	info := &PackageInfo{Dir: dir, Name: filepath.Base(dir), Units: []UnitInfo{}}
	prefix := dir + string(filepath.Separator)
	for _, f := range files {
		if !strings.HasPrefix(f.Path, prefix) {
			continue
		}
		syms, err := e.index.SymbolsByFile(ctx, f.Path)
		if err != nil {
			return nil, err
		}
		occs, err := e.index.OccurrencesByFile(ctx, f.Path)
		if err != nil {
			return nil, err
		}
		cached, err := e.cache.Has(ctx, cache.Key{Path: f.Path, ContentHash: f.ContentHash, ConfigHash: f.ConfigHash})
		if err != nil {
			return nil, err
		}
		u := UnitInfo{
			Path:        f.Path,
			Language:    f.Language,
			Stale:       f.Stale,
			Cached:      cached,
			Symbols:     len(syms),
			Occurrences: len(occs),
			LastIndexed: f.LastIndexed,
		}
		info.Units = append(info.Units, u)
		info.Symbols += u.Symbols
		info.Occurrences += u.Occurrences
		if u.Stale {
			info.Stale++
		}
		if u.Cached {
			info.Cached++
		}
	}
	return info, nil
}
