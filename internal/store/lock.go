package store

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	arborerrors "github.com/jward/arbor/internal/errors"
)

// LockFileName is created inside the storage root.
const LockFileName = "arbor.lock"

// RootLock is an advisory, process-wide lock on a storage root. Only one
// process may hold it; a second Acquire fails fast with ErrLocked.
type RootLock struct {
	flk *flock.Flock
}

// AcquireRootLock takes the lock for root without blocking.
func AcquireRootLock(root string) (*RootLock, error) {
	flk := flock.New(filepath.Join(root, LockFileName))
	locked, err := flk.TryLock()
	if err != nil {
		return nil, arborerrors.NewIndexError("lock", fmt.Errorf("acquire %s: %w", flk.Path(), err)).WithPath(root)
	}
	if !locked {
		return nil, arborerrors.NewIndexError("lock", arborerrors.ErrLocked).WithPath(root)
	}
	return &RootLock{flk: flk}, nil
}

// Release drops the lock. Safe to call more than once.
func (l *RootLock) Release() error {
	if l == nil || l.flk == nil {
		return nil
	}
	return l.flk.Unlock()
}
