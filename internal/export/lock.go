package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is created inside the output directory while a run writes to it.
const LockFileName = ".bbreport.lock"

// ErrLocked indicates another run is writing to the same output directory.
var ErrLocked = errors.New("output directory is locked by another run")

// DirLock is an advisory lock on one output directory.
type DirLock struct {
	lockFile *flock.Flock
	lockPath string
}

// NewDirLock prepares a lock for dir without acquiring it.
func NewDirLock(dir string) *DirLock {
	lockPath := filepath.Join(dir, LockFileName)
	return &DirLock{
		lockFile: flock.New(lockPath),
		lockPath: lockPath,
	}
}

// TryLock acquires the lock or fails with ErrLocked without waiting.
func (dl *DirLock) TryLock() error {
	locked, err := dl.lockFile.TryLock()
	if err != nil {
		return fmt.Errorf("try lock %q: %w", dl.lockPath, err)
	}
	if !locked {
		return fmt.Errorf("%s: %w", dl.lockPath, ErrLocked)
	}
	return nil
}

// Unlock releases the lock and removes the lock file.
func (dl *DirLock) Unlock() error {
	if err := dl.lockFile.Unlock(); err != nil {
		return fmt.Errorf("unlock %q: %w", dl.lockPath, err)
	}
	if err := os.Remove(dl.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file %q: %w", dl.lockPath, err)
	}
	return nil
}

// Path returns the lock file location.
func (dl *DirLock) Path() string {
	return dl.lockPath
}
