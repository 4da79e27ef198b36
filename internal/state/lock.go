package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another jodex run holds the run lock.
var ErrLocked = errors.New("another jodex run is active in this directory")

const lockFileName = "run.lock"

// Lock is an exclusive advisory lock on .jodex/run.lock. The OS releases it
// if the process dies, so a crashed run never leaves the directory wedged.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes the run lock for dir without blocking.
func AcquireLock(dir string) (*Lock, error) {
	lockDir := filepath.Join(dir, DirName)
	if err := os.MkdirAll(lockDir, 0755); err != nil {
		return nil, fmt.Errorf("state: create lock dir: %w", err)
	}

	fl := flock.New(filepath.Join(lockDir, lockFileName))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("state: acquire lock: %w", err)
	}
	if !locked {
		if prev, loadErr := Load(dir); loadErr == nil && prev.PID != 0 {
			return nil, fmt.Errorf("state: %w (pid %d)", ErrLocked, prev.PID)
		}
		return nil, fmt.Errorf("state: %w", ErrLocked)
	}
	return &Lock{fl: fl}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.fl.Path()
}

// Release unlocks. Safe to call more than once.
func (l *Lock) Release() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("state: release lock: %w", err)
	}
	return nil
}
