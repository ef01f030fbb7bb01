package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const (
	lockFileName = ".regwatch.lock"
)

// OutputLock manages a file-based lock on the output directory. Only the
// holder may rewrite the seen-sets stored there.
type OutputLock struct {
	lock *flock.Flock
	path string
}

// NewOutputLock creates a new lock for the given output directory.
func NewOutputLock(outDir string) (*OutputLock, error) {
	absDir, err := filepath.Abs(outDir)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute output path: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create output dir %s: %w", absDir, err)
	}
	lockPath := filepath.Join(absDir, lockFileName)
	return &OutputLock{
		lock: flock.New(lockPath),
		path: lockPath,
	}, nil
}

// Lock acquires the output lock, waiting if necessary.
// It will print a message if it has to wait.
func (l *OutputLock) Lock() error {
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}

	if !locked {
		fmt.Fprintf(os.Stderr, "Another regwatch process owns the output directory, waiting for it to finish...\n")
		if err := l.lock.Lock(); err != nil {
			return fmt.Errorf("failed to acquire lock on %s after waiting: %w", l.path, err)
		}
	}
	return nil
}

// Unlock releases the output lock.
func (l *OutputLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		// Suppress error if the lock file doesn't exist, as it means we don't hold the lock.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}

// Path returns the lock file location.
func (l *OutputLock) Path() string {
	return l.path
}
