package cmd

import (
	"fmt"

	"github.com/gofrs/flock"

	"github.com/riptide-dl/riptide/internal/config"
)

// instanceLock holds the single-instance file lock while this process is the
// daemon.
var instanceLock *flock.Flock

// AcquireLock attempts to acquire the single instance lock.
// Returns true if the lock was acquired (this process is the daemon).
// Returns false if another instance already holds it.
func AcquireLock() (bool, error) {
	if err := config.EnsureDirs(); err != nil {
		return false, fmt.Errorf("failed to ensure config dirs: %w", err)
	}

	fileLock := flock.New(config.LockPath())
	locked, err := fileLock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to try lock: %w", err)
	}
	if !locked {
		return false, nil
	}

	instanceLock = fileLock
	return true, nil
}

// ReleaseLock releases the lock if this instance holds it.
func ReleaseLock() error {
	if instanceLock != nil {
		return instanceLock.Unlock()
	}
	return nil
}
