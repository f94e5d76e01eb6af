// Package config resolves the per-user directories riptide uses: the config
// dir holding the lock and port files, the state dir holding the journal, and
// the default download root.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetRiptideDir returns the base config directory (~/.riptide).
func GetRiptideDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".riptide"
	}
	return filepath.Join(home, ".riptide")
}

// GetStateDir returns the directory holding the SQLite journal.
func GetStateDir() string {
	return filepath.Join(GetRiptideDir(), "state")
}

// DBPath returns the journal location.
func DBPath() string {
	return filepath.Join(GetStateDir(), "riptide.db")
}

// LockPath returns the single-instance lock file location.
func LockPath() string {
	return filepath.Join(GetRiptideDir(), "riptide.lock")
}

// PortPath returns the file the daemon writes its listen port to, so client
// commands can discover it.
func PortPath() string {
	return filepath.Join(GetRiptideDir(), "port")
}

// DefaultDownloadRoot returns the default directory completed files land in.
func DefaultDownloadRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "downloads"
	}
	return filepath.Join(home, "Downloads", "riptide")
}

// EnsureDirs creates the config and state directories.
func EnsureDirs() error {
	for _, dir := range []string{GetRiptideDir(), GetStateDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
