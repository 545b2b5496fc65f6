package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvHome overrides the per-user state directory
	EnvHome = "SDM_HOME"

	stateDirName  = ".sdm"
	stateFileName = "downloads"
)

// GetStateDir returns the per-user directory holding state, settings and logs.
// Falls back to the working directory when no home directory is known.
func GetStateDir() string {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, stateDirName)
}

// GetStateFilePath returns the path of the persisted download list
func GetStateFilePath() string {
	return filepath.Join(GetStateDir(), stateFileName)
}

// GetJournalPath returns the path of the transition journal database
func GetJournalPath() string {
	return filepath.Join(GetStateDir(), "journal.db")
}

// GetLockPath returns the path of the single-instance lock file
func GetLockPath() string {
	return filepath.Join(GetStateDir(), "sdm.lock")
}

// GetLogsDir returns the directory debug logs are written to
func GetLogsDir() string {
	return filepath.Join(GetStateDir(), "logs")
}

// EnsureDirs creates the state and log directories
func EnsureDirs() error {
	if err := os.MkdirAll(GetStateDir(), 0755); err != nil {
		return err
	}
	return os.MkdirAll(GetLogsDir(), 0755)
}
