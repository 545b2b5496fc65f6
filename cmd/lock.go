package cmd

import (
	"fmt"
	"os"

	"github.com/gofrs/flock"

	"github.com/surge-downloader/sdm/internal/config"
	"github.com/surge-downloader/sdm/internal/utils"
)

var instanceLock *flock.Flock

// AcquireLock takes the single-instance lock guarding the state file.
// It reports false without error when another process holds it.
func AcquireLock() (bool, error) {
	path := config.GetLockPath()
	if err := os.MkdirAll(config.GetStateDir(), 0o755); err != nil {
		return false, fmt.Errorf("failed to create state directory: %w", err)
	}

	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !locked {
		utils.Debug("Lock %s held by another process", path)
		return false, nil
	}
	instanceLock = lock
	return true, nil
}

// ReleaseLock drops the lock taken by AcquireLock
func ReleaseLock() error {
	if instanceLock == nil {
		return nil
	}
	err := instanceLock.Unlock()
	instanceLock = nil
	return err
}
