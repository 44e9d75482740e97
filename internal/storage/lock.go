package storage

import "errors"

var errLockHeld = errors.New("lock held by another process")

// LockPath returns the lock file used for storeID.
func (c Config) LockPath(storeID string) string {
	return c.Path(storeID, ".lock")
}
