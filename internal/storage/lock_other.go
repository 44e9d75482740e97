//go:build !unix

package storage

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// acquireLock falls back to an O_EXCL lock file where flock is unavailable.
// A crashed holder leaves the file behind; it must be removed by hand.
func acquireLock(path string, timeout time.Duration) (func() error, error) {
	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() error { return os.Remove(path) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if !time.Now().Before(deadline) {
			return nil, errLockHeld
		}
		time.Sleep(25 * time.Millisecond)
	}
}
