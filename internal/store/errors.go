package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrReadOnly is returned by Commit on a store opened read-only.
	ErrReadOnly = errors.New("store is read-only")

	// ErrDrainGateBypassed marks a shutdown whose counters show a commit
	// that was admitted but not accounted for at one of the two boundaries.
	ErrDrainGateBypassed = errors.New("drain gate bypassed")
)

// ShutdownError aggregates every failure seen while shutting a store down.
// errors.Is and errors.As see each of them.
type ShutdownError struct {
	StoreID string
	Errs    []error
}

func (e *ShutdownError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("shutdown %s: %s", e.StoreID, strings.Join(msgs, "; "))
}

func (e *ShutdownError) Unwrap() []error {
	return e.Errs
}

// IsShutdownError reports whether err carries a *ShutdownError.
func IsShutdownError(err error) bool {
	var se *ShutdownError
	return errors.As(err, &se)
}
