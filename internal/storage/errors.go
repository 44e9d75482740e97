package storage

import (
	"errors"
	"fmt"
)

// Code categorizes storage errors.
type Code string

const (
	// CodeStoreLocked indicates another process holds the store's lock.
	CodeStoreLocked Code = "STORE_LOCKED"

	// CodeUnavailable indicates the backing resource could not be opened.
	CodeUnavailable Code = "STORAGE_UNAVAILABLE"

	// CodeWriteFailed indicates a record could not be made durable.
	CodeWriteFailed Code = "WRITE_FAILED"

	// CodeCloseFailed indicates the backend could not confirm its flush or
	// could not be released.
	CodeCloseFailed Code = "CLOSE_FAILED"
)

// Error is the error type returned by every storage operation.
//
// Compare against the sentinels with errors.Is; the match is on Code only,
// so a wrapped *Error with any StoreID or Op matches.
type Error struct {
	Code    Code
	StoreID string
	Op      string
	Seq     uint64 // first affected seq, WRITE_FAILED only
	Err     error
}

// Sentinels for errors.Is.
var (
	ErrStoreLocked        = &Error{Code: CodeStoreLocked}
	ErrStorageUnavailable = &Error{Code: CodeUnavailable}
	ErrWriteFailed        = &Error{Code: CodeWriteFailed}
	ErrCloseFailed        = &Error{Code: CodeCloseFailed}
)

// ErrHandleClosed is wrapped when a record is submitted after Close.
var ErrHandleClosed = errors.New("storage handle closed")

// ErrReadOnly is wrapped when a record is submitted to a read-only handle.
var ErrReadOnly = errors.New("storage handle is read-only")

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Op)
	}
	if e.StoreID != "" {
		msg = fmt.Sprintf("%s (store=%s", msg, e.StoreID)
		if e.Seq != 0 {
			msg = fmt.Sprintf("%s, seq=%d", msg, e.Seq)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// IsLocked reports whether err is a STORE_LOCKED error.
func IsLocked(err error) bool {
	return errors.Is(err, ErrStoreLocked)
}

// IsWriteFailed reports whether err is a WRITE_FAILED error.
func IsWriteFailed(err error) bool {
	return errors.Is(err, ErrWriteFailed)
}

// IsCloseFailed reports whether err is a CLOSE_FAILED error.
func IsCloseFailed(err error) bool {
	return errors.Is(err, ErrCloseFailed)
}

func unavailable(storeID, op string, err error) *Error {
	return &Error{Code: CodeUnavailable, StoreID: storeID, Op: op, Err: err}
}
