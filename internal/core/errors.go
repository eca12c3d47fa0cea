package core

import (
	"errors"
)

// ErrPermissionDenied is returned when the read capability is not granted
// at call time. No query is issued in that case.
var ErrPermissionDenied = errors.New("sms permission not granted")

// StoreReadError wraps a failure to open or iterate the message store.
type StoreReadError struct {
	Err error
}

func (e *StoreReadError) Error() string {
	if e.Err == nil {
		return "store read error"
	}
	return e.Err.Error()
}

func (e *StoreReadError) Unwrap() error { return e.Err }

// IsStoreReadError reports whether err carries a StoreReadError.
func IsStoreReadError(err error) bool {
	var sre *StoreReadError
	return errors.As(err, &sre)
}
