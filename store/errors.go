package store

import (
	"errors"
	"fmt"
)

// Sentinel errors for store operations.
var (
	// ErrInvalidArgument reports a malformed request. It is returned before
	// any storage I/O, so no state has changed.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrStorageFailure wraps an error from the storage provider. The cache
	// is left as it was before the failed write.
	ErrStorageFailure = errors.New("storage failure")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
)

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func storageFailure(op, key string, err error) error {
	if key == "" {
		return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
	}
	return fmt.Errorf("%w: %s %s: %w", ErrStorageFailure, op, key, err)
}

func errInvalidKey(method string) error {
	return fmt.Errorf("%s: key must be a string", method)
}

func errNotMapping(method string) error {
	return fmt.Errorf("%s: value must be an object", method)
}

func errUnknownMethod(method string) error {
	return fmt.Errorf("unknown method %q", method)
}
