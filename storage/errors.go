package storage

import "errors"

// Sentinel errors for provider operations.
var (
	ErrLoadFailed      = errors.New("load failed")
	ErrSaveFailed      = errors.New("save failed")
	ErrInvalidValue    = errors.New("invalid value")
	ErrUnknownProvider = errors.New("unknown storage provider")
)
