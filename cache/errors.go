package cache

import "errors"

// ErrInvalidArgument is returned when a cache merge patch is not a mapping.
var ErrInvalidArgument = errors.New("invalid argument")
