package cache

import "errors"

// ErrNotFound is returned when a key does not exist
var ErrNotFound = errors.New("cache: key not found")
