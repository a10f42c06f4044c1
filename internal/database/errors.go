package database

import (
	"errors"
	"fmt"
)

// ErrCache wraps every storage-layer failure (I/O, corruption, lock contention).
var ErrCache = errors.New("cache error")

// Wrap tags err as a cache error for the named operation. Returns nil for nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrCache, op, err)
}
