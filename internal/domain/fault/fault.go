package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient marks failures the caller may retry: storage outages,
	// gateway timeouts, an open circuit.
	ErrTransient = errors.New("temporary failure, retry later")
	ErrForbidden = errors.New("forbidden")
)

// Transient wraps err so that errors.Is(err, ErrTransient) holds while the
// original cause stays reachable.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
