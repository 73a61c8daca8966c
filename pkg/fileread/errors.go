package fileread

import (
	"errors"
	"fmt"
)

// Sentinel errors for bounded reads.
// Use errors.Is() to check for these errors.
var (
	// ErrDenied is returned when policy refuses a read.
	ErrDenied = errors.New("read denied")

	// ErrUnavailable is returned when the file is missing or unreadable.
	ErrUnavailable = errors.New("file unavailable")

	// ErrTooLarge is returned when a size probe reports more than the ceiling.
	// It is a kind of ErrDenied.
	ErrTooLarge = fmt.Errorf("%w: file exceeds size limit", ErrDenied)
)

// DeniedError records why a path was refused.
type DeniedError struct {
	Path   string
	Reason string
	Err    error
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("read %s denied: %s", e.Path, e.Reason)
}

func (e *DeniedError) Unwrap() error {
	if e.Err == nil {
		return ErrDenied
	}
	return e.Err
}

func denied(path, reason string) error {
	return &DeniedError{Path: path, Reason: reason}
}

func unavailable(path string, err error) error {
	return fmt.Errorf("%s: %w: %v", path, ErrUnavailable, err)
}
