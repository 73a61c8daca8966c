package executor

import (
	"errors"
	"fmt"
)

// Sentinel errors for resolution and execution.
// Use errors.Is() to check for these errors.
var (
	// ErrNotWhitelisted is returned for any name outside the whitelist.
	ErrNotWhitelisted = errors.New("command not whitelisted")

	// ErrNotFound is returned when no candidate path is executable.
	ErrNotFound = errors.New("command not found")

	// ErrTimedOut marks a probe that was killed for exceeding its budget.
	ErrTimedOut = errors.New("command timed out")
)

// CommandError records a failure for a specific command name.
type CommandError struct {
	Name string
	Err  error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q: %v", e.Name, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
