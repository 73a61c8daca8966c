package detect

import "errors"

var (
	// ErrStructural is returned when a detection produced an internally
	// inconsistent snapshot. Nothing is committed when it occurs.
	ErrStructural = errors.New("inconsistent snapshot")

	// ErrNotDetected is returned by Snapshot before any detection committed.
	ErrNotDetected = errors.New("not yet detected")
)
