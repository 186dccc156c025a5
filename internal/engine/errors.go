package engine

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks malformed settings or tasks. It is returned before any
// placement work happens; there are never partial results.
var ErrInvalidInput = errors.New("invalid scheduling input")

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// InvariantError reports a double-booking detected after committing a slot.
// It indicates an engine bug: the run is aborted and the error surfaces to the
// caller instead of being silently corrected.
type InvariantError struct {
	TaskID string
	Slot   Interval
	Other  Interval
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("scheduling invariant violated: task %s slot [%s,%s) conflicts with committed [%s,%s)",
		e.TaskID,
		e.Slot.Start.Format("2006-01-02T15:04:05Z07:00"), e.Slot.End.Format("2006-01-02T15:04:05Z07:00"),
		e.Other.Start.Format("2006-01-02T15:04:05Z07:00"), e.Other.End.Format("2006-01-02T15:04:05Z07:00"))
}
