package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedPayload marks an event that can never be applied as-is.
	ErrMalformedPayload = errors.New("malformed event payload")
	ErrInvalidJSON      = errors.New("payload is not well-formed JSON")
	ErrMissingSource    = errors.New("source site is required")
	ErrMissingEventType = errors.New("event type is required")
)

// MalformedEventError reports one event skipped during a drain.
type MalformedEventError struct {
	EventID int64
	Err     error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("event %d: %v", e.EventID, e.Err)
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

func (e *MalformedEventError) Is(target error) bool { return target == ErrMalformedPayload }

// Malformed wraps a decode problem so the drain loop skips the event instead
// of aborting the pass.
func Malformed(eventID int64, format string, args ...any) error {
	return &MalformedEventError{EventID: eventID, Err: fmt.Errorf(format, args...)}
}
