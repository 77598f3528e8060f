package measurement

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindMissingAssetCode     Kind = "MissingAssetCode"
	KindMissingSiteID        Kind = "MissingSiteID"
	KindEmptyBatch           Kind = "EmptyBatch"
	KindMalformedPoints      Kind = "MalformedPoints"
	KindMissingTimestamp     Kind = "MissingTimestamp"
	KindNonPositiveThickness Kind = "NonPositiveThickness"
	KindNonMonotonicTime     Kind = "NonMonotonicTime"
	KindThicknessIncreased   Kind = "ThicknessIncreased"
)

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("measurement validation failed")

var (
	ErrMissingAssetCode   = &ValidationError{Kind: KindMissingAssetCode}
	ErrNonMonotonicTime   = &ValidationError{Kind: KindNonMonotonicTime}
	ErrThicknessIncreased = &ValidationError{Kind: KindThicknessIncreased}
)

// ValidationError rejects a batch at submission. Index is the offending
// position in the candidate slice, or -1 when the batch as a whole is at fault.
type ValidationError struct {
	Kind   Kind
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Index >= 0 && e.Reason != "" {
		return fmt.Sprintf("%s at point %d: %s", e.Kind, e.Index, e.Reason)
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return string(e.Kind)
}

func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	t, ok := target.(*ValidationError)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, index int, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Index: index, Reason: fmt.Sprintf(format, args...)}
}
