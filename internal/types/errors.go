package types

import (
	"errors"
	"fmt"
)

var (
	// ErrPositionExists is returned when opening a position for a ticker
	// that already has one; at most one open position per ticker.
	ErrPositionExists = errors.New("position already exists for ticker")

	// ErrPositionNotFound is returned when a close or update references a
	// ticker with no open position. Callers treat it as a logged no-op.
	ErrPositionNotFound = errors.New("no open position for ticker")

	// ErrOrderNotFound is returned when an order ID is not tracked
	ErrOrderNotFound = errors.New("order not found")
)

// ValidationError reports a malformed order or signal spec. It is
// returned before any state mutation takes place.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InvalidTransitionError reports an attempt to move an order out of its
// current status along a path the lifecycle does not permit.
type InvalidTransitionError struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: invalid status transition %s -> %s", e.OrderID, e.From, e.To)
}
