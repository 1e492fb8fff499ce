package order

import (
	"errors"
	"fmt"
)

// ErrOrderNotFound is returned when an operation references an order ID
// absent from the collection.
var ErrOrderNotFound = errors.New("order not found")

// ErrNoItems is returned by PlaceOrder for an empty items list.
var ErrNoItems = errors.New("order must contain at least one item")

// TransitionError reports an attempted status change not permitted by the
// transition table.
type TransitionError struct {
	OrderID string
	From    Status
	To      Status
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s for order %s", e.From, e.To, e.OrderID)
}

// IsInvalidTransition reports whether err is a TransitionError.
// Uses errors.As to handle wrapped errors.
func IsInvalidTransition(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
