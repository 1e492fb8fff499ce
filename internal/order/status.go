package order

import "github.com/nbekov/dinesync/internal/bus"

// Status is an order's lifecycle state.
type Status string

// Lifecycle states. FINISHED and CANCELLED are terminal.
const (
	StatusOrdered       Status = "ORDERED"
	StatusPreparing     Status = "PREPARING"
	StatusReady         Status = "READY"
	StatusServed        Status = "SERVED"
	StatusBillRequested Status = "BILL_REQUESTED"
	StatusFinished      Status = "FINISHED"
	StatusCancelled     Status = "CANCELLED"
)

// transitions is the explicit legality table: allowed successor states per
// state. Terminal states have no entry. Any transition not listed here is
// rejected with a TransitionError; force-closure (stale-order sweep, staff
// override) goes through ForceFinish instead.
var transitions = map[Status][]Status{
	StatusOrdered:       {StatusPreparing, StatusCancelled},
	StatusPreparing:     {StatusReady, StatusCancelled},
	StatusReady:         {StatusServed},
	StatusServed:        {StatusBillRequested},
	StatusBillRequested: {StatusFinished},
}

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusOrdered, StatusPreparing, StatusReady, StatusServed,
		StatusBillRequested, StatusFinished, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s is a final state. An order in a terminal state
// never transitions again and never counts as active for its table.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// CanTransition reports whether from → to is a legal transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Token returns the lowercase event-vocabulary token for s. The creation
// event uses "created" rather than "ordered"; "cancelled" has no mapping in
// the table reconciler and propagates via order.completed instead.
func (s Status) Token() string {
	switch s {
	case StatusOrdered:
		return bus.TokenCreated
	case StatusPreparing:
		return bus.TokenPreparing
	case StatusReady:
		return bus.TokenReady
	case StatusServed:
		return bus.TokenServed
	case StatusBillRequested:
		return bus.TokenBilling
	case StatusFinished:
		return bus.TokenFinished
	case StatusCancelled:
		return "cancelled"
	}
	return ""
}
