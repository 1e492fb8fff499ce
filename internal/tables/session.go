// Package tables owns the TableSession entity and keeps it consistent with
// the true state of each table's order, through three overlapping
// mechanisms: the event fast path, the completed-order sweep, and the
// stale-order sweep. The redundancy is deliberate: the event fabric drops
// messages, so the sweeps are the safety net.
package tables

import "time"

// Status is a table's occupancy state.
type Status string

// Occupancy states.
const (
	StatusAvailable     Status = "available"
	StatusOccupied      Status = "occupied"
	StatusBilling       Status = "billing"
	StatusNeedsCleaning Status = "needs-cleaning"
	StatusReserved      Status = "reserved"
)

// Session is the occupancy record for one physical table, keyed by table
// number and derived from order activity.
//
// Invariants:
//   - CurrentOrder is non-nil only while Status is occupied or billing
//   - Customers is 0 whenever Status is available or needs-cleaning
type Session struct {
	TableNumber int    `json:"tableNumber"`
	Status      Status `json:"status"`
	Customers   int    `json:"customers"`

	// CurrentOrder references (not owns) the active order's ID.
	CurrentOrder *string `json:"currentOrder"`

	SessionStart *time.Time `json:"sessionStart"`
	// SessionDuration is seconds since SessionStart, refreshed on activity.
	SessionDuration int64      `json:"sessionDuration"`
	LastActivity    *time.Time `json:"lastActivity"`

	// Revenue accumulated by the active session; reset when the session ends.
	Revenue float64 `json:"revenue"`

	// Reservation fields, populated only in reserved state.
	ReservedBy       string     `json:"reservedBy,omitempty"`
	ReservedTime     *time.Time `json:"reservedTime,omitempty"`
	ReservationNotes string     `json:"reservationNotes,omitempty"`
}

// newSession returns an available session for a table.
func newSession(tableNumber int) Session {
	return Session{TableNumber: tableNumber, Status: StatusAvailable}
}

// reset clears every occupancy and reservation field and returns the
// session to available. Used when a session ends, a table is cleaned, or
// staff force-frees a table.
func (s *Session) reset() {
	s.Status = StatusAvailable
	s.Customers = 0
	s.CurrentOrder = nil
	s.SessionStart = nil
	s.SessionDuration = 0
	s.LastActivity = nil
	s.Revenue = 0
	s.ReservedBy = ""
	s.ReservedTime = nil
	s.ReservationNotes = ""
}

// touch refreshes the activity timestamps.
func (s *Session) touch(now time.Time) {
	t := now
	s.LastActivity = &t
	if s.SessionStart != nil {
		s.SessionDuration = int64(now.Sub(*s.SessionStart).Seconds())
	}
}
