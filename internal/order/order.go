// Package order owns the Order entity and its status state machine. The
// Engine here is the only writer of order records; everything else in the
// system sees orders through its read surface or through published events.
package order

import (
	"math"
	"time"
)

// TaxRate is the fixed tax applied at placement. Totals are computed once
// and never revisited by later transitions.
const TaxRate = 0.05

// Item is one line of a placed order. Items are immutable after creation.
type Item struct {
	ItemID    string  `json:"itemId"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
	Kind      string  `json:"kind"`
}

// HistoryEntry is one append-only record of a status transition.
type HistoryEntry struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note"`
}

// Order is a single placed cart tied to one table.
//
// Invariants:
//   - StatusHistory has at least one entry (the creation transition)
//   - StatusHistory's last entry matches Status
//   - timestamps within StatusHistory are non-decreasing
type Order struct {
	ID            string         `json:"id"`
	RestaurantID  string         `json:"restaurantId"`
	TableNumber   int            `json:"tableNumber"`
	Items         []Item         `json:"items"`
	Subtotal      float64        `json:"subtotal"`
	TaxAmount     float64        `json:"taxAmount"`
	Total         float64        `json:"total"`
	Status        Status         `json:"status"`
	StatusHistory []HistoryEntry `json:"statusHistory"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// CustomerCount derives the seated-customer figure for this order as the
// sum of item quantities. The table reconciler reads this instead of
// trusting counts copied onto events by callers.
func (o *Order) CustomerCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// RoundCents rounds a money amount to two decimal places.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
