package order

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces unique order identifiers.
// Implemented by UUIDGenerator (production) and SequenceGenerator (tests).
type IDGenerator interface {
	NewOrderID(now time.Time) string
}

// UUIDGenerator produces time-prefixed IDs with a random suffix, so IDs
// sort roughly by creation time while staying collision-safe.
type UUIDGenerator struct{}

// NewOrderID returns an ID of the form ord_<unixmilli>_<8 hex chars>.
func (UUIDGenerator) NewOrderID(now time.Time) string {
	return fmt.Sprintf("ord_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}

// SequenceGenerator produces deterministic IDs for tests.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceGenerator struct {
	mu sync.Mutex
	n  int
}

// NewOrderID returns ord_0001, ord_0002, ...
func (g *SequenceGenerator) NewOrderID(time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("ord_%04d", g.n)
}
