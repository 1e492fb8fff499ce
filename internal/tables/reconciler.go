package tables

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nbekov/dinesync/internal/bus"
	"github.com/nbekov/dinesync/internal/clock"
	"github.com/nbekov/dinesync/internal/order"
	"github.com/nbekov/dinesync/internal/qrprov"
	"github.com/nbekov/dinesync/internal/record"
)

// Defaults for the periodic sweeps.
const (
	DefaultSweepInterval = 30 * time.Second

	// DefaultStaleOrderAge is how old a non-terminal order may get before
	// the stale sweep force-closes it.
	DefaultStaleOrderAge = 60 * time.Minute

	// DefaultFullResyncEvery makes every Nth sweep ignore the dirty set
	// and re-check all occupied tables.
	DefaultFullResyncEvery = 10

	replaceRetries = 3
)

// ErrTableNotFound is returned when an operation references an
// unprovisioned table number.
var ErrTableNotFound = errors.New("table not found")

// StateError reports an operation rejected because the table is not in the
// state that operation requires.
type StateError struct {
	TableNumber int
	Status      Status
	Op          string
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s table %d in status %q", e.Op, e.TableNumber, e.Status)
}

// IsStateError reports whether err is a StateError.
// Uses errors.As to handle wrapped errors.
func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

// Reconciler derives table occupancy from order lifecycle events and
// repairs missed events with periodic sweeps.
//
// Event handling and sweeps both funnel through read-modify-write cycles
// on the sessions collection; a lost revision race is retried (events) or
// deferred to the next tick (sweeps).
type Reconciler struct {
	repo     *Repository
	orders   *order.Engine
	registry *qrprov.Registry
	clock    clock.Clock

	sweepInterval   time.Duration
	staleAge        time.Duration
	fullResyncEvery int

	mu     sync.Mutex
	dirty  map[int]struct{}
	resync bool // set by storage-change hints; forces a full pass
	ticks  int
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithClock overrides the wall clock. Used by tests.
func WithClock(c clock.Clock) ReconcilerOption {
	return func(r *Reconciler) { r.clock = c }
}

// WithSweepInterval sets the tick period of Run.
func WithSweepInterval(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) { r.sweepInterval = d }
}

// WithStaleOrderAge sets the age threshold for the stale-order sweep.
func WithStaleOrderAge(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) { r.staleAge = d }
}

// WithFullResyncEvery sets how many sweeps pass between full (non-dirty-set)
// reconciliation passes.
func WithFullResyncEvery(n int) ReconcilerOption {
	return func(r *Reconciler) { r.fullResyncEvery = n }
}

// NewReconciler creates a Reconciler over the given store and subscribes it
// to the dispatcher's order and storage-change topics. The subscription
// lives as long as the dispatcher.
func NewReconciler(store record.Store, orders *order.Engine, d *bus.Dispatcher, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		repo:            NewRepository(store),
		orders:          orders,
		registry:        qrprov.NewRegistry(store),
		clock:           clock.System{},
		sweepInterval:   DefaultSweepInterval,
		staleAge:        DefaultStaleOrderAge,
		fullResyncEvery: DefaultFullResyncEvery,
		dirty:           make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	d.Subscribe(bus.TopicOrderCreated, r.handleOrderEvent)
	d.Subscribe(bus.TopicOrderUpdated, r.handleOrderEvent)
	d.Subscribe(bus.TopicOrderCompleted, r.handleOrderCompleted)
	d.Subscribe(bus.TopicStoreChanged, r.handleStoreChanged)
	return r
}

// Run drives the sweeps at the configured interval until the context is
// cancelled. Sweep failures are logged and the loop continues; a broken
// tick is repaired by the next one.
func (r *Reconciler) Run(ctx context.Context) error {
	slog.Info("reconciler starting",
		"sweep_interval", r.sweepInterval,
		"stale_order_age", r.staleAge,
	)
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciler stopping: context cancelled")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				slog.Error("sweep failed", "error", err)
			}
		}
	}
}

// handleOrderEvent is the event fast path: map the status token to a table
// status and update the session. The token table is fixed; unmapped tokens
// (notably "cancelled") leave the table status unchanged and rely on
// order.completed and the sweeps.
func (r *Reconciler) handleOrderEvent(e bus.Event) {
	var table int
	var token, orderID string
	var customers *int
	var revenue *float64

	switch ev := e.(type) {
	case bus.OrderCreated:
		table, token, orderID, customers, revenue = ev.Table, ev.Status, ev.OrderID, ev.Customers, ev.Revenue
	case bus.OrderUpdated:
		table, token, orderID, customers, revenue = ev.Table, ev.Status, ev.OrderID, ev.Customers, ev.Revenue
	default:
		return
	}

	if err := r.ApplyOrderEvent(context.Background(), table, token, orderID, customers, revenue); err != nil {
		slog.Error("apply order event failed",
			"table", table,
			"token", token,
			"order_id", orderID,
			"error", err,
		)
	}
}

func (r *Reconciler) handleOrderCompleted(e bus.Event) {
	ev, ok := e.(bus.OrderCompleted)
	if !ok {
		return
	}
	if err := r.applyCompleted(context.Background(), ev.Table, ev.OrderID); err != nil {
		slog.Error("apply order completion failed",
			"table", ev.Table,
			"order_id", ev.OrderID,
			"error", err,
		)
	}
}

// handleStoreChanged reacts to the storage-change channel. A mutation of
// the orders collection is only a hint that something changed; the next
// sweep does a full pass rather than trusting the hint's scope.
func (r *Reconciler) handleStoreChanged(e bus.Event) {
	ev, ok := e.(bus.StoreChanged)
	if !ok || ev.Key != record.KeyOrders {
		return
	}
	r.mu.Lock()
	r.resync = true
	r.mu.Unlock()
}

// ForceResync makes the next sweep ignore the dirty set and re-check every
// occupied table, as if a storage-change hint had arrived.
func (r *Reconciler) ForceResync() {
	r.mu.Lock()
	r.resync = true
	r.mu.Unlock()
}

// ApplyOrderEvent updates one table session from an order event.
//
// customers and revenue are untrusted hints: whenever orderID resolves to a
// stored order, the counts are re-derived from the order itself (sum of
// item quantities, stored total). A nil hint never clobbers an existing
// value.
func (r *Reconciler) ApplyOrderEvent(ctx context.Context, table int, token, orderID string, customers *int, revenue *float64) error {
	if orderID != "" {
		if o, err := r.orders.GetByID(ctx, orderID); err == nil {
			c := o.CustomerCount()
			v := o.Total
			customers, revenue = &c, &v
		} else if !errors.Is(err, order.ErrOrderNotFound) {
			slog.Warn("order lookup failed, falling back to event payload",
				"order_id", orderID,
				"error", err,
			)
		}
	}

	now := r.clock.Now()
	err := r.mutate(ctx, func(sessions []Session) ([]Session, error) {
		i := indexByTable(sessions, table)
		if i < 0 {
			sessions = append(sessions, newSession(table))
			i = len(sessions) - 1
		}
		s := &sessions[i]

		switch token {
		case bus.TokenCreated, bus.TokenPreparing, bus.TokenReady, bus.TokenServed:
			s.Status = StatusOccupied
			if s.SessionStart == nil {
				t := now
				s.SessionStart = &t
			}
			if orderID != "" {
				id := orderID
				s.CurrentOrder = &id
			}
			if customers != nil {
				s.Customers = *customers
			}
			if revenue != nil {
				s.Revenue = *revenue
			}
			s.touch(now)

		case bus.TokenBilling:
			s.Status = StatusBilling
			if orderID != "" {
				id := orderID
				s.CurrentOrder = &id
			}
			if customers != nil {
				s.Customers = *customers
			}
			if revenue != nil {
				s.Revenue = *revenue
			}
			s.touch(now)

		case bus.TokenPaid:
			// Customers have left; the table needs bussing. Revenue stays
			// attributed to the session until the table is available again.
			s.Status = StatusNeedsCleaning
			s.Customers = 0
			s.CurrentOrder = nil
			s.touch(now)

		case bus.TokenFinished:
			s.reset()

		default:
			// Unmapped token: table status unchanged. Known-good counts
			// still apply.
			if customers != nil {
				s.Customers = *customers
			}
			if revenue != nil {
				s.Revenue = *revenue
			}
		}
		return sessions, nil
	})
	if err != nil {
		return err
	}

	r.markDirty(table)
	return nil
}

// applyCompleted resets a table whose referenced order reached a terminal
// state. The reset is guarded by the order reference so a completion racing
// a freshly placed order can't clear the new session.
func (r *Reconciler) applyCompleted(ctx context.Context, table int, orderID string) error {
	err := r.mutate(ctx, func(sessions []Session) ([]Session, error) {
		i := indexByTable(sessions, table)
		if i < 0 {
			return sessions, nil
		}
		s := &sessions[i]
		if s.CurrentOrder != nil && *s.CurrentOrder == orderID {
			s.reset()
		}
		return sessions, nil
	})
	if err != nil {
		return err
	}
	r.markDirty(table)
	return nil
}

// Materialize idempotently creates one available session per provisioned
// table number. Existing rows keep their occupancy state and nothing is
// ever removed here: tables outlive sessions.
func (r *Reconciler) Materialize(ctx context.Context, tableNumbers []int) error {
	return r.mutate(ctx, func(sessions []Session) ([]Session, error) {
		have := make(map[int]bool, len(sessions))
		for _, s := range sessions {
			have[s.TableNumber] = true
		}
		for _, n := range tableNumbers {
			if !have[n] {
				sessions = append(sessions, newSession(n))
				have[n] = true
			}
		}
		return sessions, nil
	})
}

// MaterializeProvisioned materializes sessions for every table in the
// restaurant's QR provisioning registry.
func (r *Reconciler) MaterializeProvisioned(ctx context.Context, restaurantID string) error {
	numbers, err := r.registry.TableNumbers(ctx, restaurantID)
	if err != nil {
		return err
	}
	return r.Materialize(ctx, numbers)
}

// Reserve marks an available table as reserved. Valid only from available.
func (r *Reconciler) Reserve(ctx context.Context, table int, customerName string, at time.Time, notes string) error {
	return r.mutate(ctx, func(sessions []Session) ([]Session, error) {
		i := indexByTable(sessions, table)
		if i < 0 {
			return nil, ErrTableNotFound
		}
		s := &sessions[i]
		if s.Status != StatusAvailable {
			return nil, &StateError{TableNumber: table, Status: s.Status, Op: "reserve"}
		}
		s.Status = StatusReserved
		s.ReservedBy = customerName
		t := at
		s.ReservedTime = &t
		s.ReservationNotes = notes
		return sessions, nil
	})
}

// MarkClean returns a bussed table to available. Valid only from
// needs-cleaning.
func (r *Reconciler) MarkClean(ctx context.Context, table int) error {
	return r.mutate(ctx, func(sessions []Session) ([]Session, error) {
		i := indexByTable(sessions, table)
		if i < 0 {
			return nil, ErrTableNotFound
		}
		s := &sessions[i]
		if s.Status != StatusNeedsCleaning {
			return nil, &StateError{TableNumber: table, Status: s.Status, Op: "clean"}
		}
		s.reset()
		return sessions, nil
	})
}

// MarkAvailable is the staff override: force-reset the table from any
// state. Its current order, if still open, is force-finished so the order
// and table records can't disagree about who is seated.
func (r *Reconciler) MarkAvailable(ctx context.Context, table int) error {
	var openOrder string
	err := r.mutate(ctx, func(sessions []Session) ([]Session, error) {
		i := indexByTable(sessions, table)
		if i < 0 {
			return nil, ErrTableNotFound
		}
		if cur := sessions[i].CurrentOrder; cur != nil {
			openOrder = *cur
		}
		sessions[i].reset()
		return sessions, nil
	})
	if err != nil {
		return err
	}

	if openOrder != "" {
		if _, err := r.orders.ForceFinish(ctx, openOrder, "Closed by staff override"); err != nil && !errors.Is(err, order.ErrOrderNotFound) {
			return fmt.Errorf("close order for freed table %d: %w", table, err)
		}
	}
	slog.Info("table force-freed", "table", table, "closed_order", openOrder)
	return nil
}

// Sessions returns every table session, sorted by table number.
func (r *Reconciler) Sessions(ctx context.Context) ([]Session, error) {
	sessions, _, err := r.repo.List(ctx)
	return sessions, err
}

// Get returns one table's session or ErrTableNotFound.
func (r *Reconciler) Get(ctx context.Context, table int) (Session, error) {
	sessions, _, err := r.repo.List(ctx)
	if err != nil {
		return Session{}, err
	}
	if i := indexByTable(sessions, table); i >= 0 {
		return sessions[i], nil
	}
	return Session{}, ErrTableNotFound
}

// mutate runs a read-modify-write cycle on the sessions collection,
// re-reading and re-applying on revision conflicts up to replaceRetries.
func (r *Reconciler) mutate(ctx context.Context, fn func([]Session) ([]Session, error)) error {
	for attempt := 0; attempt < replaceRetries; attempt++ {
		sessions, rev, err := r.repo.List(ctx)
		if err != nil {
			return err
		}
		updated, err := fn(sessions)
		if err != nil {
			return err
		}
		if _, err := r.repo.Replace(ctx, updated, rev); err != nil {
			if errors.Is(err, record.ErrRevisionConflict) {
				slog.Debug("sessions write lost revision race, retrying", "attempt", attempt+1)
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("table sessions write: %w", record.ErrRevisionConflict)
}

func (r *Reconciler) markDirty(table int) {
	r.mu.Lock()
	r.dirty[table] = struct{}{}
	r.mu.Unlock()
}

func indexByTable(sessions []Session, table int) int {
	for i := range sessions {
		if sessions[i].TableNumber == table {
			return i
		}
	}
	return -1
}
