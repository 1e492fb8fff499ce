package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nbekov/dinesync/internal/bus"
	"github.com/nbekov/dinesync/internal/clock"
	"github.com/nbekov/dinesync/internal/record"
)

// replaceRetries bounds how many times a mutation re-reads and re-applies
// after losing a revision race to another writer (typically a sweep).
const replaceRetries = 3

// Engine owns the Order collection and its state machine. It is the only
// writer of order records; the table reconciler calls back into it
// (ForceFinish) rather than editing orders itself.
type Engine struct {
	repo       *Repository
	dispatcher *bus.Dispatcher
	clock      clock.Clock
	ids        IDGenerator
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock. Used by tests.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDGenerator overrides order ID generation. Used by tests.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// NewEngine creates an Engine over the given store, publishing lifecycle
// events on the given dispatcher.
func NewEngine(store record.Store, d *bus.Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		repo:       NewRepository(store),
		dispatcher: d,
		clock:      clock.System{},
		ids:        UUIDGenerator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PlaceOrder validates and persists a new order in status ORDERED, then
// publishes order.created. Subtotal, tax and total are computed here, once;
// later transitions never touch them.
func (e *Engine) PlaceOrder(ctx context.Context, restaurantID string, tableNumber int, items []Item) (Order, error) {
	if len(items) == 0 {
		return Order{}, ErrNoItems
	}

	now := e.clock.Now()
	subtotal := 0.0
	for _, it := range items {
		subtotal += it.UnitPrice * float64(it.Quantity)
	}
	subtotal = RoundCents(subtotal)
	tax := RoundCents(subtotal * TaxRate)

	o := Order{
		ID:           e.ids.NewOrderID(now),
		RestaurantID: restaurantID,
		TableNumber:  tableNumber,
		Items:        items,
		Subtotal:     subtotal,
		TaxAmount:    tax,
		Total:        RoundCents(subtotal + tax),
		Status:       StatusOrdered,
		StatusHistory: []HistoryEntry{
			{Status: StatusOrdered, Timestamp: now, Note: "Order placed"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := e.mutate(ctx, func(orders []Order) ([]Order, error) {
		return append(orders, o), nil
	})
	if err != nil {
		return Order{}, err
	}

	slog.Info("order placed",
		"order_id", o.ID,
		"restaurant_id", o.RestaurantID,
		"table", o.TableNumber,
		"total", o.Total,
	)

	customers := o.CustomerCount()
	revenue := o.Total
	e.dispatcher.Publish(bus.OrderCreated{
		Table:     o.TableNumber,
		Status:    bus.TokenCreated,
		OrderID:   o.ID,
		Customers: &customers,
		Revenue:   &revenue,
	})
	return o, nil
}

// Transition moves an order to a new status, appends the history entry and
// publishes order.updated (plus order.completed for terminal states).
//
// Legality is enforced by the transition table: an order that is FINISHED
// stays FINISHED, and skipping states is rejected with a TransitionError.
func (e *Engine) Transition(ctx context.Context, orderID string, to Status, note string) (Order, error) {
	if !to.Valid() {
		return Order{}, fmt.Errorf("unknown status %q", to)
	}
	if note == "" {
		note = fmt.Sprintf("Status changed to %s", to)
	}

	var updated Order
	err := e.mutate(ctx, func(orders []Order) ([]Order, error) {
		i := indexByID(orders, orderID)
		if i < 0 {
			return nil, ErrOrderNotFound
		}
		if !CanTransition(orders[i].Status, to) {
			return nil, &TransitionError{OrderID: orderID, From: orders[i].Status, To: to}
		}
		applyTransition(&orders[i], to, note, e.clock)
		updated = orders[i]
		return orders, nil
	})
	if err != nil {
		return Order{}, err
	}

	slog.Info("order transitioned",
		"order_id", updated.ID,
		"status", updated.Status,
		"table", updated.TableNumber,
	)
	e.publishUpdate(updated)
	return updated, nil
}

// ForceFinish closes an order regardless of its current state. This is the
// escape hatch for the stale-order sweep and the staff table override; the
// appended history entry records the reason. Already-terminal orders are
// returned unchanged and publish nothing.
func (e *Engine) ForceFinish(ctx context.Context, orderID, note string) (Order, error) {
	if note == "" {
		note = "Order closed"
	}

	var updated Order
	var already bool
	err := e.mutate(ctx, func(orders []Order) ([]Order, error) {
		i := indexByID(orders, orderID)
		if i < 0 {
			return nil, ErrOrderNotFound
		}
		if orders[i].Status.Terminal() {
			updated, already = orders[i], true
			return orders, nil
		}
		applyTransition(&orders[i], StatusFinished, note, e.clock)
		updated = orders[i]
		return orders, nil
	})
	if err != nil {
		return Order{}, err
	}
	if already {
		return updated, nil
	}

	slog.Info("order force-finished", "order_id", updated.ID, "note", note)
	e.publishUpdate(updated)
	return updated, nil
}

// GetByID returns one order or ErrOrderNotFound.
func (e *Engine) GetByID(ctx context.Context, orderID string) (Order, error) {
	orders, _, err := e.repo.List(ctx)
	if err != nil {
		return Order{}, err
	}
	if i := indexByID(orders, orderID); i >= 0 {
		return orders[i], nil
	}
	return Order{}, ErrOrderNotFound
}

// All returns every order in the collection. Used by the sweeps.
func (e *Engine) All(ctx context.Context) ([]Order, error) {
	orders, _, err := e.repo.List(ctx)
	return orders, err
}

// ListByRestaurant returns all orders for one restaurant, newest last.
func (e *Engine) ListByRestaurant(ctx context.Context, restaurantID string) ([]Order, error) {
	orders, _, err := e.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Order
	for _, o := range orders {
		if o.RestaurantID == restaurantID {
			out = append(out, o)
		}
	}
	return out, nil
}

// ListActiveByTable returns the non-terminal orders for one table. An order
// counts as active until it reaches FINISHED or CANCELLED; a served order
// still occupies its table and blocks duplicate placement.
func (e *Engine) ListActiveByTable(ctx context.Context, restaurantID string, tableNumber int) ([]Order, error) {
	orders, _, err := e.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Order
	for _, o := range orders {
		if o.RestaurantID == restaurantID && o.TableNumber == tableNumber && !o.Status.Terminal() {
			out = append(out, o)
		}
	}
	return out, nil
}

// mutate runs a read-modify-write cycle on the orders collection,
// re-reading and re-applying on revision conflicts up to replaceRetries.
func (e *Engine) mutate(ctx context.Context, fn func([]Order) ([]Order, error)) error {
	for attempt := 0; attempt < replaceRetries; attempt++ {
		orders, rev, err := e.repo.List(ctx)
		if err != nil {
			return err
		}
		updated, err := fn(orders)
		if err != nil {
			return err
		}
		if _, err := e.repo.Replace(ctx, updated, rev); err != nil {
			if errors.Is(err, record.ErrRevisionConflict) {
				slog.Debug("orders write lost revision race, retrying", "attempt", attempt+1)
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("orders write: %w", record.ErrRevisionConflict)
}

// publishUpdate emits order.updated with customers and revenue derived from
// the order itself, plus order.completed when the order just went terminal.
func (e *Engine) publishUpdate(o Order) {
	customers := o.CustomerCount()
	revenue := o.Total
	e.dispatcher.Publish(bus.OrderUpdated{
		Table:     o.TableNumber,
		Status:    o.Status.Token(),
		OrderID:   o.ID,
		Customers: &customers,
		Revenue:   &revenue,
	})
	if o.Status.Terminal() {
		e.dispatcher.Publish(bus.OrderCompleted{Table: o.TableNumber, OrderID: o.ID})
	}
}

func applyTransition(o *Order, to Status, note string, c clock.Clock) {
	now := c.Now()
	o.Status = to
	o.StatusHistory = append(o.StatusHistory, HistoryEntry{
		Status:    to,
		Timestamp: now,
		Note:      note,
	})
	o.UpdatedAt = now
}

func indexByID(orders []Order, id string) int {
	for i := range orders {
		if orders[i].ID == id {
			return i
		}
	}
	return -1
}
