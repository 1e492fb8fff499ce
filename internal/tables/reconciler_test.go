package tables

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbekov/dinesync/internal/bus"
	"github.com/nbekov/dinesync/internal/clock"
	"github.com/nbekov/dinesync/internal/order"
	"github.com/nbekov/dinesync/internal/qrprov"
	"github.com/nbekov/dinesync/internal/record"
)

var testBase = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

type env struct {
	store      *record.Memory
	dispatcher *bus.Dispatcher
	engine     *order.Engine
	rec        *Reconciler
	clock      *clock.Fake
}

func newTestEnv(t *testing.T, opts ...ReconcilerOption) *env {
	t.Helper()
	fake := clock.NewFake(testBase)
	store := record.NewMemory()
	d := bus.NewDispatcher()
	engine := order.NewEngine(store, d,
		order.WithClock(fake),
		order.WithIDGenerator(&order.SequenceGenerator{}),
	)
	all := append([]ReconcilerOption{WithClock(fake), WithFullResyncEvery(1)}, opts...)
	rec := NewReconciler(store, engine, d, all...)
	return &env{store: store, dispatcher: d, engine: engine, rec: rec, clock: fake}
}

func testItems() []order.Item {
	return []order.Item{
		{ItemID: "paneer-tikka", Name: "Paneer Tikka", UnitPrice: 120, Quantity: 1, Kind: "dish"},
		{ItemID: "garlic-naan", Name: "Garlic Naan", UnitPrice: 60, Quantity: 3, Kind: "dish"},
	}
}

func (e *env) mustGet(t *testing.T, table int) Session {
	t.Helper()
	s, err := e.rec.Get(context.Background(), table)
	require.NoError(t, err)
	return s
}

func TestReconciler_PlacedOrderOccupiesTable(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	o, err := e.engine.PlaceOrder(ctx, "brasserie-7", 2, testItems())
	require.NoError(t, err)

	s := e.mustGet(t, 2)
	assert.Equal(t, StatusOccupied, s.Status)
	assert.Equal(t, 4, s.Customers, "derived from item quantities")
	assert.Equal(t, 315.0, s.Revenue, "derived from the stored total")
	require.NotNil(t, s.CurrentOrder)
	assert.Equal(t, o.ID, *s.CurrentOrder)
	require.NotNil(t, s.SessionStart)
	assert.Equal(t, testBase, *s.SessionStart)
}

func TestReconciler_LifecycleFollowsOrder(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	o, err := e.engine.PlaceOrder(ctx, "brasserie-7", 2, testItems())
	require.NoError(t, err)

	steps := []struct {
		to   order.Status
		want Status
	}{
		{order.StatusPreparing, StatusOccupied},
		{order.StatusReady, StatusOccupied},
		{order.StatusServed, StatusOccupied},
		{order.StatusBillRequested, StatusBilling},
		{order.StatusFinished, StatusAvailable},
	}
	for _, step := range steps {
		e.clock.Advance(time.Minute)
		_, err = e.engine.Transition(ctx, o.ID, step.to, "")
		require.NoError(t, err)
		assert.Equal(t, step.want, e.mustGet(t, 2).Status, "after %s", step.to)
	}

	s := e.mustGet(t, 2)
	assert.Zero(t, s.Customers)
	assert.Nil(t, s.CurrentOrder)
	assert.Zero(t, s.Revenue)
	assert.Nil(t, s.SessionStart)
}

func TestReconciler_NilCustomersDoesNotClobber(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	customers := 3
	require.NoError(t, e.rec.ApplyOrderEvent(ctx, 4, bus.TokenCreated, "", &customers, nil))
	require.Equal(t, 3, e.mustGet(t, 4).Customers)

	// A transition event that doesn't know the count must not zero it out.
	require.NoError(t, e.rec.ApplyOrderEvent(ctx, 4, bus.TokenPreparing, "", nil, nil))

	s := e.mustGet(t, 4)
	assert.Equal(t, 3, s.Customers)
	assert.Equal(t, StatusOccupied, s.Status)
}

func TestReconciler_FinishedResetsUnconditionally(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	customers := 2
	revenue := 440.0
	require.NoError(t, e.rec.ApplyOrderEvent(ctx, 6, bus.TokenBilling, "ord_x", &customers, &revenue))
	require.Equal(t, StatusBilling, e.mustGet(t, 6).Status)

	require.NoError(t, e.rec.ApplyOrderEvent(ctx, 6, bus.TokenFinished, "ord_x", nil, nil))

	s := e.mustGet(t, 6)
	assert.Equal(t, StatusAvailable, s.Status)
	assert.Zero(t, s.Customers)
	assert.Nil(t, s.CurrentOrder)
	assert.Zero(t, s.Revenue)
}

func TestReconciler_PaidMeansNeedsCleaning(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	customers := 2
	revenue := 120.0
	require.NoError(t, e.rec.ApplyOrderEvent(ctx, 3, bus.TokenCreated, "ord_x", &customers, &revenue))
	require.NoError(t, e.rec.ApplyOrderEvent(ctx, 3, bus.TokenPaid, "", nil, nil))

	s := e.mustGet(t, 3)
	assert.Equal(t, StatusNeedsCleaning, s.Status)
	assert.Zero(t, s.Customers, "customers have left")
	assert.Nil(t, s.CurrentOrder)
	assert.Equal(t, 120.0, s.Revenue, "revenue stays until the table is available again")
}

func TestReconciler_UnmappedTokenLeavesStatus(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	customers := 2
	require.NoError(t, e.rec.ApplyOrderEvent(ctx, 3, bus.TokenCreated, "ord_x", &customers, nil))

	require.NoError(t, e.rec.ApplyOrderEvent(ctx, 3, "cancelled", "", nil, nil))

	s := e.mustGet(t, 3)
	assert.Equal(t, StatusOccupied, s.Status, "unmapped token is a table-status no-op")
}

func TestReconciler_EventCountsYieldToOrderEntity(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	o, err := e.engine.PlaceOrder(ctx, "brasserie-7", 2, testItems())
	require.NoError(t, err)

	// A caller copying stale counts onto the event is overruled by the
	// order record itself.
	wrong := 99
	wrongRevenue := 1.0
	require.NoError(t, e.rec.ApplyOrderEvent(ctx, 2, bus.TokenPreparing, o.ID, &wrong, &wrongRevenue))

	s := e.mustGet(t, 2)
	assert.Equal(t, 4, s.Customers)
	assert.Equal(t, 315.0, s.Revenue)
}

func TestReconciler_CompletionGuardedByOrderReference(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	customers := 2
	require.NoError(t, e.rec.ApplyOrderEvent(ctx, 2, bus.TokenCreated, "ord_new", &customers, nil))

	// A completion for an order this table no longer references must not
	// clear the newer session.
	e.dispatcher.Publish(bus.OrderCompleted{Table: 2, OrderID: "ord_old"})
	assert.Equal(t, StatusOccupied, e.mustGet(t, 2).Status)

	e.dispatcher.Publish(bus.OrderCompleted{Table: 2, OrderID: "ord_new"})
	assert.Equal(t, StatusAvailable, e.mustGet(t, 2).Status)
}

func TestMaterialize_IdempotentAndPreserving(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, e.rec.Materialize(ctx, []int{1, 2, 3}))
	sessions, err := e.rec.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 3)

	// Occupy table 2, then re-materialize: the session must survive and
	// nothing is ever removed.
	customers := 2
	require.NoError(t, e.rec.ApplyOrderEvent(ctx, 2, bus.TokenCreated, "ord_x", &customers, nil))
	require.NoError(t, e.rec.Materialize(ctx, []int{1, 2, 3, 4}))

	sessions, err = e.rec.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 4)
	assert.Equal(t, StatusOccupied, e.mustGet(t, 2).Status)
}

func TestMaterializeProvisioned_ReadsQRRegistry(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	registry := qrprov.NewRegistryWithClock(e.store, e.clock)
	_, err := registry.Provision(ctx, "brasserie-7", "https://order.local", []int{1, 2, 5})
	require.NoError(t, err)

	require.NoError(t, e.rec.MaterializeProvisioned(ctx, "brasserie-7"))

	sessions, err := e.rec.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, 5, sessions[2].TableNumber)
}

func TestReserve_OnlyFromAvailable(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, e.rec.Materialize(ctx, []int{1}))
	at := testBase.Add(2 * time.Hour)
	require.NoError(t, e.rec.Reserve(ctx, 1, "Amira", at, "window seat"))

	s := e.mustGet(t, 1)
	assert.Equal(t, StatusReserved, s.Status)
	assert.Equal(t, "Amira", s.ReservedBy)
	require.NotNil(t, s.ReservedTime)
	assert.Equal(t, at, *s.ReservedTime)
	assert.Equal(t, "window seat", s.ReservationNotes)

	// Reserved tables can't be double-booked.
	err := e.rec.Reserve(ctx, 1, "Bruno", at, "")
	assert.True(t, IsStateError(err))

	err = e.rec.Reserve(ctx, 9, "Bruno", at, "")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestMarkClean_OnlyFromNeedsCleaning(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, e.rec.Materialize(ctx, []int{1}))

	err := e.rec.MarkClean(ctx, 1)
	assert.True(t, IsStateError(err), "available table has nothing to clean")

	require.NoError(t, e.rec.ApplyOrderEvent(ctx, 1, bus.TokenPaid, "", nil, nil))
	require.NoError(t, e.rec.MarkClean(ctx, 1))
	assert.Equal(t, StatusAvailable, e.mustGet(t, 1).Status)
}

func TestMarkAvailable_ClosesOpenOrder(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	o, err := e.engine.PlaceOrder(ctx, "brasserie-7", 2, testItems())
	require.NoError(t, err)
	require.Equal(t, StatusOccupied, e.mustGet(t, 2).Status)

	require.NoError(t, e.rec.MarkAvailable(ctx, 2))

	s := e.mustGet(t, 2)
	assert.Equal(t, StatusAvailable, s.Status)
	assert.Nil(t, s.CurrentOrder)

	got, err := e.engine.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusFinished, got.Status, "staff override closes the order too")
	last := got.StatusHistory[len(got.StatusHistory)-1]
	assert.Equal(t, "Closed by staff override", last.Note)
}

func TestGet_UnknownTable(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.rec.Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrTableNotFound)
}
