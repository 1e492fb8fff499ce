package analytics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbekov/dinesync/internal/bus"
	"github.com/nbekov/dinesync/internal/clock"
	"github.com/nbekov/dinesync/internal/order"
	"github.com/nbekov/dinesync/internal/record"
)

var testBase = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store  *record.Memory
	engine *order.Engine
	clock  *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := clock.NewFake(testBase)
	store := record.NewMemory()
	d := bus.NewDispatcher()
	engine := order.NewEngine(store, d,
		order.WithClock(fake),
		order.WithIDGenerator(&order.SequenceGenerator{}),
	)
	NewRecorder(store, engine, d, fake)
	return &fixture{store: store, engine: engine, clock: fake}
}

func (f *fixture) readJSON(t *testing.T, key string, out any) bool {
	t.Helper()
	data, _, err := f.store.Read(context.Background(), key)
	require.NoError(t, err)
	if len(data) == 0 {
		return false
	}
	require.NoError(t, json.Unmarshal(data, out))
	return true
}

func placeAndFinish(t *testing.T, f *fixture, table int, items []order.Item) order.Order {
	t.Helper()
	ctx := context.Background()
	o, err := f.engine.PlaceOrder(ctx, "brasserie-7", table, items)
	require.NoError(t, err)
	for _, next := range []order.Status{
		order.StatusPreparing, order.StatusReady, order.StatusServed,
		order.StatusBillRequested, order.StatusFinished,
	} {
		_, err = f.engine.Transition(ctx, o.ID, next, "")
		require.NoError(t, err)
	}
	return o
}

func TestRecorder_FinishedOrderUpdatesCounters(t *testing.T) {
	f := newFixture(t)

	items := []order.Item{
		{ItemID: "paneer-tikka", Name: "Paneer Tikka", UnitPrice: 120, Quantity: 1, Kind: "dish"},
		{ItemID: "garlic-naan", Name: "Garlic Naan", UnitPrice: 60, Quantity: 3, Kind: "dish"},
	}
	o := placeAndFinish(t, f, 2, items)

	var summary RevenueSummary
	require.True(t, f.readJSON(t, record.KeyTotalRevenue, &summary))
	assert.Equal(t, 315.0, summary.Total)
	assert.Equal(t, 1, summary.Orders)
	assert.Equal(t, testBase, summary.UpdatedAt)

	var history []HistoryEntry
	require.True(t, f.readJSON(t, record.KeyOrderHistory, &history))
	require.Len(t, history, 1)
	assert.Equal(t, o.ID, history[0].OrderID)
	assert.Equal(t, 2, history[0].TableNumber)
	assert.Equal(t, "FINISHED", history[0].Status)

	var stats map[string]ItemStats
	require.True(t, f.readJSON(t, record.KeyMenuAnalytics, &stats))
	require.Len(t, stats, 2)
	assert.Equal(t, 3, stats["garlic-naan"].Quantity)
	assert.Equal(t, 180.0, stats["garlic-naan"].Revenue)
	assert.Equal(t, 1, stats["paneer-tikka"].Orders)
}

func TestRecorder_AccumulatesAcrossOrders(t *testing.T) {
	f := newFixture(t)

	items := []order.Item{{ItemID: "chai", Name: "Masala Chai", UnitPrice: 40, Quantity: 2, Kind: "drink"}}
	placeAndFinish(t, f, 1, items)
	placeAndFinish(t, f, 2, items)

	var summary RevenueSummary
	require.True(t, f.readJSON(t, record.KeyTotalRevenue, &summary))
	assert.Equal(t, 168.0, summary.Total, "two orders of 84.00 each")
	assert.Equal(t, 2, summary.Orders)

	var stats map[string]ItemStats
	require.True(t, f.readJSON(t, record.KeyMenuAnalytics, &stats))
	assert.Equal(t, 2, stats["chai"].Orders)
	assert.Equal(t, 4, stats["chai"].Quantity)
	assert.Equal(t, 160.0, stats["chai"].Revenue)
}

func TestRecorder_CancelledOrderIsHistoryOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.engine.PlaceOrder(ctx, "brasserie-7", 3, []order.Item{
		{ItemID: "chai", Name: "Masala Chai", UnitPrice: 40, Quantity: 1, Kind: "drink"},
	})
	require.NoError(t, err)
	_, err = f.engine.Transition(ctx, o.ID, order.StatusCancelled, "Guest left")
	require.NoError(t, err)

	var history []HistoryEntry
	require.True(t, f.readJSON(t, record.KeyOrderHistory, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "CANCELLED", history[0].Status)

	var summary RevenueSummary
	assert.False(t, f.readJSON(t, record.KeyTotalRevenue, &summary), "no revenue for cancelled orders")
}

func TestRecorder_RecoversFromCorruptedCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.Replace(ctx, record.KeyTotalRevenue, []byte("{not json"), 0)
	require.NoError(t, err)

	items := []order.Item{{ItemID: "chai", Name: "Masala Chai", UnitPrice: 40, Quantity: 1, Kind: "drink"}}
	placeAndFinish(t, f, 1, items)

	var summary RevenueSummary
	require.True(t, f.readJSON(t, record.KeyTotalRevenue, &summary))
	assert.Equal(t, 42.0, summary.Total, "counter restarts from zero after corruption")
	assert.Equal(t, 1, summary.Orders)
}
