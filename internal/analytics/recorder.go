// Package analytics maintains the best-effort aggregate counters. The core
// never reads these back for any decision: a lost or lagging update here is
// acceptable, and the store may purge these keys under pressure.
package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nbekov/dinesync/internal/bus"
	"github.com/nbekov/dinesync/internal/clock"
	"github.com/nbekov/dinesync/internal/order"
	"github.com/nbekov/dinesync/internal/record"
)

// RevenueSummary is the shape stored under totalRevenue.
type RevenueSummary struct {
	Total     float64   `json:"total"`
	Orders    int       `json:"orders"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HistoryEntry is one line of the orderHistory log.
type HistoryEntry struct {
	OrderID     string    `json:"orderId"`
	TableNumber int       `json:"tableNumber"`
	Total       float64   `json:"total"`
	Status      string    `json:"status"`
	CompletedAt time.Time `json:"completedAt"`
}

// ItemStats aggregates per-menu-item figures under menuAnalytics,
// keyed by item ID.
type ItemStats struct {
	Name     string  `json:"name"`
	Orders   int     `json:"orders"`
	Quantity int     `json:"quantity"`
	Revenue  float64 `json:"revenue"`
}

// Recorder listens for completed orders and updates the counters.
type Recorder struct {
	store  record.Store
	orders *order.Engine
	clock  clock.Clock
}

// NewRecorder creates a Recorder and subscribes it to order.completed.
func NewRecorder(store record.Store, orders *order.Engine, d *bus.Dispatcher, c clock.Clock) *Recorder {
	r := &Recorder{store: store, orders: orders, clock: c}
	d.Subscribe(bus.TopicOrderCompleted, r.handleCompleted)
	return r
}

// handleCompleted records one terminal order. Every failure is logged and
// dropped: counters lag rather than block the lifecycle.
func (r *Recorder) handleCompleted(e bus.Event) {
	ev, ok := e.(bus.OrderCompleted)
	if !ok {
		return
	}
	ctx := context.Background()
	o, err := r.orders.GetByID(ctx, ev.OrderID)
	if err != nil {
		slog.Warn("analytics: completed order not readable", "order_id", ev.OrderID, "error", err)
		return
	}

	// Cancelled orders show up in history but contribute no revenue.
	if err := r.appendHistory(ctx, o); err != nil {
		slog.Warn("analytics: history update failed", "order_id", o.ID, "error", err)
	}
	if o.Status != order.StatusFinished {
		return
	}
	if err := r.addRevenue(ctx, o); err != nil {
		slog.Warn("analytics: revenue update failed", "order_id", o.ID, "error", err)
	}
	if err := r.addItemStats(ctx, o); err != nil {
		slog.Warn("analytics: menu stats update failed", "order_id", o.ID, "error", err)
	}
}

func (r *Recorder) addRevenue(ctx context.Context, o order.Order) error {
	data, rev, err := r.store.Read(ctx, record.KeyTotalRevenue)
	if err != nil {
		return err
	}
	var summary RevenueSummary
	if len(data) > 0 {
		if err := json.Unmarshal(data, &summary); err != nil {
			// Corrupted counter: start over rather than fail forever.
			slog.Warn("analytics: resetting corrupted revenue summary", "error", err)
			summary = RevenueSummary{}
		}
	}
	summary.Total = order.RoundCents(summary.Total + o.Total)
	summary.Orders++
	summary.UpdatedAt = r.clock.Now()

	out, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	_, err = r.store.Replace(ctx, record.KeyTotalRevenue, out, rev)
	return err
}

func (r *Recorder) appendHistory(ctx context.Context, o order.Order) error {
	data, rev, err := r.store.Read(ctx, record.KeyOrderHistory)
	if err != nil {
		return err
	}
	var history []HistoryEntry
	if len(data) > 0 {
		if err := json.Unmarshal(data, &history); err != nil {
			slog.Warn("analytics: resetting corrupted order history", "error", err)
			history = nil
		}
	}
	history = append(history, HistoryEntry{
		OrderID:     o.ID,
		TableNumber: o.TableNumber,
		Total:       o.Total,
		Status:      string(o.Status),
		CompletedAt: r.clock.Now(),
	})

	out, err := json.Marshal(history)
	if err != nil {
		return err
	}
	_, err = r.store.Replace(ctx, record.KeyOrderHistory, out, rev)
	return err
}

func (r *Recorder) addItemStats(ctx context.Context, o order.Order) error {
	data, rev, err := r.store.Read(ctx, record.KeyMenuAnalytics)
	if err != nil {
		return err
	}
	stats := make(map[string]ItemStats)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &stats); err != nil {
			slog.Warn("analytics: resetting corrupted menu stats", "error", err)
			stats = make(map[string]ItemStats)
		}
	}
	for _, it := range o.Items {
		s := stats[it.ItemID]
		s.Name = it.Name
		s.Orders++
		s.Quantity += it.Quantity
		s.Revenue = order.RoundCents(s.Revenue + it.UnitPrice*float64(it.Quantity))
		stats[it.ItemID] = s
	}

	out, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	_, err = r.store.Replace(ctx, record.KeyMenuAnalytics, out, rev)
	return err
}
