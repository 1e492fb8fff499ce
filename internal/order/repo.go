package order

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nbekov/dinesync/internal/record"
)

// Repository reads and replaces the orders collection as a whole. The
// revision returned by List must be passed back to Replace so concurrent
// writers surface as record.ErrRevisionConflict.
type Repository struct {
	store record.Store
}

// NewRepository wraps a record store.
func NewRepository(store record.Store) *Repository {
	return &Repository{store: store}
}

// List returns every order and the collection revision. An absent
// collection reads as empty.
func (r *Repository) List(ctx context.Context) ([]Order, record.Revision, error) {
	data, rev, err := r.store.Read(ctx, record.KeyOrders)
	if err != nil {
		return nil, 0, fmt.Errorf("read orders: %w", err)
	}
	if len(data) == 0 {
		return nil, rev, nil
	}
	var orders []Order
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, 0, fmt.Errorf("decode orders: %w", err)
	}
	return orders, rev, nil
}

// Replace overwrites the whole collection at the given revision.
func (r *Repository) Replace(ctx context.Context, orders []Order, rev record.Revision) (record.Revision, error) {
	if orders == nil {
		orders = []Order{}
	}
	data, err := json.Marshal(orders)
	if err != nil {
		return 0, fmt.Errorf("encode orders: %w", err)
	}
	next, err := r.store.Replace(ctx, record.KeyOrders, data, rev)
	if err != nil {
		return 0, fmt.Errorf("write orders: %w", err)
	}
	return next, nil
}
