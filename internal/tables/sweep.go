package tables

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nbekov/dinesync/internal/order"
)

// Sweep runs one reconciliation pass: the completed-order sweep over the
// dirty set (or everything, on a full-resync tick) followed by the
// stale-order sweep. Safe to call from outside Run; a pass over consistent
// state writes nothing (idempotent).
func (r *Reconciler) Sweep(ctx context.Context) error {
	r.mu.Lock()
	r.ticks++
	full := r.resync || (r.fullResyncEvery > 0 && r.ticks%r.fullResyncEvery == 0)
	dirty := r.dirty
	r.dirty = make(map[int]struct{})
	r.resync = false
	r.mu.Unlock()

	completedErr := r.sweepCompleted(ctx, full, dirty)
	if completedErr != nil {
		// Put the drained tables back so the next tick re-checks them.
		r.mu.Lock()
		for t := range dirty {
			r.dirty[t] = struct{}{}
		}
		r.resync = r.resync || full
		r.mu.Unlock()
	}

	staleErr := r.sweepStale(ctx)
	return errors.Join(completedErr, staleErr)
}

// sweepCompleted repairs occupied tables whose referenced order is gone or
// terminal but whose terminal event was dropped. With full=false only
// tables flagged dirty since the last pass are checked.
func (r *Reconciler) sweepCompleted(ctx context.Context, full bool, dirty map[int]struct{}) error {
	sessions, _, err := r.repo.List(ctx)
	if err != nil {
		return err
	}

	orders, err := r.orders.All(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]order.Order, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}

	stale := make(map[int]struct{})
	for _, s := range sessions {
		if s.Status != StatusOccupied || s.CurrentOrder == nil {
			continue
		}
		if !full {
			if _, ok := dirty[s.TableNumber]; !ok {
				continue
			}
		}
		o, ok := byID[*s.CurrentOrder]
		if !ok || o.Status.Terminal() {
			stale[s.TableNumber] = struct{}{}
		}
	}
	if len(stale) == 0 {
		return nil
	}

	err = r.mutate(ctx, func(sessions []Session) ([]Session, error) {
		for i := range sessions {
			s := &sessions[i]
			if _, ok := stale[s.TableNumber]; !ok {
				continue
			}
			// Re-check under the fresh read: the table may have been
			// re-seated between our scan and this write.
			if s.Status != StatusOccupied || s.CurrentOrder == nil {
				continue
			}
			o, found := byID[*s.CurrentOrder]
			if !found || o.Status.Terminal() {
				slog.Info("resetting table with completed order",
					"table", s.TableNumber,
					"order_id", *s.CurrentOrder,
				)
				s.reset()
			}
		}
		return sessions, nil
	})
	return err
}

// sweepStale is the terminal safety net: any order past the age threshold
// that never reached a terminal state is force-finished and its table
// reset. Catches orders no event ever closed out.
func (r *Reconciler) sweepStale(ctx context.Context) error {
	orders, err := r.orders.All(ctx)
	if err != nil {
		return err
	}

	cutoff := r.clock.Now().Add(-r.staleAge)
	var errs []error
	for _, o := range orders {
		if o.Status.Terminal() || o.CreatedAt.After(cutoff) {
			continue
		}
		slog.Warn("force-closing stale order",
			"order_id", o.ID,
			"table", o.TableNumber,
			"status", o.Status,
			"created_at", o.CreatedAt,
		)
		if _, err := r.orders.ForceFinish(ctx, o.ID, "Auto-closed: order exceeded session age limit"); err != nil {
			errs = append(errs, err)
			continue
		}
		// ForceFinish publishes the terminal events, but the reset must not
		// depend on the fabric delivering them.
		if err := r.applyCompleted(ctx, o.TableNumber, o.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
