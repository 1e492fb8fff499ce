// Package qrprov maintains the per-restaurant provisioned-table registry:
// the qrCodes_{restaurantId} document shared with the QR collaborator. The
// reconciler reads it to learn which tables exist; image generation is the
// collaborator's job and never happens here.
package qrprov

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/nbekov/dinesync/internal/clock"
	"github.com/nbekov/dinesync/internal/record"
)

// Entry describes one provisioned table.
type Entry struct {
	URL          string    `json:"url"`
	TableNumber  int       `json:"tableNumber"`
	RestaurantID string    `json:"restaurantId"`
	GeneratedAt  time.Time `json:"generatedAt"`
	ImageDataURL string    `json:"imageDataUrl,omitempty"`
}

// Document is the persisted shape under qrCodes_{restaurantId}.
type Document struct {
	RestaurantID string    `json:"restaurantId"`
	QRCodes      []Entry   `json:"qrCodes"`
	SavedAt      time.Time `json:"savedAt"`
}

// Registry reads and writes provisioned-table documents.
type Registry struct {
	store record.Store
	clock clock.Clock
}

// NewRegistry wraps a record store.
func NewRegistry(store record.Store) *Registry {
	return &Registry{store: store, clock: clock.System{}}
}

// NewRegistryWithClock is used by tests that pin time.
func NewRegistryWithClock(store record.Store, c clock.Clock) *Registry {
	return &Registry{store: store, clock: c}
}

// Key returns the record key for a restaurant's document.
func Key(restaurantID string) string {
	return record.KeyQRCodesPrefix + restaurantID
}

// Document returns the stored document for a restaurant. The second return
// is false when no tables have been provisioned yet.
func (r *Registry) Document(ctx context.Context, restaurantID string) (Document, bool, error) {
	data, _, err := r.store.Read(ctx, Key(restaurantID))
	if err != nil {
		return Document{}, false, fmt.Errorf("read qr registry: %w", err)
	}
	if len(data) == 0 {
		return Document{}, false, nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, false, fmt.Errorf("decode qr registry: %w", err)
	}
	return doc, true, nil
}

// TableNumbers returns the provisioned table numbers, sorted.
func (r *Registry) TableNumbers(ctx context.Context, restaurantID string) ([]int, error) {
	doc, ok, err := r.Document(ctx, restaurantID)
	if err != nil || !ok {
		return nil, err
	}
	var numbers []int
	for _, e := range doc.QRCodes {
		numbers = append(numbers, e.TableNumber)
	}
	sort.Ints(numbers)
	return numbers, nil
}

// Provision adds entries for the given table numbers, merging with any
// already provisioned. Idempotent: re-provisioning an existing table keeps
// its original entry. Tables are never removed.
func (r *Registry) Provision(ctx context.Context, restaurantID, baseURL string, tableNumbers []int) (Document, error) {
	data, rev, err := r.store.Read(ctx, Key(restaurantID))
	if err != nil {
		return Document{}, fmt.Errorf("read qr registry: %w", err)
	}
	doc := Document{RestaurantID: restaurantID}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return Document{}, fmt.Errorf("decode qr registry: %w", err)
		}
	}

	existing := make(map[int]bool, len(doc.QRCodes))
	for _, e := range doc.QRCodes {
		existing[e.TableNumber] = true
	}

	now := r.clock.Now()
	for _, n := range tableNumbers {
		if existing[n] {
			continue
		}
		doc.QRCodes = append(doc.QRCodes, Entry{
			URL:          fmt.Sprintf("%s/order?restaurant=%s&table=%d", baseURL, restaurantID, n),
			TableNumber:  n,
			RestaurantID: restaurantID,
			GeneratedAt:  now,
		})
		existing[n] = true
	}
	sort.Slice(doc.QRCodes, func(i, j int) bool {
		return doc.QRCodes[i].TableNumber < doc.QRCodes[j].TableNumber
	})
	doc.SavedAt = now

	out, err := json.Marshal(doc)
	if err != nil {
		return Document{}, fmt.Errorf("encode qr registry: %w", err)
	}
	if _, err := r.store.Replace(ctx, Key(restaurantID), out, rev); err != nil {
		return Document{}, fmt.Errorf("write qr registry: %w", err)
	}
	return doc, nil
}
