// Package record provides the document store backing the order and table
// collections.
//
// Every collection is stored as a single JSON text value under a well-known
// key. There are no transactions spanning keys: each write replaces one
// key's value wholesale. Writers pass back the revision they read so a lost
// race surfaces as ErrRevisionConflict instead of a silent overwrite.
//
// Two implementations exist: Memory (tests, throwaway runs) and SQLite
// (production, local file).
package record

import (
	"context"
	"errors"
)

// Well-known collection keys. The shapes stored under these keys are the
// persisted contract shared with the presentation layer and the QR
// provisioning collaborator.
const (
	KeyOrders        = "orders"
	KeyTableSessions = "tableSessions"

	// KeyQRCodesPrefix prefixes the per-restaurant provisioned-table
	// documents: qrCodes_{restaurantId}.
	KeyQRCodesPrefix = "qrCodes_"

	// Analytics keys are best-effort and purgeable under storage pressure.
	KeyMenuAnalytics = "menuAnalytics"
	KeyTotalRevenue  = "totalRevenue"
	KeyOrderHistory  = "orderHistory"
)

// PurgeableKeys lists keys that may be dropped to reclaim space when a
// write fails. Losing them never affects order or table correctness.
var PurgeableKeys = []string{KeyMenuAnalytics, KeyTotalRevenue, KeyOrderHistory}

// Revision is a per-key write counter used to detect lost updates.
// A key that has never been written has revision 0.
type Revision int64

// ErrRevisionConflict is returned by Replace when the caller's revision no
// longer matches the stored one: another writer got there first. The caller
// should re-read and re-apply.
var ErrRevisionConflict = errors.New("record: revision conflict")

// ChangeFunc receives the key of a mutated record. Handlers run
// synchronously after the write commits; they must not write back into the
// store from inside the callback.
type ChangeFunc func(key string)

// Store is the injected repository interface the engine and reconciler
// depend on. Reads of absent keys return (nil, 0, nil): a missing
// collection is an empty collection.
type Store interface {
	// Read returns the value and revision stored under key.
	Read(ctx context.Context, key string) ([]byte, Revision, error)

	// Replace writes value under key. rev must be the revision returned by
	// the Read this write is based on (0 for a key never written).
	// Returns the new revision, or ErrRevisionConflict.
	Replace(ctx context.Context, key string, value []byte, rev Revision) (Revision, error)

	// Delete removes key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// Keys returns all stored keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Watch registers a change handler. All registered handlers are
	// invoked for every successful Replace and Delete.
	Watch(fn ChangeFunc)

	// Close releases the store. Reads and writes after Close fail.
	Close() error
}
