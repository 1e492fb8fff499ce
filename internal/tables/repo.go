package tables

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/nbekov/dinesync/internal/record"
)

// Repository reads and replaces the tableSessions collection as a whole,
// mirroring the orders repository. Sessions are kept sorted by table number
// so serialized output is stable.
type Repository struct {
	store record.Store
}

// NewRepository wraps a record store.
func NewRepository(store record.Store) *Repository {
	return &Repository{store: store}
}

// List returns every session and the collection revision. An absent
// collection reads as empty.
func (r *Repository) List(ctx context.Context) ([]Session, record.Revision, error) {
	data, rev, err := r.store.Read(ctx, record.KeyTableSessions)
	if err != nil {
		return nil, 0, fmt.Errorf("read table sessions: %w", err)
	}
	if len(data) == 0 {
		return nil, rev, nil
	}
	var sessions []Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, 0, fmt.Errorf("decode table sessions: %w", err)
	}
	return sessions, rev, nil
}

// Replace overwrites the whole collection at the given revision.
func (r *Repository) Replace(ctx context.Context, sessions []Session, rev record.Revision) (record.Revision, error) {
	if sessions == nil {
		sessions = []Session{}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].TableNumber < sessions[j].TableNumber
	})
	data, err := json.Marshal(sessions)
	if err != nil {
		return 0, fmt.Errorf("encode table sessions: %w", err)
	}
	next, err := r.store.Replace(ctx, record.KeyTableSessions, data, rev)
	if err != nil {
		return 0, fmt.Errorf("write table sessions: %w", err)
	}
	return next, nil
}
