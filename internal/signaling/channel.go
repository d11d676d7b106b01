// Package signaling provides the generic create/mutate/observe
// primitives over a session document and its role-scoped candidate
// streams. It is flow-agnostic: the call and paired controllers both
// build on it.
package signaling

import (
	"context"
	"errors"
	"log"

	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/store"
)

// Channel wraps a Store with session-document semantics
type Channel struct {
	store store.Store
}

// New creates a Channel over the given store
func New(st store.Store) *Channel {
	return &Channel{store: st}
}

// Create writes a new session document under a store-generated key
func (c *Channel) Create(ctx context.Context, fields store.Document) (string, error) {
	return c.store.Create(ctx, fields)
}

// CreateAt upsert-merges a session document at a caller-supplied key.
// Both peers racing on the same deterministic key converge to one
// logical session.
func (c *Channel) CreateAt(ctx context.Context, id string, fields store.Document) error {
	return c.store.Put(ctx, id, fields)
}

// Update partially merges fields into an existing session; fields
// absent from the delta are never clobbered
func (c *Channel) Update(ctx context.Context, id string, fields store.Document) error {
	return c.store.Update(ctx, id, fields)
}

// AppendCandidate appends one connectivity candidate to the role's
// stream. Ordering within a role is the store's append order.
func (c *Channel) AppendCandidate(ctx context.Context, id string, role models.Role, cand models.ConnectivityCandidate) error {
	return c.store.AppendCandidate(ctx, id, string(role), models.EncodeCandidate(cand))
}

// Observe watches a session document. Every delivery is the current
// state; an absent session is surfaced explicitly via Snapshot.Exists.
func (c *Channel) Observe(ctx context.Context, id string) (<-chan store.Snapshot, store.CancelFunc, error) {
	return c.store.Watch(ctx, id)
}

// ObserveCandidates watches one role's candidate stream. Every delivery
// is the full current list in append order, not a delta: consumers diff
// against what they already submitted to the media engine. Malformed
// entries are skipped, never fatal.
func (c *Channel) ObserveCandidates(ctx context.Context, id string, role models.Role) (<-chan []models.ConnectivityCandidate, store.CancelFunc, error) {
	raw, cancel, err := c.store.WatchCandidates(ctx, id, string(role))
	if err != nil {
		return nil, nil, err
	}

	out, cancel := store.MapWatch(raw, cancel, func(entries []string) []models.ConnectivityCandidate {
		return decodeCandidates(id, role, entries)
	})
	return out, cancel, nil
}

// Candidates reads the full current candidate list for a role
func (c *Channel) Candidates(ctx context.Context, id string, role models.Role) ([]models.ConnectivityCandidate, error) {
	entries, err := c.store.Candidates(ctx, id, string(role))
	if err != nil {
		return nil, err
	}
	return decodeCandidates(id, role, entries), nil
}

// Delete removes the session document and both candidate streams.
// Deleting an already-deleted session is success, not an error.
func (c *Channel) Delete(ctx context.Context, id string) error {
	err := c.store.Delete(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func decodeCandidates(id string, role models.Role, entries []string) []models.ConnectivityCandidate {
	cands := make([]models.ConnectivityCandidate, 0, len(entries))
	for _, entry := range entries {
		cand, err := models.DecodeCandidate(entry)
		if err != nil {
			log.Printf("Skipping malformed candidate in session %s role %s: %v", id, role, err)
			continue
		}
		cands = append(cands, cand)
	}
	return cands
}
