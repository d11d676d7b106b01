// Package paired implements the symmetric walkie-talkie flow:
// OFFERING -> CONNECTED, OFFERING|CONNECTED -> CLOSED, with CLOSED
// terminal. The session key and the offerer role are both derived
// deterministically from the participant ids, so neither side needs a
// negotiation round trip before writing.
package paired

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/signaling"
	"github.com/mossy-p/call-signaling/internal/store"
)

// Controller drives paired sessions through the store. Stateless, like
// the call controller: safe for concurrent use.
type Controller struct {
	channel *signaling.Channel
	store   store.Store
}

// Snapshot is one observed state of a paired session
type Snapshot struct {
	Exists  bool
	Session models.PairedSession
}

// NewController creates a paired-session controller
func NewController(channel *signaling.Channel, st store.Store) *Controller {
	return &Controller{channel: channel, store: st}
}

// pairIndex holds the pair ids a user participates in
func pairIndex(userID string) string {
	return "pairs:" + userID
}

// CreateOffer upsert-creates the paired session at its deterministic
// key with status OFFERING. Both peers may race to call this; the
// merge semantics converge to one document. The offer field is only
// written when present, so the answerer racing in with an empty offer
// never clobbers the offerer's.
func (c *Controller) CreateOffer(ctx context.Context, offererID, answererID, offererName, answererName string, offer models.SessionDescription) (string, error) {
	pairID := models.PairKey(offererID, answererID)

	fields := store.Document{
		models.FieldOffererID:    offererID,
		models.FieldAnswererID:   answererID,
		models.FieldOffererName:  offererName,
		models.FieldAnswererName: answererName,
		models.FieldStatus:       string(models.PairStatusOffering),
	}
	if offer.Type != "" || offer.SDP != "" {
		fields[models.FieldOffer] = models.EncodeDescription(offer)
	}

	if err := c.channel.CreateAt(ctx, pairID, fields); err != nil {
		return "", fmt.Errorf("failed to create paired session %s: %w", pairID, err)
	}

	score := float64(time.Now().UnixNano())
	for _, userID := range []string{offererID, answererID} {
		if err := c.store.AddToIndex(ctx, pairIndex(userID), pairID, score); err != nil {
			return "", fmt.Errorf("failed to register paired session %s for %s: %w", pairID, userID, err)
		}
	}

	log.Printf("Paired session created: %s (%s offering to %s)", pairID, offererID, answererID)
	return pairID, nil
}

// UpdateAnswer writes the answer and transitions to CONNECTED. The
// transition rides on the answer write itself; the explicit status
// field mirrors it for observers that only look at status.
func (c *Controller) UpdateAnswer(ctx context.Context, pairID string, answer models.SessionDescription) error {
	err := c.channel.Update(ctx, pairID, store.Document{
		models.FieldAnswer: models.EncodeDescription(answer),
		models.FieldStatus: string(models.PairStatusConnected),
	})
	if err != nil {
		return fmt.Errorf("failed to answer paired session %s: %w", pairID, err)
	}

	c.touchIndexes(ctx, pairID)
	log.Printf("Paired session connected: %s", pairID)
	return nil
}

// UpdateStatus performs an explicit status transition, notably to
// CLOSED. Closed sessions stay registered in the participant indexes
// so CleanupAllConnections still finds them; my-connections observers
// filter them out.
func (c *Controller) UpdateStatus(ctx context.Context, pairID string, status models.PairStatus) error {
	err := c.channel.Update(ctx, pairID, store.Document{
		models.FieldStatus: string(status),
	})
	if err != nil {
		return fmt.Errorf("failed to update paired session %s: %w", pairID, err)
	}

	c.touchIndexes(ctx, pairID)
	log.Printf("Paired session %s status: %s", pairID, status)
	return nil
}

// AddCandidate appends a connectivity candidate to the role's stream
func (c *Controller) AddCandidate(ctx context.Context, pairID string, role models.Role, cand models.ConnectivityCandidate) error {
	if role != models.RoleOfferer && role != models.RoleAnswerer {
		return fmt.Errorf("invalid paired role %q", role)
	}
	return c.channel.AppendCandidate(ctx, pairID, role, cand)
}

// ObserveConnection watches one paired session
func (c *Controller) ObserveConnection(ctx context.Context, pairID string) (<-chan Snapshot, store.CancelFunc, error) {
	raw, cancel, err := c.channel.Observe(ctx, pairID)
	if err != nil {
		return nil, nil, err
	}

	out, cancel := store.MapWatch(raw, cancel, func(snap store.Snapshot) Snapshot {
		if !snap.Exists {
			return Snapshot{Exists: false, Session: models.PairedSession{ID: pairID}}
		}
		return Snapshot{Exists: true, Session: models.PairedSessionFromFields(pairID, snap.Fields)}
	})
	return out, cancel, nil
}

// ObserveCandidates watches one role's candidate stream of a paired
// session
func (c *Controller) ObserveCandidates(ctx context.Context, pairID string, role models.Role) (<-chan []models.ConnectivityCandidate, store.CancelFunc, error) {
	return c.channel.ObserveCandidates(ctx, pairID, role)
}

// ObserveMyConnections surfaces all non-CLOSED paired sessions the
// user participates in, re-delivered on every membership or member
// change
func (c *Controller) ObserveMyConnections(ctx context.Context, userID string) (<-chan []models.PairedSession, store.CancelFunc, error) {
	raw, cancel, err := c.store.WatchIndex(ctx, pairIndex(userID))
	if err != nil {
		return nil, nil, err
	}

	out, cancel := store.MapWatch(raw, cancel, func(members []string) []models.PairedSession {
		return c.liveSessions(ctx, userID, members)
	})
	return out, cancel, nil
}

// liveSessions resolves index members to non-CLOSED sessions, pruning
// entries whose document is gone
func (c *Controller) liveSessions(ctx context.Context, userID string, members []string) []models.PairedSession {
	sessions := make([]models.PairedSession, 0, len(members))
	for _, pairID := range members {
		fields, err := c.store.Get(ctx, pairID)
		if err != nil {
			if rmErr := c.store.RemoveFromIndex(ctx, pairIndex(userID), pairID); rmErr != nil {
				log.Printf("Failed to prune paired session %s for %s: %v", pairID, userID, rmErr)
			}
			continue
		}
		session := models.PairedSessionFromFields(pairID, fields)
		if session.Status.Terminal() {
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions
}

// CleanupConnection deletes one paired session and deregisters it from
// both participants. Idempotent: an already-deleted session is success,
// and the calling user's own index entry is removed even then, so a
// repeated cleanup never leaves a stale member behind.
func (c *Controller) CleanupConnection(ctx context.Context, pairID, userID string) error {
	c.removeIndexes(ctx, pairID, userID)
	if err := c.channel.Delete(ctx, pairID); err != nil {
		return fmt.Errorf("failed to clean up paired session %s: %w", pairID, err)
	}
	log.Printf("Paired session cleaned up: %s", pairID)
	return nil
}

// CleanupAllConnections deletes every paired session, in any state,
// where the user participates. Used on feature shutdown so no orphaned
// session stays attributed to a peer that went offline.
func (c *Controller) CleanupAllConnections(ctx context.Context, userID string) error {
	members, err := c.store.IndexMembers(ctx, pairIndex(userID))
	if err != nil {
		return fmt.Errorf("failed to list paired sessions for %s: %w", userID, err)
	}

	var firstErr error
	for _, pairID := range members {
		if err := c.CleanupConnection(ctx, pairID, userID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// touchIndexes re-adds both participants' index entries so
// my-connections watchers refetch after a member-document change
func (c *Controller) touchIndexes(ctx context.Context, pairID string) {
	fields, err := c.store.Get(ctx, pairID)
	if err != nil {
		return
	}
	score := float64(models.DecodeCreatedAt(fields[models.FieldCreatedAt]).UnixNano())
	for _, userID := range []string{fields[models.FieldOffererID], fields[models.FieldAnswererID]} {
		if userID == "" {
			continue
		}
		if err := c.store.AddToIndex(ctx, pairIndex(userID), pairID, score); err != nil {
			log.Printf("Failed to refresh paired session %s for %s: %v", pairID, userID, err)
		}
	}
}

// removeIndexes deregisters the session from both participants,
// best-effort. When the document is already gone the participant ids
// are unrecoverable, so the caller's id serves as the fallback index;
// the peer's stale entry is pruned by their own observer.
func (c *Controller) removeIndexes(ctx context.Context, pairID, callerID string) {
	participants := []string{callerID}
	if fields, err := c.store.Get(ctx, pairID); err == nil {
		participants = []string{fields[models.FieldOffererID], fields[models.FieldAnswererID]}
	}
	for _, userID := range participants {
		if userID == "" {
			continue
		}
		if err := c.store.RemoveFromIndex(ctx, pairIndex(userID), pairID); err != nil {
			log.Printf("Failed to deregister paired session %s for %s: %v", pairID, userID, err)
		}
	}
}
