// Package call implements the one-to-one call flow: RINGING ->
// ACCEPTED | REJECTED, ACCEPTED -> ENDED, with REJECTED and ENDED
// terminal.
package call

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/presence"
	"github.com/mossy-p/call-signaling/internal/signaling"
	"github.com/mossy-p/call-signaling/internal/store"
)

// Controller drives call sessions through the store. It holds no
// per-call state: the store is the only shared mutable state, so the
// controller is safe to invoke concurrently.
type Controller struct {
	channel  *signaling.Channel
	store    store.Store
	presence presence.Setter
}

// Snapshot is one observed state of a call session
type Snapshot struct {
	Exists  bool
	Session models.CallSession
}

// NewController creates a call controller over the given collaborators
func NewController(channel *signaling.Channel, st store.Store, pres presence.Setter) *Controller {
	return &Controller{channel: channel, store: st, presence: pres}
}

// ringIndex holds the RINGING call ids targeting one callee, scored by
// creation time so the most recent wins
func ringIndex(calleeID string) string {
	return "ring:" + calleeID
}

// InitiateCall marks the caller in-call, creates a RINGING session with
// the given offer, and registers it for the callee's incoming watch.
// Returns the generated call id.
func (c *Controller) InitiateCall(ctx context.Context, callerID, calleeID, callerName, calleeName string, offer models.SessionDescription) (string, error) {
	c.setPresence(ctx, callerID, presence.StatusInCall)

	callID, err := c.channel.Create(ctx, store.Document{
		models.FieldCallerID:   callerID,
		models.FieldCalleeID:   calleeID,
		models.FieldCallerName: callerName,
		models.FieldCalleeName: calleeName,
		models.FieldStatus:     string(models.CallStatusRinging),
		models.FieldOffer:      models.EncodeDescription(offer),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create call: %w", err)
	}

	if err := c.store.AddToIndex(ctx, ringIndex(calleeID), callID, float64(time.Now().UnixNano())); err != nil {
		return "", fmt.Errorf("failed to register incoming call: %w", err)
	}

	log.Printf("Call created: %s from %s to %s", callID, callerID, calleeID)
	return callID, nil
}

// AnswerCall marks the callee in-call, writes the answer, and
// transitions to ACCEPTED. Status is deliberately not re-read before
// the write: a callee can answer a call the caller has already ended,
// and the next observed snapshot is authoritative for both sides.
func (c *Controller) AnswerCall(ctx context.Context, callID, calleeID string, answer models.SessionDescription) error {
	c.setPresence(ctx, calleeID, presence.StatusInCall)

	err := c.channel.Update(ctx, callID, store.Document{
		models.FieldAnswer: models.EncodeDescription(answer),
		models.FieldStatus: string(models.CallStatusAccepted),
	})
	if err != nil {
		return fmt.Errorf("failed to answer call %s: %w", callID, err)
	}

	c.unring(ctx, callID, calleeID)
	log.Printf("Call answered: %s by %s", callID, calleeID)
	return nil
}

// RejectCall transitions to REJECTED. No presence side effect: the
// callee never entered the call.
func (c *Controller) RejectCall(ctx context.Context, callID, calleeID string) error {
	err := c.channel.Update(ctx, callID, store.Document{
		models.FieldStatus: string(models.CallStatusRejected),
	})
	if err != nil {
		return fmt.Errorf("failed to reject call %s: %w", callID, err)
	}

	c.unring(ctx, callID, calleeID)
	log.Printf("Call rejected: %s by %s", callID, calleeID)
	return nil
}

// EndCall restores the user's presence to online and transitions to
// ENDED
func (c *Controller) EndCall(ctx context.Context, callID, userID string) error {
	c.setPresence(ctx, userID, presence.StatusOnline)

	err := c.channel.Update(ctx, callID, store.Document{
		models.FieldStatus: string(models.CallStatusEnded),
	})
	if err != nil {
		return fmt.Errorf("failed to end call %s: %w", callID, err)
	}

	log.Printf("Call ended: %s by %s", callID, userID)
	return nil
}

// AddCandidate appends a connectivity candidate to the role's stream
func (c *Controller) AddCandidate(ctx context.Context, callID string, role models.Role, cand models.ConnectivityCandidate) error {
	if role != models.RoleCaller && role != models.RoleCallee {
		return fmt.Errorf("invalid call role %q", role)
	}
	return c.channel.AppendCandidate(ctx, callID, role, cand)
}

// ObserveCall watches one call session; deletion surfaces as a
// snapshot with Exists false
func (c *Controller) ObserveCall(ctx context.Context, callID string) (<-chan Snapshot, store.CancelFunc, error) {
	raw, cancel, err := c.channel.Observe(ctx, callID)
	if err != nil {
		return nil, nil, err
	}

	out, cancel := store.MapWatch(raw, cancel, func(snap store.Snapshot) Snapshot {
		if !snap.Exists {
			return Snapshot{Exists: false, Session: models.CallSession{ID: callID}}
		}
		return Snapshot{Exists: true, Session: models.CallSessionFromFields(callID, snap.Fields)}
	})
	return out, cancel, nil
}

// ObserveCandidates watches one role's candidate stream of a call
func (c *Controller) ObserveCandidates(ctx context.Context, callID string, role models.Role) (<-chan []models.ConnectivityCandidate, store.CancelFunc, error) {
	return c.channel.ObserveCandidates(ctx, callID, role)
}

// ObserveIncoming surfaces the most recent RINGING call targeting the
// callee, or nil when there is none. If several callers race, only the
// latest is surfaced; there is no queue.
func (c *Controller) ObserveIncoming(ctx context.Context, calleeID string) (<-chan *models.CallSession, store.CancelFunc, error) {
	raw, cancel, err := c.store.WatchIndex(ctx, ringIndex(calleeID))
	if err != nil {
		return nil, nil, err
	}

	out, cancel := store.MapWatch(raw, cancel, func(members []string) *models.CallSession {
		return c.latestRinging(ctx, calleeID, members)
	})
	return out, cancel, nil
}

// latestRinging resolves the newest index member that still is a live
// RINGING session; stale entries are pruned along the way
func (c *Controller) latestRinging(ctx context.Context, calleeID string, members []string) *models.CallSession {
	for i := len(members) - 1; i >= 0; i-- {
		callID := members[i]
		fields, err := c.store.Get(ctx, callID)
		if err != nil {
			c.unring(ctx, callID, calleeID)
			continue
		}
		session := models.CallSessionFromFields(callID, fields)
		if session.Status != models.CallStatusRinging {
			c.unring(ctx, callID, calleeID)
			continue
		}
		return &session
	}
	return nil
}

// CleanupCall restores presence to online and deletes the session and
// its candidate streams. Safe to invoke redundantly by both sides.
func (c *Controller) CleanupCall(ctx context.Context, callID, userID string) error {
	c.setPresence(ctx, userID, presence.StatusOnline)

	if fields, err := c.store.Get(ctx, callID); err == nil {
		c.unring(ctx, callID, fields[models.FieldCalleeID])
	}

	if err := c.channel.Delete(ctx, callID); err != nil {
		return fmt.Errorf("failed to clean up call %s: %w", callID, err)
	}

	log.Printf("Call cleaned up: %s by %s", callID, userID)
	return nil
}

func (c *Controller) unring(ctx context.Context, callID, calleeID string) {
	if calleeID == "" {
		return
	}
	if err := c.store.RemoveFromIndex(ctx, ringIndex(calleeID), callID); err != nil {
		log.Printf("Failed to deregister incoming call %s for %s: %v", callID, calleeID, err)
	}
}

// setPresence is best-effort: a presence outage must not block the
// signaling transition itself
func (c *Controller) setPresence(ctx context.Context, userID string, status presence.Status) {
	if err := c.presence.SetStatus(ctx, userID, status); err != nil {
		log.Printf("Failed to set presence for %s: %v", userID, err)
	}
}
