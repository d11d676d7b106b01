package paired

import (
	"context"
	"log"
	"sync"

	"github.com/mossy-p/call-signaling/internal/lifecycle"
	"github.com/mossy-p/call-signaling/internal/store"
)

// TopicConnections carries a []models.PairedSession payload: the
// user's current non-CLOSED paired sessions
const TopicConnections = "paired.connections"

// Feature adapts the walkie-talkie flow to the lifecycle registry.
// Cleanup also removes every paired session the user participates in,
// so a peer that goes offline leaves no orphaned sessions behind.
type Feature struct {
	ctrl *Controller
	bus  *lifecycle.Bus

	mu     sync.Mutex
	userID string
	cancel store.CancelFunc
}

// NewFeature creates the walkie-talkie feature over a controller and a
// bus
func NewFeature(ctrl *Controller, bus *lifecycle.Bus) *Feature {
	return &Feature{ctrl: ctrl, bus: bus}
}

func (f *Feature) Initialize(ctx context.Context, userID, userName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return nil
	}

	connections, cancel, err := f.ctrl.ObserveMyConnections(ctx, userID)
	if err != nil {
		return err
	}
	f.userID = userID
	f.cancel = cancel

	go func() {
		for sessions := range connections {
			f.bus.Publish(lifecycle.Event{Topic: TopicConnections, Payload: sessions})
		}
	}()
	return nil
}

func (f *Feature) Cleanup() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel == nil {
		return
	}
	f.cancel()
	f.cancel = nil

	if err := f.ctrl.CleanupAllConnections(context.Background(), f.userID); err != nil {
		log.Printf("Failed to clean up paired sessions for %s: %v", f.userID, err)
	}
	f.userID = ""
}
