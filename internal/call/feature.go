package call

import (
	"context"
	"sync"

	"github.com/mossy-p/call-signaling/internal/lifecycle"
	"github.com/mossy-p/call-signaling/internal/store"
)

// TopicIncomingCall carries a *models.CallSession payload, or nil when
// no call is ringing anymore
const TopicIncomingCall = "call.incoming"

// Feature adapts the call flow to the lifecycle registry: Initialize
// starts the incoming-call watch for the user and republishes it on
// the bus; Cleanup releases the subscription.
type Feature struct {
	ctrl *Controller
	bus  *lifecycle.Bus

	mu     sync.Mutex
	cancel store.CancelFunc
}

// NewFeature creates the call feature over a controller and a bus
func NewFeature(ctrl *Controller, bus *lifecycle.Bus) *Feature {
	return &Feature{ctrl: ctrl, bus: bus}
}

func (f *Feature) Initialize(ctx context.Context, userID, userName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return nil
	}

	incoming, cancel, err := f.ctrl.ObserveIncoming(ctx, userID)
	if err != nil {
		return err
	}
	f.cancel = cancel

	go func() {
		for session := range incoming {
			f.bus.Publish(lifecycle.Event{Topic: TopicIncomingCall, Payload: session})
		}
	}()
	return nil
}

func (f *Feature) Cleanup() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}
