package handlers

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/call-signaling/internal/call"
	"github.com/mossy-p/call-signaling/internal/lifecycle"
	"github.com/mossy-p/call-signaling/internal/paired"
	"github.com/mossy-p/call-signaling/internal/presence"
)

// Attach is the per-user lifecycle socket: while it is open, the
// session features are initialized for the user and their events
// (incoming calls, paired-connection changes) stream to the client.
// Closing the socket cleans both features up, which also releases the
// user's paired sessions. This is the feature-registry boundary: the
// features never initiate their own lifecycle.
func (a *API) Attach(c *gin.Context) {
	userID, userName, ok := a.wsIdentity(c)
	if !ok {
		return
	}

	bus := lifecycle.NewBus()
	events, unsubscribe := bus.Subscribe()

	registry := lifecycle.NewRegistry()
	registry.Register("call", call.NewFeature(a.Calls, bus))
	registry.Register("walkie-talkie", paired.NewFeature(a.Pairs, bus))

	if err := registry.Initialize(context.Background(), userID, userName); err != nil {
		unsubscribe()
		c.JSON(statusFor(err), gin.H{"error": "Failed to initialize session features"})
		return
	}

	if err := a.Presence.SetStatus(context.Background(), userID, presence.StatusOnline); err != nil {
		log.Printf("Failed to set presence for %s: %v", userID, err)
	}

	conn, err := upgrade(c, func() {})
	if err != nil {
		registry.Cleanup()
		unsubscribe()
		return
	}

	log.Printf("User attached: %s", userID)
	defer func() {
		registry.Cleanup()
		unsubscribe()
		if err := a.Presence.SetStatus(context.Background(), userID, presence.StatusOffline); err != nil {
			log.Printf("Failed to set presence for %s: %v", userID, err)
		}
		log.Printf("User detached: %s", userID)
	}()

	stream(conn, unsubscribe, events, func(event lifecycle.Event) interface{} {
		return event
	})
}
