// Package presence is the availability-status collaborator. Session
// transitions side-effect a user's status here; other subsystems read
// it to decide availability.
package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status is a peer's externally visible availability
type Status string

const (
	StatusOnline  Status = "online"
	StatusInCall  Status = "in_call"
	StatusOffline Status = "offline"
)

// Setter is what the session controllers depend on
type Setter interface {
	SetStatus(ctx context.Context, userID string, status Status) error
}

// Redis stores presence as plain string keys with a TTL, so a peer that
// vanishes without cleanup eventually reads as offline
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates the Redis-backed presence service
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func presenceKey(userID string) string {
	return "presence:" + userID
}

// SetStatus writes the user's current status
func (r *Redis) SetStatus(ctx context.Context, userID string, status Status) error {
	return r.client.Set(ctx, presenceKey(userID), string(status), r.ttl).Err()
}

// Status reads a user's current status; an absent key reads as offline
func (r *Redis) Status(ctx context.Context, userID string) (Status, error) {
	value, err := r.client.Get(ctx, presenceKey(userID)).Result()
	if err == redis.Nil {
		return StatusOffline, nil
	}
	if err != nil {
		return "", err
	}
	return Status(value), nil
}
