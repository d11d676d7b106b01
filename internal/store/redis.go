package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mossy-p/call-signaling/config"
)

// Key layout:
//
//	sig:session:<id>              hash, one field per document field
//	sig:session:<id>:cand:<role>  list, append order
//	sig:session:<id>:roles        set of roles with a candidate list
//	sig:index:<name>              sorted set
//	sig:watch:<id>                pub/sub, document changes
//	sig:watch:<id>:cand:<role>    pub/sub, candidate list changes
//	sig:watch:idx:<name>          pub/sub, index changes
func sessionKey(id string) string         { return "sig:session:" + id }
func candidateKey(id, role string) string { return "sig:session:" + id + ":cand:" + role }
func roleSetKey(id string) string         { return "sig:session:" + id + ":roles" }
func indexKey(name string) string         { return "sig:index:" + name }
func watchChannel(id string) string       { return "sig:watch:" + id }
func candChannel(id, role string) string  { return "sig:watch:" + id + ":cand:" + role }
func indexChannel(name string) string     { return "sig:watch:idx:" + name }

// Redis is the production Store backed by a Redis instance. Writes
// publish a change notification; watchers re-read the current state per
// notification, so every delivery is a full snapshot.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// Connect initializes the Redis store and verifies the connection
func Connect(ctx context.Context, cfg config.RedisConfig, sessionTTL time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis{client: client, ttl: sessionTTL}, nil
}

// Close closes the Redis connection
func (r *Redis) Close() error {
	return r.client.Close()
}

// Ping checks store reachability, for health endpoints
func (r *Redis) Ping(ctx context.Context) error {
	return classify(r.client.Ping(ctx).Err())
}

// Client exposes the underlying connection for collaborators that share
// the same Redis instance (presence)
func (r *Redis) Client() *redis.Client {
	return r.client
}

func (r *Redis) Create(ctx context.Context, fields Document) (string, error) {
	id := uuid.New().String()
	if err := r.Put(ctx, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Redis) Put(ctx context.Context, id string, fields Document) error {
	key := sessionKey(id)
	pipe := r.client.TxPipeline()
	// CreatedAt is set once; racing Puts on the same key converge.
	pipe.HSetNX(ctx, key, "createdAt", fmt.Sprintf("%d", time.Now().UnixNano()))
	if len(fields) > 0 {
		pipe.HSet(ctx, key, flatten(fields)...)
	}
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	pipe.Publish(ctx, watchChannel(id), "put")
	_, err := pipe.Exec(ctx)
	return classify(err)
}

// updateScript merges fields only while the session hash still exists,
// so an Update racing a Delete cannot resurrect the session as a bare
// hash without createdAt.
var updateScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
for i = 1, #ARGV, 2 do
	redis.call("HSET", KEYS[1], ARGV[i], ARGV[i+1])
end
return 1`)

func (r *Redis) Update(ctx context.Context, id string, fields Document) error {
	key := sessionKey(id)
	applied, err := updateScript.Run(ctx, r.client, []string{key}, flatten(fields)...).Int()
	if err != nil {
		return classify(err)
	}
	if applied == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return classify(r.client.Publish(ctx, watchChannel(id), "update").Err())
}

func (r *Redis) Get(ctx context.Context, id string) (Document, error) {
	fields, err := r.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, classify(err)
	}
	// HGetAll returns an empty map for an absent key; a live session
	// always carries createdAt.
	if len(fields) == 0 {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return Document(fields), nil
}

func (r *Redis) AppendCandidate(ctx context.Context, id, role, data string) error {
	key := candidateKey(id, role)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.SAdd(ctx, roleSetKey(id), role)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
		pipe.Expire(ctx, roleSetKey(id), r.ttl)
	}
	pipe.Publish(ctx, candChannel(id, role), "append")
	_, err := pipe.Exec(ctx)
	return classify(err)
}

func (r *Redis) Candidates(ctx context.Context, id, role string) ([]string, error) {
	entries, err := r.client.LRange(ctx, candidateKey(id, role), 0, -1).Result()
	if err != nil {
		return nil, classify(err)
	}
	return entries, nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	roles, err := r.client.SMembers(ctx, roleSetKey(id)).Result()
	if err != nil {
		return classify(err)
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKey(id), roleSetKey(id))
	for _, role := range roles {
		pipe.Del(ctx, candidateKey(id, role))
		pipe.Publish(ctx, candChannel(id, role), "delete")
	}
	pipe.Publish(ctx, watchChannel(id), "delete")
	_, err = pipe.Exec(ctx)
	return classify(err)
}

func (r *Redis) AddToIndex(ctx context.Context, index, member string, score float64) error {
	key := indexKey(index)
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	pipe.Publish(ctx, indexChannel(index), "add")
	_, err := pipe.Exec(ctx)
	return classify(err)
}

func (r *Redis) RemoveFromIndex(ctx context.Context, index, member string) error {
	pipe := r.client.TxPipeline()
	pipe.ZRem(ctx, indexKey(index), member)
	pipe.Publish(ctx, indexChannel(index), "remove")
	_, err := pipe.Exec(ctx)
	return classify(err)
}

func (r *Redis) IndexMembers(ctx context.Context, index string) ([]string, error) {
	members, err := r.client.ZRange(ctx, indexKey(index), 0, -1).Result()
	if err != nil {
		return nil, classify(err)
	}
	return members, nil
}

func (r *Redis) Watch(ctx context.Context, id string) (<-chan Snapshot, CancelFunc, error) {
	return watch(ctx, r.client, watchChannel(id), func(ctx context.Context) (Snapshot, error) {
		fields, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return Snapshot{ID: id, Exists: false}, nil
			}
			return Snapshot{}, err
		}
		return Snapshot{ID: id, Exists: true, Fields: fields}, nil
	})
}

func (r *Redis) WatchCandidates(ctx context.Context, id, role string) (<-chan []string, CancelFunc, error) {
	return watch(ctx, r.client, candChannel(id, role), func(ctx context.Context) ([]string, error) {
		return r.Candidates(ctx, id, role)
	})
}

func (r *Redis) WatchIndex(ctx context.Context, index string) (<-chan []string, CancelFunc, error) {
	return watch(ctx, r.client, indexChannel(index), func(ctx context.Context) ([]string, error) {
		return r.IndexMembers(ctx, index)
	})
}

// watch subscribes to a notification channel and drives the shared
// notify-then-reread pump off its messages.
func watch[T any](ctx context.Context, client *redis.Client, channel string, read func(context.Context) (T, error)) (<-chan T, CancelFunc, error) {
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, classify(err)
	}

	kick := make(chan struct{}, 1)
	go func() {
		for range pubsub.Channel() {
			select {
			case kick <- struct{}{}:
			default:
			}
		}
	}()

	out, cancel := newWatch(ctx, read, kick, func() { pubsub.Close() })
	return out, cancel, nil
}

func flatten(fields Document) []interface{} {
	flat := make([]interface{}, 0, 2*len(fields))
	for k, v := range fields {
		flat = append(flat, k, v)
	}
	return flat
}

// classify maps a go-redis error onto the store error taxonomy
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return ErrNotFound
	case strings.Contains(err.Error(), "NOAUTH"), strings.Contains(err.Error(), "NOPERM"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
