// Package lifecycle coordinates session-oriented features. Features
// register in an explicit Registry populated at composition time, and
// cross-feature notifications flow through an explicit Bus passed by
// reference; there is no process-wide singleton and no runtime
// discovery.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Feature is one initializable session flow. Initialize begins
// observing incoming sessions for the user; Cleanup stops observing
// and releases subscriptions. The feature never initiates its own
// lifecycle: the registry owner decides when.
type Feature interface {
	Initialize(ctx context.Context, userID, userName string) error
	Cleanup()
}

// Registry maps feature names to features, populated by an explicit
// composition step at startup
type Registry struct {
	mu       sync.Mutex
	order    []string
	features map[string]Feature
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{features: make(map[string]Feature)}
}

// Register adds a feature under a name; registering the same name
// twice replaces the earlier feature
func (r *Registry) Register(name string, f Feature) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.features[name]; !exists {
		r.order = append(r.order, name)
	}
	r.features[name] = f
}

// Initialize initializes every feature in registration order. On
// failure the already-initialized features are cleaned up again and
// the error is returned.
func (r *Registry) Initialize(ctx context.Context, userID, userName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, name := range r.order {
		if err := r.features[name].Initialize(ctx, userID, userName); err != nil {
			for j := i - 1; j >= 0; j-- {
				r.features[r.order[j]].Cleanup()
			}
			return fmt.Errorf("failed to initialize feature %s: %w", name, err)
		}
		log.Printf("Feature initialized: %s for %s", name, userID)
	}
	return nil
}

// Cleanup cleans every feature up in reverse registration order
func (r *Registry) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		r.features[r.order[i]].Cleanup()
		log.Printf("Feature cleaned up: %s", r.order[i])
	}
}

// Event is one cross-feature notification
type Event struct {
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
}

// Bus is an explicit publish/subscribe broadcast. Producers and
// consumers receive the same *Bus by reference from the composition
// step.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscriber
	nextSub int
}

type subscriber struct {
	topics map[string]bool
	ch     chan Event
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe returns a delivery channel for the given topics (all
// topics when none given) and a cancel func that stops delivery and
// closes the channel
func (b *Bus) Subscribe(topics ...string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, 16)}
	if len(topics) > 0 {
		sub.topics = make(map[string]bool, len(topics))
		for _, t := range topics {
			sub.topics[t] = true
		}
	}

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers the event to every matching subscriber. Delivery is
// non-blocking: a subscriber that stopped draining loses events rather
// than stalling producers.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.topics != nil && !sub.topics[event.Topic] {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			log.Printf("Dropping bus event %s: subscriber buffer full", event.Topic)
		}
	}
}
