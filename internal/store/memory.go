package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store with the same contract as the Redis
// backend, used by tests and single-node development. Watches are
// fanned out through per-subscriber kick channels, mirroring the
// pub/sub notify-then-reread shape of the Redis backend.
type Memory struct {
	mu         sync.RWMutex
	sessions   map[string]Document
	candidates map[string][]string
	indexes    map[string]map[string]float64

	subMu   sync.Mutex
	subs    map[string]map[int]chan struct{}
	nextSub int
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		sessions:   make(map[string]Document),
		candidates: make(map[string][]string),
		indexes:    make(map[string]map[string]float64),
		subs:       make(map[string]map[int]chan struct{}),
	}
}

func docTopic(id string) string        { return "doc:" + id }
func candTopic(id, role string) string { return "cand:" + id + ":" + role }
func idxTopic(name string) string      { return "idx:" + name }
func candSlot(id, role string) string  { return id + "\x00" + role }

func (m *Memory) Create(ctx context.Context, fields Document) (string, error) {
	id := uuid.New().String()
	if err := m.Put(ctx, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Memory) Put(ctx context.Context, id string, fields Document) error {
	m.mu.Lock()
	doc, ok := m.sessions[id]
	if !ok {
		doc = Document{"createdAt": fmt.Sprintf("%d", time.Now().UnixNano())}
		m.sessions[id] = doc
	}
	for k, v := range fields {
		doc[k] = v
	}
	m.mu.Unlock()
	m.notify(docTopic(id))
	return nil
}

func (m *Memory) Update(ctx context.Context, id string, fields Document) error {
	m.mu.Lock()
	doc, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	for k, v := range fields {
		doc[k] = v
	}
	m.mu.Unlock()
	m.notify(docTopic(id))
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	copied := make(Document, len(doc))
	for k, v := range doc {
		copied[k] = v
	}
	return copied, nil
}

func (m *Memory) AppendCandidate(ctx context.Context, id, role, data string) error {
	m.mu.Lock()
	slot := candSlot(id, role)
	m.candidates[slot] = append(m.candidates[slot], data)
	m.mu.Unlock()
	m.notify(candTopic(id, role))
	return nil
}

func (m *Memory) Candidates(ctx context.Context, id, role string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.candidates[candSlot(id, role)]
	out := make([]string, len(entries))
	copy(out, entries)
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	var roles []string
	prefix := id + "\x00"
	for slot := range m.candidates {
		if len(slot) > len(prefix) && slot[:len(prefix)] == prefix {
			roles = append(roles, slot[len(prefix):])
			delete(m.candidates, slot)
		}
	}
	m.mu.Unlock()
	m.notify(docTopic(id))
	for _, role := range roles {
		m.notify(candTopic(id, role))
	}
	return nil
}

func (m *Memory) AddToIndex(ctx context.Context, index, member string, score float64) error {
	m.mu.Lock()
	idx, ok := m.indexes[index]
	if !ok {
		idx = make(map[string]float64)
		m.indexes[index] = idx
	}
	idx[member] = score
	m.mu.Unlock()
	m.notify(idxTopic(index))
	return nil
}

func (m *Memory) RemoveFromIndex(ctx context.Context, index, member string) error {
	m.mu.Lock()
	if idx, ok := m.indexes[index]; ok {
		delete(idx, member)
	}
	m.mu.Unlock()
	m.notify(idxTopic(index))
	return nil
}

func (m *Memory) IndexMembers(ctx context.Context, index string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.membersLocked(index), nil
}

func (m *Memory) membersLocked(index string) []string {
	idx := m.indexes[index]
	members := make([]string, 0, len(idx))
	for member := range idx {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool {
		if idx[members[i]] != idx[members[j]] {
			return idx[members[i]] < idx[members[j]]
		}
		return members[i] < members[j]
	})
	return members
}

func (m *Memory) Watch(ctx context.Context, id string) (<-chan Snapshot, CancelFunc, error) {
	kick, unsubscribe := m.subscribe(docTopic(id))
	out, cancel := newWatch(ctx, func(ctx context.Context) (Snapshot, error) {
		fields, err := m.Get(ctx, id)
		if err != nil {
			return Snapshot{ID: id, Exists: false}, nil
		}
		return Snapshot{ID: id, Exists: true, Fields: fields}, nil
	}, kick, unsubscribe)
	return out, cancel, nil
}

func (m *Memory) WatchCandidates(ctx context.Context, id, role string) (<-chan []string, CancelFunc, error) {
	kick, unsubscribe := m.subscribe(candTopic(id, role))
	out, cancel := newWatch(ctx, func(ctx context.Context) ([]string, error) {
		return m.Candidates(ctx, id, role)
	}, kick, unsubscribe)
	return out, cancel, nil
}

func (m *Memory) WatchIndex(ctx context.Context, index string) (<-chan []string, CancelFunc, error) {
	kick, unsubscribe := m.subscribe(idxTopic(index))
	out, cancel := newWatch(ctx, func(ctx context.Context) ([]string, error) {
		return m.IndexMembers(ctx, index)
	}, kick, unsubscribe)
	return out, cancel, nil
}

func (m *Memory) subscribe(topic string) (chan struct{}, func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.nextSub
	m.nextSub++
	kick := make(chan struct{}, 1)
	if m.subs[topic] == nil {
		m.subs[topic] = make(map[int]chan struct{})
	}
	m.subs[topic][id] = kick
	return kick, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.subs[topic], id)
	}
}

func (m *Memory) notify(topic string) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, kick := range m.subs[topic] {
		select {
		case kick <- struct{}{}:
		default:
		}
	}
}
