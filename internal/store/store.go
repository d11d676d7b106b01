// Package store defines the signaling document store contract and its
// Redis and in-memory implementations. A session is a flat field map
// keyed by session id; each session carries per-role append-only
// candidate lists; sorted-set indexes support the incoming-call and
// my-connections queries.
package store

import (
	"context"
	"errors"
)

// Classified store failures. Operations wrap the underlying error so
// callers can branch with errors.Is.
var (
	// ErrNotFound means the document does not exist. Cleanup paths
	// treat it as benign.
	ErrNotFound = errors.New("store: not found")

	// ErrUnavailable means the store could not be reached; the caller
	// may retry or surface "offline".
	ErrUnavailable = errors.New("store: unavailable")

	// ErrPermissionDenied is fatal for the operation.
	ErrPermissionDenied = errors.New("store: permission denied")
)

// Document is a flat field map; updates merge field-wise and never
// clobber fields absent from the delta.
type Document map[string]string

// Snapshot is one delivery from a document watch. Exists is false when
// the document is absent (deleted or never created); deletion is
// surfaced explicitly, not as silence.
type Snapshot struct {
	ID     string
	Exists bool
	Fields Document
}

// CancelFunc stops a watch. It synchronously stops further delivery,
// releases the store-side listener, and closes the delivery channel.
// Safe to call more than once.
type CancelFunc func()

// Store is the signaling document store contract.
//
// Watch semantics: every watch delivers the current state immediately on
// subscription, then the latest state after each change. Deliveries
// coalesce under load; the final state is always delivered. Watches
// never terminate on a malformed document.
type Store interface {
	// Create writes a new document under a store-generated key and
	// returns it. CreatedAt is assigned by the store.
	Create(ctx context.Context, fields Document) (string, error)

	// Put upsert-merges fields at a caller-supplied key. Racing Puts on
	// the same key converge to one document: fields merge last-write-wins
	// and the store-assigned CreatedAt is set only once.
	Put(ctx context.Context, id string, fields Document) error

	// Update merges fields into an existing document. ErrNotFound if the
	// document is absent.
	Update(ctx context.Context, id string, fields Document) error

	// Get reads the full document. ErrNotFound if absent.
	Get(ctx context.Context, id string) (Document, error)

	// AppendCandidate appends an entry to the (session, role) candidate
	// list. Ordering within a role is append order.
	AppendCandidate(ctx context.Context, id, role, data string) error

	// Candidates reads the full candidate list for a role, in append
	// order. An absent list reads as empty, not an error.
	Candidates(ctx context.Context, id, role string) ([]string, error)

	// Delete removes the document and all of its candidate lists.
	// Deleting an absent document is a no-op, not an error.
	Delete(ctx context.Context, id string) error

	// Watch observes one document.
	Watch(ctx context.Context, id string) (<-chan Snapshot, CancelFunc, error)

	// WatchCandidates observes one candidate list; every delivery is the
	// full current list, not a delta.
	WatchCandidates(ctx context.Context, id, role string) (<-chan []string, CancelFunc, error)

	// AddToIndex adds (or re-scores) a member in a sorted index and
	// notifies index watchers. Re-adding an existing member still
	// notifies, so callers can use it to signal member-document changes.
	AddToIndex(ctx context.Context, index, member string, score float64) error

	// RemoveFromIndex removes a member; removing an absent member is a
	// no-op. Index watchers are notified either way.
	RemoveFromIndex(ctx context.Context, index, member string) error

	// IndexMembers reads the index members in ascending score order.
	IndexMembers(ctx context.Context, index string) ([]string, error)

	// WatchIndex observes an index; every delivery is the full member
	// list in ascending score order.
	WatchIndex(ctx context.Context, index string) (<-chan []string, CancelFunc, error)
}
