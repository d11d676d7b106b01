package signaling

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/store"
)

func TestChannelDeleteIdempotent(t *testing.T) {
	ch := New(store.NewMemory())
	ctx := context.Background()

	id, err := ch.Create(ctx, store.Document{"status": "ringing"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := ch.Delete(ctx, id); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := ch.Delete(ctx, id); err != nil {
		t.Fatalf("repeated delete must be success, got %v", err)
	}
	if err := ch.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("delete of unknown session must be success, got %v", err)
	}
}

func TestChannelUpdateNeverClobbers(t *testing.T) {
	st := store.NewMemory()
	ch := New(st)
	ctx := context.Background()

	id, err := ch.Create(ctx, store.Document{"status": "ringing", "callerId": "alice"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ch.Update(ctx, id, store.Document{"status": "accepted"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	doc, err := st.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc["callerId"] != "alice" {
		t.Errorf("field absent from delta was clobbered: %v", doc)
	}
	if doc["status"] != "accepted" {
		t.Errorf("delta field not applied: %v", doc)
	}
}

func TestChannelCandidatesSkipMalformed(t *testing.T) {
	st := store.NewMemory()
	ch := New(st)
	ctx := context.Background()

	good := models.ConnectivityCandidate{Candidate: "candidate:1", SDPMid: "0"}
	if err := ch.AppendCandidate(ctx, "s1", models.RoleCaller, good); err != nil {
		t.Fatalf("append: %v", err)
	}
	// A corrupt entry lands in the stream through some other writer.
	if err := st.AppendCandidate(ctx, "s1", string(models.RoleCaller), "{broken"); err != nil {
		t.Fatalf("append raw: %v", err)
	}
	good2 := models.ConnectivityCandidate{Candidate: "candidate:2", SDPMid: "0", SDPMLineIndex: 1}
	if err := ch.AppendCandidate(ctx, "s1", models.RoleCaller, good2); err != nil {
		t.Fatalf("append: %v", err)
	}

	cands, err := ch.Candidates(ctx, "s1", models.RoleCaller)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("malformed entry must be skipped, not fatal: %v", cands)
	}
	if cands[0] != good || cands[1] != good2 {
		t.Errorf("order lost: %v", cands)
	}
}

func TestChannelObserveCandidatesDeliversFullList(t *testing.T) {
	ch := New(store.NewMemory())
	ctx := context.Background()

	if err := ch.AppendCandidate(ctx, "s1", models.RoleOfferer, models.ConnectivityCandidate{Candidate: "c1"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	lists, cancel, err := ch.ObserveCandidates(ctx, "s1", models.RoleOfferer)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	defer cancel()

	first := mustRecv(t, lists)
	if len(first) != 1 || first[0].Candidate != "c1" {
		t.Fatalf("initial delivery wrong: %v", first)
	}

	if err := ch.AppendCandidate(ctx, "s1", models.RoleOfferer, models.ConnectivityCandidate{Candidate: "c2"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case list, ok := <-lists:
			if !ok {
				t.Fatal("stream closed early")
			}
			if len(list) == 2 && list[0].Candidate == "c1" && list[1].Candidate == "c2" {
				return
			}
		case <-deadline:
			t.Fatal("never observed the full two-candidate list")
		}
	}
}

func TestChannelObserveSurfacesAbsence(t *testing.T) {
	ch := New(store.NewMemory())
	ctx := context.Background()

	id, err := ch.Create(ctx, store.Document{"status": "offering"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	snapshots, cancel, err := ch.Observe(ctx, id)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	defer cancel()

	first := mustRecv(t, snapshots)
	if !first.Exists {
		t.Fatalf("live session observed as absent: %+v", first)
	}

	if err := ch.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				t.Fatal("stream closed before absence was delivered")
			}
			if !snap.Exists {
				return
			}
		case <-deadline:
			t.Fatal("deletion never surfaced as absent")
		}
	}
}

func TestChannelObserveCandidatesCancelUnblocksUndrained(t *testing.T) {
	ch := New(store.NewMemory())
	ctx := context.Background()

	before := runtime.NumGoroutine()

	lists, cancel, err := ch.ObserveCandidates(ctx, "s1", models.RoleOfferer)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}

	// Fill the pipeline past the buffered slot without ever draining,
	// the shape of a client that disconnected mid-delivery.
	for i := 0; i < 4; i++ {
		cand := models.ConnectivityCandidate{Candidate: fmt.Sprintf("candidate:%d", i)}
		if err := ch.AppendCandidate(ctx, "s1", models.RoleOfferer, cand); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			t.Fatalf("forwarder still running after cancel: %d goroutines, started with %d",
				runtime.NumGoroutine(), before)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The stream also winds down: any buffered delivery, then closed.
	for {
		if _, ok := <-lists; !ok {
			return
		}
	}
}

func mustRecv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("channel closed unexpectedly")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	panic("unreachable")
}
