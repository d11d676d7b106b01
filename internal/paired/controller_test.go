package paired

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/signaling"
	"github.com/mossy-p/call-signaling/internal/store"
)

func newTestController() (*Controller, *store.Memory) {
	st := store.NewMemory()
	return NewController(signaling.New(st), st), st
}

func TestCreateOfferConvergesUnderRace(t *testing.T) {
	ctrl, st := newTestController()
	ctx := context.Background()

	offer := models.SessionDescription{Type: "offer", SDP: "O1"}

	// u1 < u2, so u1 is the offerer; both peers race to create.
	var wg sync.WaitGroup
	ids := make([]string, 2)
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		ids[0], errs[0] = ctrl.CreateOffer(ctx, "u1", "u2", "User One", "User Two", offer)
	}()
	go func() {
		defer wg.Done()
		ids[1], errs[1] = ctrl.CreateOffer(ctx, "u1", "u2", "User One", "User Two", models.SessionDescription{})
	}()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("createOffer %d: %v", i, err)
		}
	}
	if ids[0] != ids[1] || ids[0] != "u1_u2" {
		t.Fatalf("racing creates produced different keys: %v", ids)
	}

	fields, err := st.Get(ctx, "u1_u2")
	if err != nil {
		t.Fatalf("exactly one document must exist: %v", err)
	}
	session := models.PairedSessionFromFields("u1_u2", fields)
	if session.Status != models.PairStatusOffering {
		t.Errorf("status = %q, want offering", session.Status)
	}
	if session.Offer == nil || session.Offer.SDP != "O1" {
		t.Errorf("empty racing create clobbered the offer: %+v", session.Offer)
	}
}

func TestUpdateAnswerConnects(t *testing.T) {
	ctrl, _ := newTestController()
	ctx := context.Background()

	pairID, err := ctrl.CreateOffer(ctx, "u1", "u2", "", "", models.SessionDescription{Type: "offer", SDP: "O1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	snapshots, cancel, err := ctrl.ObserveConnection(ctx, pairID)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	defer cancel()

	if err := ctrl.UpdateAnswer(ctx, pairID, models.SessionDescription{Type: "answer", SDP: "A1"}); err != nil {
		t.Fatalf("answer: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				t.Fatal("stream closed")
			}
			if snap.Exists && snap.Session.Status == models.PairStatusConnected {
				if snap.Session.Answer == nil || snap.Session.Answer.SDP != "A1" {
					t.Errorf("answer missing on connected session: %+v", snap.Session)
				}
				return
			}
		case <-deadline:
			t.Fatal("session never read as connected")
		}
	}
}

func TestObserveMyConnectionsFiltersClosed(t *testing.T) {
	ctrl, _ := newTestController()
	ctx := context.Background()

	if _, err := ctrl.CreateOffer(ctx, "u1", "u2", "", "", models.SessionDescription{Type: "offer", SDP: "O1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ctrl.CreateOffer(ctx, "u1", "u3", "", "", models.SessionDescription{Type: "offer", SDP: "O2"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	connections, cancel, err := ctrl.ObserveMyConnections(ctx, "u1")
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	defer cancel()

	waitForLen := func(n int) []models.PairedSession {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case sessions, ok := <-connections:
				if !ok {
					t.Fatal("stream closed")
				}
				if len(sessions) == n {
					return sessions
				}
			case <-deadline:
				t.Fatalf("never observed %d live connections", n)
			}
		}
	}

	waitForLen(2)

	if err := ctrl.UpdateStatus(ctx, "u1_u2", models.PairStatusClosed); err != nil {
		t.Fatalf("close: %v", err)
	}

	remaining := waitForLen(1)
	if remaining[0].ID != "u1_u3" {
		t.Errorf("wrong session survived: %+v", remaining)
	}
}

func TestCleanupConnectionIdempotent(t *testing.T) {
	ctrl, st := newTestController()
	ctx := context.Background()

	pairID, err := ctrl.CreateOffer(ctx, "u1", "u2", "", "", models.SessionDescription{Type: "offer", SDP: "O1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := ctrl.CleanupConnection(ctx, pairID, "u1"); err != nil {
		t.Fatalf("first cleanup: %v", err)
	}
	if err := ctrl.CleanupConnection(ctx, pairID, "u1"); err != nil {
		t.Fatalf("repeated cleanup must succeed, got %v", err)
	}

	if _, err := st.Get(ctx, pairID); err == nil {
		t.Error("document survived cleanup")
	}
	for _, user := range []string{"u1", "u2"} {
		members, _ := st.IndexMembers(ctx, "pairs:"+user)
		if len(members) != 0 {
			t.Errorf("index for %s still holds %v", user, members)
		}
	}
}

func TestCleanupConnectionDeregistersCallerWithoutDocument(t *testing.T) {
	ctrl, st := newTestController()
	ctx := context.Background()

	pairID, err := ctrl.CreateOffer(ctx, "u1", "u2", "", "", models.SessionDescription{Type: "offer", SDP: "O1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// The peer already deleted the document; only the index entries
	// remain. Cleanup must still remove the caller's own entry.
	if err := st.Delete(ctx, pairID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := ctrl.CleanupConnection(ctx, pairID, "u1"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	members, _ := st.IndexMembers(ctx, "pairs:u1")
	if len(members) != 0 {
		t.Errorf("caller index still holds %v", members)
	}
}

func TestCleanupAllConnections(t *testing.T) {
	ctrl, st := newTestController()
	ctx := context.Background()

	for _, peer := range []string{"u2", "u3", "u4"} {
		if _, err := ctrl.CreateOffer(ctx, "u1", peer, "", "", models.SessionDescription{Type: "offer", SDP: "O"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	// One session already closed; cleanupAll removes it regardless of state.
	if err := ctrl.UpdateStatus(ctx, "u1_u2", models.PairStatusClosed); err != nil {
		t.Fatalf("status: %v", err)
	}

	if err := ctrl.CleanupAllConnections(ctx, "u1"); err != nil {
		t.Fatalf("cleanupAll: %v", err)
	}

	for _, pairID := range []string{"u1_u2", "u1_u3", "u1_u4"} {
		if _, err := st.Get(ctx, pairID); err == nil {
			t.Errorf("session %s survived cleanupAll", pairID)
		}
	}
	members, _ := st.IndexMembers(ctx, "pairs:u1")
	if len(members) != 0 {
		t.Errorf("index still holds %v", members)
	}

	// No sessions left: cleanupAll again is a no-op.
	if err := ctrl.CleanupAllConnections(ctx, "u1"); err != nil {
		t.Fatalf("repeated cleanupAll must succeed, got %v", err)
	}
}

func TestAddCandidateRejectsForeignRole(t *testing.T) {
	ctrl, _ := newTestController()
	err := ctrl.AddCandidate(context.Background(), "u1_u2", models.RoleCaller, models.ConnectivityCandidate{Candidate: "c"})
	if err == nil {
		t.Fatal("call roles must be rejected on the paired flow")
	}
}
