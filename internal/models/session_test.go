package models

import (
	"fmt"
	"testing"
)

func TestPairKeyDeterminism(t *testing.T) {
	testCases := []struct {
		a, b string
		want string
	}{
		{"alice", "bob", "alice_bob"},
		{"bob", "alice", "alice_bob"},
		{"u1", "u2", "u1_u2"},
		{"zed", "amy", "amy_zed"},
	}

	for _, tc := range testCases {
		if got := PairKey(tc.a, tc.b); got != tc.want {
			t.Errorf("PairKey(%q, %q) = %q, want %q", tc.a, tc.b, got, tc.want)
		}
		if PairKey(tc.a, tc.b) != PairKey(tc.b, tc.a) {
			t.Errorf("PairKey(%q, %q) != PairKey(%q, %q)", tc.a, tc.b, tc.b, tc.a)
		}
	}
}

func TestIsOffererAntisymmetry(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"u1", "u2"},
		{"zed", "amy"},
	}

	for _, p := range pairs {
		if IsOfferer(p[0], p[1]) == IsOfferer(p[1], p[0]) {
			t.Errorf("IsOfferer(%q, %q) and IsOfferer(%q, %q) must differ", p[0], p[1], p[1], p[0])
		}
	}
}

func TestParseCallStatusFallsBackToRinging(t *testing.T) {
	testCases := []struct {
		in   string
		want CallStatus
	}{
		{"ringing", CallStatusRinging},
		{"accepted", CallStatusAccepted},
		{"rejected", CallStatusRejected},
		{"ended", CallStatusEnded},
		{"", CallStatusRinging},
		{"RINGING", CallStatusRinging},
		{"garbage", CallStatusRinging},
	}

	for _, tc := range testCases {
		if got := ParseCallStatus(tc.in); got != tc.want {
			t.Errorf("ParseCallStatus(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParsePairStatusFallsBackToOffering(t *testing.T) {
	testCases := []struct {
		in   string
		want PairStatus
	}{
		{"offering", PairStatusOffering},
		{"connected", PairStatusConnected},
		{"closed", PairStatusClosed},
		{"", PairStatusOffering},
		{"42", PairStatusOffering},
	}

	for _, tc := range testCases {
		if got := ParsePairStatus(tc.in); got != tc.want {
			t.Errorf("ParsePairStatus(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDecodeDescriptionMalformed(t *testing.T) {
	if d := DecodeDescription(""); d != nil {
		t.Errorf("empty value should decode to nil, got %+v", d)
	}
	if d := DecodeDescription("{not json"); d != nil {
		t.Errorf("malformed value should decode to nil, got %+v", d)
	}

	encoded := EncodeDescription(SessionDescription{Type: "offer", SDP: "v=0"})
	d := DecodeDescription(encoded)
	if d == nil || d.Type != "offer" || d.SDP != "v=0" {
		t.Errorf("round trip failed: %+v", d)
	}
}

func TestCallSessionFromFieldsDefensive(t *testing.T) {
	session := CallSessionFromFields("k1", map[string]string{
		FieldCallerID:  "alice",
		FieldCalleeID:  "bob",
		FieldStatus:    "bogus",
		FieldOffer:     "{broken",
		FieldCreatedAt: "not-a-number",
	})

	if session.ID != "k1" || session.CallerID != "alice" || session.CalleeID != "bob" {
		t.Errorf("identity fields lost: %+v", session)
	}
	if session.Status != CallStatusRinging {
		t.Errorf("unknown status must read as ringing, got %q", session.Status)
	}
	if session.Offer != nil {
		t.Errorf("malformed offer must read as nil, got %+v", session.Offer)
	}
	if !session.CreatedAt.IsZero() {
		t.Errorf("malformed createdAt must read as zero time, got %v", session.CreatedAt)
	}
}

func TestCallStatusTerminal(t *testing.T) {
	for _, s := range []CallStatus{CallStatusRinging, CallStatusAccepted} {
		if s.Terminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
	for _, s := range []CallStatus{CallStatusRejected, CallStatusEnded} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}

func TestCandidateRoundTrip(t *testing.T) {
	cand := ConnectivityCandidate{Candidate: "candidate:1 1 UDP 2122", SDPMid: "0", SDPMLineIndex: 0}
	decoded, err := DecodeCandidate(EncodeCandidate(cand))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded != cand {
		t.Errorf("round trip changed candidate: %+v != %+v", decoded, cand)
	}

	if _, err := DecodeCandidate("{oops"); err == nil {
		t.Error("malformed candidate must return an error")
	}
}

func TestPairKeyExhaustivePairs(t *testing.T) {
	// Key derivation must agree for every ordering of distinct ids.
	ids := []string{"a", "b", "c", "user-10", "user-2"}
	for i, a := range ids {
		for j, b := range ids {
			if i == j {
				continue
			}
			name := fmt.Sprintf("%s/%s", a, b)
			if PairKey(a, b) != PairKey(b, a) {
				t.Errorf("%s: keys disagree", name)
			}
			if IsOfferer(a, b) == IsOfferer(b, a) {
				t.Errorf("%s: both sides resolved the same role", name)
			}
		}
	}
}
