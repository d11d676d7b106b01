package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// CallStatus represents the state of a one-to-one call session
type CallStatus string

const (
	CallStatusRinging  CallStatus = "ringing"
	CallStatusAccepted CallStatus = "accepted"
	CallStatusRejected CallStatus = "rejected"
	CallStatusEnded    CallStatus = "ended"
)

// PairStatus represents the state of a paired (walkie-talkie) session
type PairStatus string

const (
	PairStatusOffering  PairStatus = "offering"
	PairStatusConnected PairStatus = "connected"
	PairStatusClosed    PairStatus = "closed"
)

// Role identifies which candidate sub-stream a peer writes to
type Role string

const (
	RoleCaller   Role = "caller"
	RoleCallee   Role = "callee"
	RoleOfferer  Role = "offerer"
	RoleAnswerer Role = "answerer"
)

// ParseCallStatus decodes a status value defensively: an unrecognized
// value falls back to the flow's initial state instead of failing the read
func ParseCallStatus(s string) CallStatus {
	switch CallStatus(s) {
	case CallStatusRinging, CallStatusAccepted, CallStatusRejected, CallStatusEnded:
		return CallStatus(s)
	default:
		return CallStatusRinging
	}
}

// ParsePairStatus decodes a status value defensively, falling back to OFFERING
func ParsePairStatus(s string) PairStatus {
	switch PairStatus(s) {
	case PairStatusOffering, PairStatusConnected, PairStatusClosed:
		return PairStatus(s)
	default:
		return PairStatusOffering
	}
}

// Terminal reports whether no further transition may leave this status
func (s CallStatus) Terminal() bool {
	return s == CallStatusRejected || s == CallStatusEnded
}

// Terminal reports whether the paired session is closed for good
func (s PairStatus) Terminal() bool {
	return s == PairStatusClosed
}

// SessionDescription is the opaque negotiation payload produced by the
// media engine. Immutable once created.
type SessionDescription struct {
	Type string `json:"type"` // "offer" or "answer"
	SDP  string `json:"sdp"`
}

// ConnectivityCandidate is an opaque network-reachability descriptor
// emitted incrementally by the media engine
type ConnectivityCandidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
}

// CallSession is the session document for a one-to-one call
type CallSession struct {
	ID         string              `json:"id"`
	CallerID   string              `json:"callerId"`
	CalleeID   string              `json:"calleeId"`
	CallerName string              `json:"callerName"`
	CalleeName string              `json:"calleeName"`
	Status     CallStatus          `json:"status"`
	Offer      *SessionDescription `json:"offer,omitempty"`
	Answer     *SessionDescription `json:"answer,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
}

// PairedSession is the session document for a walkie-talkie connection
type PairedSession struct {
	ID           string              `json:"id"`
	OffererID    string              `json:"offererId"`
	AnswererID   string              `json:"answererId"`
	OffererName  string              `json:"offererName"`
	AnswererName string              `json:"answererName"`
	Status       PairStatus          `json:"status"`
	Offer        *SessionDescription `json:"offer,omitempty"`
	Answer       *SessionDescription `json:"answer,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
}

// PairKey derives the deterministic document key for a participant pair.
// Both peers compute the same key without coordination: the ids are
// joined in lexicographic order.
func PairKey(a, b string) string {
	if a < b {
		return a + "_" + b
	}
	return b + "_" + a
}

// IsOfferer reports whether myID takes the offerer role against peerID.
// Pure and local, so exactly one side is the offer initiator without a
// negotiation round trip.
func IsOfferer(myID, peerID string) bool {
	return myID < peerID
}

// Document field names shared by both session kinds.
const (
	FieldCallerID     = "callerId"
	FieldCalleeID     = "calleeId"
	FieldCallerName   = "callerName"
	FieldCalleeName   = "calleeName"
	FieldOffererID    = "offererId"
	FieldAnswererID   = "answererId"
	FieldOffererName  = "offererName"
	FieldAnswererName = "answererName"
	FieldStatus       = "status"
	FieldOffer        = "offer"
	FieldAnswer       = "answer"
	FieldCreatedAt    = "createdAt"
)

// EncodeDescription marshals a session description into a document field value
func EncodeDescription(d SessionDescription) string {
	data, _ := json.Marshal(d)
	return string(data)
}

// DecodeDescription unmarshals a document field value into a session
// description; a malformed or empty value yields nil rather than an error
func DecodeDescription(s string) *SessionDescription {
	if s == "" {
		return nil
	}
	var d SessionDescription
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return nil
	}
	return &d
}

// EncodeCandidate marshals a candidate for append into a role stream
func EncodeCandidate(c ConnectivityCandidate) string {
	data, _ := json.Marshal(c)
	return string(data)
}

// DecodeCandidate unmarshals a candidate list entry
func DecodeCandidate(s string) (ConnectivityCandidate, error) {
	var c ConnectivityCandidate
	err := json.Unmarshal([]byte(s), &c)
	return c, err
}

// DecodeCreatedAt parses the store-assigned creation timestamp
// (unix nanoseconds as a decimal string). Zero time on malformed input.
func DecodeCreatedAt(s string) time.Time {
	ns, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ns <= 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// CallSessionFromFields decodes a call session document. Malformed
// fields degrade to zero values; an unknown status reads as RINGING.
func CallSessionFromFields(id string, fields map[string]string) CallSession {
	return CallSession{
		ID:         id,
		CallerID:   fields[FieldCallerID],
		CalleeID:   fields[FieldCalleeID],
		CallerName: fields[FieldCallerName],
		CalleeName: fields[FieldCalleeName],
		Status:     ParseCallStatus(fields[FieldStatus]),
		Offer:      DecodeDescription(fields[FieldOffer]),
		Answer:     DecodeDescription(fields[FieldAnswer]),
		CreatedAt:  DecodeCreatedAt(fields[FieldCreatedAt]),
	}
}

// PairedSessionFromFields decodes a paired session document. An unknown
// status reads as OFFERING.
func PairedSessionFromFields(id string, fields map[string]string) PairedSession {
	return PairedSession{
		ID:           id,
		OffererID:    fields[FieldOffererID],
		AnswererID:   fields[FieldAnswererID],
		OffererName:  fields[FieldOffererName],
		AnswererName: fields[FieldAnswererName],
		Status:       ParsePairStatus(fields[FieldStatus]),
		Offer:        DecodeDescription(fields[FieldOffer]),
		Answer:       DecodeDescription(fields[FieldAnswer]),
		CreatedAt:    DecodeCreatedAt(fields[FieldCreatedAt]),
	}
}
