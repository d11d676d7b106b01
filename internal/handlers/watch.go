package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mossy-p/call-signaling/internal/call"
	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/paired"
	"github.com/mossy-p/call-signaling/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// CallSnapshotPayload is the wire form of one call observation.
// Session is null once the document is deleted.
type CallSnapshotPayload struct {
	Exists  bool                `json:"exists"`
	Session *models.CallSession `json:"session,omitempty"`
}

// PairSnapshotPayload is the wire form of one paired-session
// observation
type PairSnapshotPayload struct {
	Exists  bool                  `json:"exists"`
	Session *models.PairedSession `json:"session,omitempty"`
}

// CandidateListPayload is the wire form of one candidate-stream
// observation: always the full current list, never a delta
type CandidateListPayload struct {
	Candidates []models.ConnectivityCandidate `json:"candidates"`
}

// wsIdentity authenticates a WebSocket request from its token query
// parameter
func (a *API) wsIdentity(c *gin.Context) (userID, userName string, ok bool) {
	userID, userName, err := ParseToken(a.JWTSecret, c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return "", "", false
	}
	return userID, userName, true
}

// WatchCall streams call-session snapshots until the client
// disconnects
func (a *API) WatchCall(c *gin.Context) {
	if _, _, ok := a.wsIdentity(c); !ok {
		return
	}
	callID := c.Param("callId")

	snapshots, cancel, err := a.Calls.ObserveCall(context.Background(), callID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Failed to observe call"})
		return
	}

	conn, err := upgrade(c, cancel)
	if err != nil {
		return
	}
	stream(conn, cancel, snapshots, func(s call.Snapshot) interface{} {
		payload := CallSnapshotPayload{Exists: s.Exists}
		if s.Exists {
			session := s.Session
			payload.Session = &session
		}
		return payload
	})
}

// WatchCallCandidates streams one role's candidate list of a call
func (a *API) WatchCallCandidates(c *gin.Context) {
	if _, _, ok := a.wsIdentity(c); !ok {
		return
	}
	role, ok := callRole(c.Param("role"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Role must be caller or callee"})
		return
	}
	callID := c.Param("callId")

	lists, cancel, err := a.Calls.ObserveCandidates(context.Background(), callID, role)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Failed to observe candidates"})
		return
	}

	conn, err := upgrade(c, cancel)
	if err != nil {
		return
	}
	stream(conn, cancel, lists, func(cands []models.ConnectivityCandidate) interface{} {
		return CandidateListPayload{Candidates: cands}
	})
}

// WatchIncoming streams the authenticated user's most recent ringing
// call, or null when none
func (a *API) WatchIncoming(c *gin.Context) {
	userID, _, ok := a.wsIdentity(c)
	if !ok {
		return
	}

	incoming, cancel, err := a.Calls.ObserveIncoming(context.Background(), userID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Failed to observe incoming calls"})
		return
	}

	conn, err := upgrade(c, cancel)
	if err != nil {
		return
	}
	stream(conn, cancel, incoming, func(session *models.CallSession) interface{} {
		return CallSnapshotPayload{Exists: session != nil, Session: session}
	})
}

// WatchPair streams paired-session snapshots
func (a *API) WatchPair(c *gin.Context) {
	if _, _, ok := a.wsIdentity(c); !ok {
		return
	}
	pairID := c.Param("pairId")

	snapshots, cancel, err := a.Pairs.ObserveConnection(context.Background(), pairID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Failed to observe paired session"})
		return
	}

	conn, err := upgrade(c, cancel)
	if err != nil {
		return
	}
	stream(conn, cancel, snapshots, func(s paired.Snapshot) interface{} {
		payload := PairSnapshotPayload{Exists: s.Exists}
		if s.Exists {
			session := s.Session
			payload.Session = &session
		}
		return payload
	})
}

// WatchPairCandidates streams one role's candidate list of a paired
// session
func (a *API) WatchPairCandidates(c *gin.Context) {
	if _, _, ok := a.wsIdentity(c); !ok {
		return
	}
	role, ok := pairRole(c.Param("role"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Role must be offerer or answerer"})
		return
	}
	pairID := c.Param("pairId")

	lists, cancel, err := a.Pairs.ObserveCandidates(context.Background(), pairID, role)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Failed to observe candidates"})
		return
	}

	conn, err := upgrade(c, cancel)
	if err != nil {
		return
	}
	stream(conn, cancel, lists, func(cands []models.ConnectivityCandidate) interface{} {
		return CandidateListPayload{Candidates: cands}
	})
}

// WatchMyPairs streams the authenticated user's non-closed paired
// sessions
func (a *API) WatchMyPairs(c *gin.Context) {
	userID, _, ok := a.wsIdentity(c)
	if !ok {
		return
	}

	connections, cancel, err := a.Pairs.ObserveMyConnections(context.Background(), userID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Failed to observe paired sessions"})
		return
	}

	conn, err := upgrade(c, cancel)
	if err != nil {
		return
	}
	stream(conn, cancel, connections, func(sessions []models.PairedSession) interface{} {
		return sessions
	})
}

func upgrade(c *gin.Context, cancel store.CancelFunc) (*websocket.Conn, error) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		cancel()
		log.Printf("Failed to upgrade connection: %v", err)
		return nil, err
	}
	return conn, nil
}

// stream forwards subscription values to the socket as JSON until the
// subscription closes or the client disconnects. A read loop watches
// for the client going away; pings keep intermediaries from timing the
// connection out.
func stream[T any](conn *websocket.Conn, cancel store.CancelFunc, updates <-chan T, encode func(T) interface{}) {
	defer conn.Close()
	defer cancel()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case value, ok := <-updates:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(encode(value)); err != nil {
				log.Printf("Failed to write snapshot: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
