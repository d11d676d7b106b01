package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/call-signaling/internal/call"
	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/paired"
	"github.com/mossy-p/call-signaling/internal/presence"
	"github.com/mossy-p/call-signaling/internal/store"
)

// Pinger reports store reachability for the health endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// API holds the handler dependencies, wired once at startup
type API struct {
	Calls     *call.Controller
	Pairs     *paired.Controller
	Presence  presence.Setter
	Store     Pinger
	JWTSecret string
}

// Health reports service and store health
func (a *API) Health(c *gin.Context) {
	if a.Store != nil {
		if err := a.Store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "store unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// DescriptionPayload is the wire form of a session description
type DescriptionPayload struct {
	Type string `json:"type" binding:"required"`
	SDP  string `json:"sdp" binding:"required"`
}

// CandidatePayload is the wire form of a connectivity candidate
type CandidatePayload struct {
	Candidate     string `json:"candidate" binding:"required"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
}

func (p DescriptionPayload) description() models.SessionDescription {
	return models.SessionDescription{Type: p.Type, SDP: p.SDP}
}

func (p CandidatePayload) candidate() models.ConnectivityCandidate {
	return models.ConnectivityCandidate{
		Candidate:     p.Candidate,
		SDPMid:        p.SDPMid,
		SDPMLineIndex: p.SDPMLineIndex,
	}
}

// identity returns the authenticated caller from the JWT middleware
func identity(c *gin.Context) (userID, userName string, ok bool) {
	userID = c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return "", "", false
	}
	return userID, c.GetString("user_name"), true
}

// statusFor maps a classified store failure onto an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func callRole(s string) (models.Role, bool) {
	switch models.Role(s) {
	case models.RoleCaller, models.RoleCallee:
		return models.Role(s), true
	default:
		return "", false
	}
}

func pairRole(s string) (models.Role, bool) {
	switch models.Role(s) {
	case models.RoleOfferer, models.RoleAnswerer:
		return models.Role(s), true
	default:
		return "", false
	}
}
