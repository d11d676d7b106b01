package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/call-signaling/internal/models"
)

// CreatePairRequest is the request body for opening a walkie-talkie
// connection to a peer. Roles are derived from the two user ids, not
// chosen by the caller.
type CreatePairRequest struct {
	PeerID   string              `json:"peerId" binding:"required"`
	PeerName string              `json:"peerName"`
	Offer    *DescriptionPayload `json:"offer"`
}

// CreatePairResponse carries the deterministic pair id and the
// caller's resolved role
type CreatePairResponse struct {
	PairID  string `json:"pairId"`
	Offerer bool   `json:"offerer"`
}

// PairAnswerRequest is the request body for answering a paired session
type PairAnswerRequest struct {
	Answer DescriptionPayload `json:"answer" binding:"required"`
}

// PairStatusRequest is the request body for an explicit status
// transition
type PairStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// CreatePair upsert-creates the paired session between the caller and
// the peer. Both sides may race to call this; the store converges to
// one document at the deterministic key.
func (a *API) CreatePair(c *gin.Context) {
	userID, userName, ok := identity(c)
	if !ok {
		return
	}

	var req CreatePairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.PeerID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot pair with yourself"})
		return
	}

	offererID, answererID := userID, req.PeerID
	offererName, answererName := userName, req.PeerName
	isOfferer := models.IsOfferer(userID, req.PeerID)
	if !isOfferer {
		offererID, answererID = req.PeerID, userID
		offererName, answererName = req.PeerName, userName
	}

	var offer models.SessionDescription
	if req.Offer != nil {
		offer = req.Offer.description()
	}

	pairID, err := a.Pairs.CreateOffer(c.Request.Context(), offererID, answererID, offererName, answererName, offer)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Failed to create paired session"})
		return
	}

	c.JSON(http.StatusCreated, CreatePairResponse{PairID: pairID, Offerer: isOfferer})
}

// AnswerPair writes the answer; the session reads as connected from
// then on
func (a *API) AnswerPair(c *gin.Context) {
	if _, _, ok := identity(c); !ok {
		return
	}

	var req PairAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pairID := c.Param("pairId")
	if err := a.Pairs.UpdateAnswer(c.Request.Context(), pairID, req.Answer.description()); err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Failed to answer paired session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Paired session answered"})
}

// UpdatePairStatus performs an explicit status transition, notably to
// closed
func (a *API) UpdatePairStatus(c *gin.Context) {
	if _, _, ok := identity(c); !ok {
		return
	}

	var req PairStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pairID := c.Param("pairId")
	status := models.ParsePairStatus(req.Status)
	if err := a.Pairs.UpdateStatus(c.Request.Context(), pairID, status); err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Failed to update paired session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Paired session updated"})
}

// AddPairCandidate appends a connectivity candidate to one role's
// stream of a paired session
func (a *API) AddPairCandidate(c *gin.Context) {
	if _, _, ok := identity(c); !ok {
		return
	}

	role, ok := pairRole(c.Param("role"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Role must be offerer or answerer"})
		return
	}

	var req CandidatePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pairID := c.Param("pairId")
	if err := a.Pairs.AddCandidate(c.Request.Context(), pairID, role, req.candidate()); err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Failed to add candidate"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Candidate added"})
}

// CleanupPair deletes one paired session; repeating the cleanup is
// success
func (a *API) CleanupPair(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}

	pairID := c.Param("pairId")
	if err := a.Pairs.CleanupConnection(c.Request.Context(), pairID, userID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Failed to clean up paired session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Paired session cleaned up"})
}

// CleanupAllPairs deletes every paired session the caller participates
// in, in any state
func (a *API) CleanupAllPairs(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}

	if err := a.Pairs.CleanupAllConnections(c.Request.Context(), userID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Failed to clean up paired sessions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Paired sessions cleaned up"})
}
