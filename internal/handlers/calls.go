package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PlaceCallRequest is the request body for initiating a call
type PlaceCallRequest struct {
	CalleeID   string             `json:"calleeId" binding:"required"`
	CalleeName string             `json:"calleeName"`
	Offer      DescriptionPayload `json:"offer" binding:"required"`
}

// PlaceCallResponse carries the generated call id
type PlaceCallResponse struct {
	CallID string `json:"callId"`
}

// AnswerCallRequest is the request body for answering a call
type AnswerCallRequest struct {
	Answer DescriptionPayload `json:"answer" binding:"required"`
}

// PlaceCall initiates a call from the authenticated user to the callee
func (a *API) PlaceCall(c *gin.Context) {
	userID, userName, ok := identity(c)
	if !ok {
		return
	}

	var req PlaceCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	callID, err := a.Calls.InitiateCall(c.Request.Context(), userID, req.CalleeID, userName, req.CalleeName, req.Offer.description())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Failed to place call"})
		return
	}

	c.JSON(http.StatusCreated, PlaceCallResponse{CallID: callID})
}

// AnswerCall writes the answer and transitions the call to accepted
func (a *API) AnswerCall(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}

	var req AnswerCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	callID := c.Param("callId")
	if err := a.Calls.AnswerCall(c.Request.Context(), callID, userID, req.Answer.description()); err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Failed to answer call"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Call answered"})
}

// RejectCall transitions the call to rejected
func (a *API) RejectCall(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}

	callID := c.Param("callId")
	if err := a.Calls.RejectCall(c.Request.Context(), callID, userID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Failed to reject call"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Call rejected"})
}

// EndCall transitions the call to ended and restores the caller's
// presence
func (a *API) EndCall(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}

	callID := c.Param("callId")
	if err := a.Calls.EndCall(c.Request.Context(), callID, userID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Failed to end call"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Call ended"})
}

// AddCallCandidate appends a connectivity candidate to one role's
// stream of a call
func (a *API) AddCallCandidate(c *gin.Context) {
	if _, _, ok := identity(c); !ok {
		return
	}

	role, ok := callRole(c.Param("role"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Role must be caller or callee"})
		return
	}

	var req CandidatePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	callID := c.Param("callId")
	if err := a.Calls.AddCandidate(c.Request.Context(), callID, role, req.candidate()); err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Failed to add candidate"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Candidate added"})
}

// CleanupCall deletes the call session and its candidate streams;
// repeating the cleanup is success
func (a *API) CleanupCall(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}

	callID := c.Param("callId")
	if err := a.Calls.CleanupCall(c.Request.Context(), callID, userID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Failed to clean up call"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Call cleaned up"})
}
