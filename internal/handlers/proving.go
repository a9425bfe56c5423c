package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/federated-storage/proofpay/internal/services"
)

// ProvingHandler handles the possession verifier's callbacks
type ProvingHandler struct {
	provingService *services.ProvingService
}

// NewProvingHandler creates a new proving handler
func NewProvingHandler(provingService *services.ProvingService) *ProvingHandler {
	return &ProvingHandler{provingService: provingService}
}

// RecordProofRequest reports an accepted possession proof for the open
// period.
type RecordProofRequest struct {
	ChallengeCount int64 `json:"challenge_count" binding:"required"`
}

// RecordProof handles the verifier reporting a checked possession proof
func (h *ProvingHandler) RecordProof(c *gin.Context) {
	datasetID, ok := datasetParam(c)
	if !ok {
		return
	}

	var req RecordProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.provingService.RecordProof(c.Request.Context(), datasetID, req.ChallengeCount); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "proven"})
}

// NextPeriodRequest advances the proving-period state machine.
type NextPeriodRequest struct {
	ChallengeEpoch int64  `json:"challenge_epoch"`
	LeafCount      uint64 `json:"leaf_count"`
}

// NextPeriod handles activation and rollover of proving periods
func (h *ProvingHandler) NextPeriod(c *gin.Context) {
	datasetID, ok := datasetParam(c)
	if !ok {
		return
	}

	var req NextPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.provingService.NextProvingPeriod(c.Request.Context(), datasetID, req.ChallengeEpoch, req.LeafCount); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "advanced"})
}
