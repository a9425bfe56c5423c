package handlers

import (
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/federated-storage/proofpay/internal/services"
)

// ArbitrationHandler handles the payment ledger's settlement callback
type ArbitrationHandler struct {
	arbitrationService *services.ArbitrationService
}

// NewArbitrationHandler creates a new arbitration handler
func NewArbitrationHandler(arbitrationService *services.ArbitrationService) *ArbitrationHandler {
	return &ArbitrationHandler{arbitrationService: arbitrationService}
}

// ArbitrateRequest is the ledger's settlement proposal for an epoch range.
type ArbitrateRequest struct {
	RailID         uuid.UUID `json:"rail_id" binding:"required"`
	ProposedAmount string    `json:"proposed_amount" binding:"required"`
	FromEpoch      int64     `json:"from_epoch"`
	ToEpoch        int64     `json:"to_epoch" binding:"required"`
}

// Arbitrate handles pro-rating a proposed settlement over proven epochs
func (h *ArbitrationHandler) Arbitrate(c *gin.Context) {
	var req ArbitrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	proposed, ok := new(big.Int).SetString(req.ProposedAmount, 10)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proposed amount"})
		return
	}

	result, err := h.arbitrationService.Arbitrate(c.Request.Context(), req.RailID, proposed, req.FromEpoch, req.ToEpoch)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}
