package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/federated-storage/proofpay/internal/services"
)

// PayerHandler handles payer account registration
type PayerHandler struct {
	authService *services.AuthService
}

// NewPayerHandler creates a new payer handler
func NewPayerHandler(authService *services.AuthService) *PayerHandler {
	return &PayerHandler{authService: authService}
}

// RegisterPayerRequest carries the payer's protobuf-encoded public key.
type RegisterPayerRequest struct {
	PublicKey []byte `json:"public_key" binding:"required"`
}

// Register handles payer registration. Registration is idempotent: posting
// the same key again returns the existing account.
func (h *PayerHandler) Register(c *gin.Context) {
	var req RegisterPayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payer, err := h.authService.RegisterPayer(c.Request.Context(), req.PublicKey)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, payer)
}
