package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/federated-storage/proofpay/internal/middleware"
	"github.com/federated-storage/proofpay/internal/services"
)

// ProviderHandler handles provider allow-list administration
type ProviderHandler struct {
	providerService *services.ProviderService
}

// NewProviderHandler creates a new provider handler
func NewProviderHandler(providerService *services.ProviderService) *ProviderHandler {
	return &ProviderHandler{providerService: providerService}
}

// Approve handles adding a provider to the allow-list
func (h *ProviderHandler) Approve(c *gin.Context) {
	var req services.ApproveProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	provider, err := h.providerService.Approve(c.Request.Context(), req, middleware.GetOperator(c))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, provider)
}

// Revoke handles removing a provider from the allow-list
func (h *ProviderHandler) Revoke(c *gin.Context) {
	address := c.Param("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing provider address"})
		return
	}

	if err := h.providerService.Revoke(c.Request.Context(), address); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

// List handles listing approved providers
func (h *ProviderHandler) List(c *gin.Context) {
	providers, err := h.providerService.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"providers": providers})
}
