package services

import (
	"context"
	"fmt"

	"github.com/federated-storage/proofpay/internal/models"
	"github.com/federated-storage/proofpay/internal/storage"
)

// ProviderService manages the approved-provider allow-list. Datasets can
// only be created against providers on this list.
type ProviderService struct {
	store storage.Store
}

// NewProviderService creates a new provider service
func NewProviderService(store storage.Store) *ProviderService {
	return &ProviderService{store: store}
}

// ApproveProviderRequest represents a provider approval request
type ApproveProviderRequest struct {
	Address string `json:"address" binding:"required"`
	Name    string `json:"name"`
}

// Approve adds a provider to the allow-list.
func (s *ProviderService) Approve(ctx context.Context, req ApproveProviderRequest, approvedBy string) (*models.Provider, error) {
	provider := &models.Provider{
		Address:    req.Address,
		Name:       req.Name,
		ApprovedBy: approvedBy,
	}
	if err := s.store.ApproveProvider(ctx, provider); err != nil {
		return nil, fmt.Errorf("failed to approve provider: %w", err)
	}
	return provider, nil
}

// Revoke removes a provider from the allow-list. Existing datasets keep
// their provider; revocation only blocks new creations.
func (s *ProviderService) Revoke(ctx context.Context, address string) error {
	return s.store.RevokeProvider(ctx, address)
}

// IsApproved reports whether the provider is on the allow-list.
func (s *ProviderService) IsApproved(ctx context.Context, address string) (bool, error) {
	return s.store.IsProviderApproved(ctx, address)
}

// List returns all approved providers.
func (s *ProviderService) List(ctx context.Context) ([]models.Provider, error) {
	return s.store.ListProviders(ctx)
}
