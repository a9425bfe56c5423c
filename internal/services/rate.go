package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/federated-storage/proofpay/internal/ledger"
	"github.com/federated-storage/proofpay/internal/models"
	"github.com/federated-storage/proofpay/internal/storage"
)

const bytesPerTiB = int64(1) << 40

// RateParams holds the pricing constants for rate computation.
type RateParams struct {
	PricePerTiBMonth *big.Int
	MinRate          *big.Int
	FreeTierBytes    int64
	LeafSizeBytes    int64
	EpochsPerMonth   int64
}

// RateService keeps each dataset's rail rate in sync with its current size.
// It is invoked on every proving-period transition and after size-changing
// piece mutations.
type RateService struct {
	store  storage.Store
	rails  ledger.PaymentLedger
	sink   EventSink
	params RateParams
}

// NewRateService creates a new rate synchronizer.
func NewRateService(store storage.Store, rails ledger.PaymentLedger, sink EventSink, params RateParams) *RateService {
	return &RateService{store: store, rails: rails, sink: sink, params: params}
}

// UpdateRate recomputes the per-epoch rate from the dataset's current leaf
// count and pushes it to the rail. No one-time payment is charged here.
func (s *RateService) UpdateRate(ctx context.Context, datasetID uuid.UUID, leafCount uint64) (*big.Int, error) {
	dataset, err := s.store.GetDataset(ctx, datasetID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrDatasetNotFound
	}
	if err != nil {
		return nil, err
	}

	totalBytes := new(big.Int).Mul(
		new(big.Int).SetUint64(leafCount),
		big.NewInt(s.params.LeafSizeBytes))
	rate := s.ComputeRate(totalBytes)

	if err := s.rails.SetRate(ctx, dataset.RailID, rate, nil); err != nil {
		return nil, fmt.Errorf("failed to push rate: %w", err)
	}

	err = recordEvent(ctx, s.store, s.sink, datasetID, models.EventRateChanged, map[string]any{
		"leaf_count":  leafCount,
		"total_bytes": totalBytes.String(),
		"rate":        rate.String(),
	})
	if err != nil {
		return nil, err
	}

	return rate, nil
}

// ComputeRate is the pure pricing function: floor(totalBytes * price /
// (bytesPerTiB * epochsPerMonth)), zero below the free tier, and never zero
// above it.
func (s *RateService) ComputeRate(totalBytes *big.Int) *big.Int {
	if totalBytes.Cmp(big.NewInt(s.params.FreeTierBytes)) < 0 {
		return big.NewInt(0)
	}

	numerator := new(big.Int).Mul(totalBytes, s.params.PricePerTiBMonth)
	denominator := new(big.Int).Mul(big.NewInt(bytesPerTiB), big.NewInt(s.params.EpochsPerMonth))
	rate := new(big.Int).Quo(numerator, denominator)

	if rate.Sign() == 0 {
		return new(big.Int).Set(s.params.MinRate)
	}
	return rate
}
