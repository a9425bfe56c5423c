package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/federated-storage/proofpay/internal/models"
	"github.com/federated-storage/proofpay/internal/storage"
)

// ArbitrationService converts a proposed payment for a disputed epoch range
// into the pro-rata amount actually payable, based on how many epochs in
// the range fall inside proven periods. The payment ledger calls it back
// when settling; apart from the emitted event it mutates nothing, so
// overlapping ranges are safe to arbitrate repeatedly.
type ArbitrationService struct {
	store   storage.Store
	proving *ProvingService
	sink    EventSink
}

// NewArbitrationService creates the arbitration engine.
func NewArbitrationService(store storage.Store, proving *ProvingService, sink EventSink) *ArbitrationService {
	return &ArbitrationService{store: store, proving: proving, sink: sink}
}

// Arbitrate pro-rates proposedAmount over the range (fromEpoch, toEpoch].
// The settled-up-to marker is the last proven epoch in the range, or
// fromEpoch when nothing was proven.
func (s *ArbitrationService) Arbitrate(ctx context.Context, railID uuid.UUID, proposedAmount *big.Int, fromEpoch, toEpoch int64) (*models.ArbitrationResult, error) {
	dataset, err := s.store.GetDatasetByRail(ctx, railID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnknownRail
	}
	if err != nil {
		return nil, err
	}

	if toEpoch <= fromEpoch {
		return nil, ErrEmptyRange
	}
	if proposedAmount == nil || proposedAmount.Sign() < 0 {
		return nil, fmt.Errorf("invalid proposed amount")
	}

	state, err := s.proving.State(ctx, dataset.ID)
	if err != nil {
		return nil, err
	}
	if !state.Activated() {
		return &models.ArbitrationResult{
			ModifiedAmount: big.NewInt(0),
			SettleUpto:     fromEpoch,
			Note:           "proving never activated",
		}, nil
	}

	totalEpochs := toEpoch - fromEpoch
	var provenCount int64
	lastProvenEpoch := fromEpoch
	for e := fromEpoch + 1; e <= toEpoch; e++ {
		proven, err := s.proving.IsEpochProven(ctx, dataset.ID, e)
		if err != nil {
			return nil, err
		}
		if proven {
			provenCount++
			lastProvenEpoch = e
		}
	}

	result := &models.ArbitrationResult{
		ModifiedAmount: big.NewInt(0),
		SettleUpto:     fromEpoch,
		Note:           "no proven epochs",
	}
	if provenCount > 0 {
		// floor(proposed * proven / total); exact at both boundaries.
		modified := new(big.Int).Mul(proposedAmount, big.NewInt(provenCount))
		modified.Quo(modified, big.NewInt(totalEpochs))
		result = &models.ArbitrationResult{
			ModifiedAmount: modified,
			SettleUpto:     lastProvenEpoch,
			Note:           "",
		}
	}

	err = recordEvent(ctx, s.store, s.sink, dataset.ID, models.EventArbitrationSettled, map[string]any{
		"rail_id":         railID,
		"from_epoch":      fromEpoch,
		"to_epoch":        toEpoch,
		"proven_epochs":   provenCount,
		"faulted_epochs":  totalEpochs - provenCount,
		"proposed_amount": proposedAmount.String(),
		"modified_amount": result.ModifiedAmount.String(),
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
