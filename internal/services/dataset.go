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

// DatasetParams holds the rail-creation constants the registry applies to
// every new dataset.
type DatasetParams struct {
	Token         string
	CommissionBps int64
	CreationFee   *big.Int
	LockupPeriod  int64
	ServiceID     string
}

// DatasetService is the dataset registry. It owns dataset metadata and the
// create/add/remove/delete lifecycle; every mutation passes the
// authorization gate first.
type DatasetService struct {
	store  storage.Store
	rails  ledger.PaymentLedger
	auth   *AuthService
	sink   EventSink
	params DatasetParams
	locks  *datasetLocks
}

// NewDatasetService creates the dataset registry.
func NewDatasetService(store storage.Store, rails ledger.PaymentLedger, auth *AuthService, sink EventSink, params DatasetParams) *DatasetService {
	return &DatasetService{
		store:  store,
		rails:  rails,
		auth:   auth,
		sink:   sink,
		params: params,
		locks:  newDatasetLocks(),
	}
}

// CreateDatasetRequest represents a signed dataset creation request
type CreateDatasetRequest struct {
	Payer     string `json:"payer" binding:"required"`
	Provider  string `json:"provider" binding:"required"`
	Metadata  string `json:"metadata"`
	Signature []byte `json:"signature" binding:"required"`
}

// CreateDataset creates a dataset for an approved provider, allocating its
// payment rail with zero initial rate and charging the one-time creation
// fee. The fee is covered by the fixed lockup set in the same flow.
func (s *DatasetService) CreateDataset(ctx context.Context, req CreateDatasetRequest) (*models.Dataset, error) {
	approved, err := s.store.IsProviderApproved(ctx, req.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to check provider approval: %w", err)
	}
	if !approved {
		return nil, ErrProviderNotApproved
	}

	account, err := s.auth.VerifyCreate(ctx, req.Payer, req.Provider, req.Metadata, req.Signature)
	if err != nil {
		return nil, err
	}

	railID, err := s.rails.CreateRail(ctx, s.params.Token, req.Payer, req.Provider,
		s.params.ServiceID, s.params.CommissionBps)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate rail: %w", err)
	}

	// Lockup must dominate any one-time payment charged on the rail.
	if err := s.rails.SetLockup(ctx, railID, s.params.LockupPeriod, s.params.CreationFee); err != nil {
		return nil, fmt.Errorf("failed to set lockup: %w", err)
	}
	if err := s.rails.SetRate(ctx, railID, big.NewInt(0), s.params.CreationFee); err != nil {
		return nil, fmt.Errorf("failed to charge creation fee: %w", err)
	}

	if err := s.auth.ConsumeSequence(ctx, req.Payer, account.Sequence); err != nil {
		return nil, err
	}

	dataset := &models.Dataset{
		ID:            uuid.New(),
		Payer:         req.Payer,
		Provider:      req.Provider,
		RailID:        railID,
		CommissionBps: s.params.CommissionBps,
		Metadata:      req.Metadata,
	}
	state := &models.ProvingState{
		DatasetID:       dataset.ID,
		ProvingDeadline: models.NoProvingDeadline,
		ActivationEpoch: models.NeverActivated,
	}
	if err := s.store.CreateDataset(ctx, dataset, state); err != nil {
		return nil, fmt.Errorf("failed to store dataset: %w", err)
	}

	err = recordEvent(ctx, s.store, s.sink, dataset.ID, models.EventDatasetCreated, map[string]any{
		"payer":    dataset.Payer,
		"provider": dataset.Provider,
		"rail_id":  dataset.RailID,
	})
	if err != nil {
		return nil, err
	}

	return dataset, nil
}

// AddPiecesRequest represents a signed piece addition request
type AddPiecesRequest struct {
	Pieces    []string `json:"pieces" binding:"required"`
	Signature []byte   `json:"signature" binding:"required"`
}

// AddPieces appends piece metadata to a dataset. The authorization message
// is bound to the dataset's current piece count, so stale or reordered add
// requests fail verification. Proving state is untouched; the rate catches
// up on the next scheduler transition.
func (s *DatasetService) AddPieces(ctx context.Context, datasetID uuid.UUID, req AddPiecesRequest) ([]models.Piece, error) {
	unlock := s.locks.lock(datasetID)
	defer unlock()

	dataset, err := s.getDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	count, err := s.store.PieceCount(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	if err := s.auth.VerifyAddPieces(ctx, dataset.Payer, datasetID, count, req.Pieces, req.Signature); err != nil {
		return nil, err
	}

	pieces := make([]models.Piece, len(req.Pieces))
	for i, metadata := range req.Pieces {
		pieces[i] = models.Piece{
			DatasetID:  datasetID,
			PieceIndex: count + uint64(i),
			Metadata:   metadata,
		}
	}
	if err := s.store.AddPieces(ctx, datasetID, pieces); err != nil {
		return nil, fmt.Errorf("failed to add pieces: %w", err)
	}

	err = recordEvent(ctx, s.store, s.sink, datasetID, models.EventPiecesAdded, map[string]any{
		"first_index": count,
		"count":       len(pieces),
	})
	if err != nil {
		return nil, err
	}

	return pieces, nil
}

// ScheduleRemovalRequest represents a signed piece removal request
type ScheduleRemovalRequest struct {
	PieceIndexes []uint64 `json:"piece_indexes" binding:"required"`
	Signature    []byte   `json:"signature" binding:"required"`
}

// ScheduleRemoval validates the signed removal request. The removal
// bookkeeping itself is not implemented yet; the accepted request is only
// recorded as an event.
//
// TODO: apply the removed flag and shrink billing size once the removal
// settlement flow is specified.
func (s *DatasetService) ScheduleRemoval(ctx context.Context, datasetID uuid.UUID, req ScheduleRemovalRequest) error {
	unlock := s.locks.lock(datasetID)
	defer unlock()

	dataset, err := s.getDataset(ctx, datasetID)
	if err != nil {
		return err
	}

	if err := s.auth.VerifyScheduleRemoval(ctx, dataset.Payer, datasetID, req.PieceIndexes, req.Signature); err != nil {
		return err
	}

	return recordEvent(ctx, s.store, s.sink, datasetID, models.EventRemovalScheduled, map[string]any{
		"piece_indexes": req.PieceIndexes,
	})
}

// DeleteDatasetRequest represents a signed dataset deletion request
type DeleteDatasetRequest struct {
	Signature []byte `json:"signature" binding:"required"`
}

// DeleteDataset validates the signed deletion and soft-deletes the dataset
// row. Rail settlement and termination on deletion are not implemented yet;
// the rail is left as-is.
//
// TODO: settle and terminate the rail once the deletion settlement flow is
// specified.
func (s *DatasetService) DeleteDataset(ctx context.Context, datasetID uuid.UUID, req DeleteDatasetRequest) error {
	unlock := s.locks.lock(datasetID)
	defer unlock()

	dataset, err := s.getDataset(ctx, datasetID)
	if err != nil {
		return err
	}

	if err := s.auth.VerifyDelete(ctx, dataset.Payer, datasetID, req.Signature); err != nil {
		return err
	}

	if err := s.store.MarkDatasetDeleted(ctx, datasetID); err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}

	return recordEvent(ctx, s.store, s.sink, datasetID, models.EventDatasetDeleted, nil)
}

// GetDataset retrieves a dataset by id.
func (s *DatasetService) GetDataset(ctx context.Context, datasetID uuid.UUID) (*models.Dataset, error) {
	return s.getDataset(ctx, datasetID)
}

func (s *DatasetService) getDataset(ctx context.Context, datasetID uuid.UUID) (*models.Dataset, error) {
	dataset, err := s.store.GetDataset(ctx, datasetID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrDatasetNotFound
	}
	if err != nil {
		return nil, err
	}
	if dataset.RailID == uuid.Nil {
		return nil, ErrNotRegistered
	}
	return dataset, nil
}
