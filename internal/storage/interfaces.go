package storage

import (
	"context"
	"errors"
	"math/big"

	"github.com/google/uuid"

	"github.com/federated-storage/proofpay/internal/models"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Store is the persistence surface injected into every service. Two
// implementations exist: a pgx-backed store for production and an in-memory
// store for tests.
type Store interface {
	// Payer accounts
	CreatePayer(ctx context.Context, payer *models.PayerAccount) error
	GetPayer(ctx context.Context, address string) (*models.PayerAccount, error)
	// IncrementPayerSequence bumps the payer's sequence by one, but only if
	// it still equals expected. A stale expectation means a concurrent or
	// replayed create and returns ErrNotFound.
	IncrementPayerSequence(ctx context.Context, address string, expected uint64) error

	// Provider allow-list
	ApproveProvider(ctx context.Context, provider *models.Provider) error
	RevokeProvider(ctx context.Context, address string) error
	IsProviderApproved(ctx context.Context, address string) (bool, error)
	ListProviders(ctx context.Context) ([]models.Provider, error)

	// Datasets and pieces
	CreateDataset(ctx context.Context, dataset *models.Dataset, state *models.ProvingState) error
	GetDataset(ctx context.Context, id uuid.UUID) (*models.Dataset, error)
	GetDatasetByRail(ctx context.Context, railID uuid.UUID) (*models.Dataset, error)
	MarkDatasetDeleted(ctx context.Context, id uuid.UUID) error
	AddPieces(ctx context.Context, datasetID uuid.UUID, pieces []models.Piece) error
	PieceCount(ctx context.Context, datasetID uuid.UUID) (uint64, error)

	// Proving state
	GetProvingState(ctx context.Context, datasetID uuid.UUID) (*models.ProvingState, error)
	PutProvingState(ctx context.Context, state *models.ProvingState) error
	SetPeriodProven(ctx context.Context, datasetID uuid.UUID, periodID int64, proven bool) error
	IsPeriodProven(ctx context.Context, datasetID uuid.UUID, periodID int64) (bool, error)

	// Rails
	CreateRail(ctx context.Context, rail *models.Rail) error
	GetRail(ctx context.Context, id uuid.UUID) (*models.Rail, error)
	UpdateRailRate(ctx context.Context, id uuid.UUID, rate *big.Int) error
	UpdateRailLockup(ctx context.Context, id uuid.UUID, lockupPeriod int64, lockupFixed *big.Int) error

	// Events
	RecordEvent(ctx context.Context, event *models.Event) error
	ListEvents(ctx context.Context, datasetID uuid.UUID, limit int) ([]models.Event, error)
}
