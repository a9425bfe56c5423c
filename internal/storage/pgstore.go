package storage

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/federated-storage/proofpay/internal/models"
)

// PGStore implements Store on top of the PostgreSQL pool.
type PGStore struct {
	db *DB
}

// NewPGStore creates a postgres-backed store.
func NewPGStore(db *DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) CreatePayer(ctx context.Context, payer *models.PayerAccount) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO payer_accounts (address, public_key, sequence)
		 VALUES ($1, $2, $3)`,
		payer.Address, payer.PublicKey, payer.Sequence)
	if err != nil {
		return fmt.Errorf("failed to create payer: %w", err)
	}
	return nil
}

func (s *PGStore) GetPayer(ctx context.Context, address string) (*models.PayerAccount, error) {
	var payer models.PayerAccount
	err := s.db.Pool.QueryRow(ctx,
		`SELECT address, public_key, sequence, created_at
		 FROM payer_accounts WHERE address = $1`,
		address).Scan(&payer.Address, &payer.PublicKey, &payer.Sequence, &payer.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payer: %w", err)
	}
	return &payer, nil
}

func (s *PGStore) IncrementPayerSequence(ctx context.Context, address string, expected uint64) error {
	tag, err := s.db.Pool.Exec(ctx,
		`UPDATE payer_accounts SET sequence = sequence + 1
		 WHERE address = $1 AND sequence = $2`,
		address, expected)
	if err != nil {
		return fmt.Errorf("failed to increment sequence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ApproveProvider(ctx context.Context, provider *models.Provider) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO providers (address, name, approved_by)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (address) DO UPDATE SET name = $2, approved_by = $3`,
		provider.Address, provider.Name, provider.ApprovedBy)
	if err != nil {
		return fmt.Errorf("failed to approve provider: %w", err)
	}
	return nil
}

func (s *PGStore) RevokeProvider(ctx context.Context, address string) error {
	tag, err := s.db.Pool.Exec(ctx,
		"DELETE FROM providers WHERE address = $1", address)
	if err != nil {
		return fmt.Errorf("failed to revoke provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) IsProviderApproved(ctx context.Context, address string) (bool, error) {
	var approved bool
	err := s.db.Pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM providers WHERE address = $1)",
		address).Scan(&approved)
	if err != nil {
		return false, fmt.Errorf("failed to check provider: %w", err)
	}
	return approved, nil
}

func (s *PGStore) ListProviders(ctx context.Context) ([]models.Provider, error) {
	rows, err := s.db.Pool.Query(ctx,
		"SELECT address, name, approved_by, created_at FROM providers ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []models.Provider
	for rows.Next() {
		var p models.Provider
		if err := rows.Scan(&p.Address, &p.Name, &p.ApprovedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

func (s *PGStore) CreateDataset(ctx context.Context, dataset *models.Dataset, state *models.ProvingState) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO datasets (id, payer, provider, rail_id, commission_bps, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		dataset.ID, dataset.Payer, dataset.Provider, dataset.RailID, dataset.CommissionBps, dataset.Metadata)
	if err != nil {
		return fmt.Errorf("failed to create dataset: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO proving_states (dataset_id, proving_deadline, proven_this_period, activation_epoch)
		 VALUES ($1, $2, $3, $4)`,
		state.DatasetID, state.ProvingDeadline, state.ProvenThisPeriod, state.ActivationEpoch)
	if err != nil {
		return fmt.Errorf("failed to create proving state: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PGStore) GetDataset(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	return s.scanDataset(ctx,
		`SELECT id, payer, provider, rail_id, commission_bps, metadata, deleted_at, created_at
		 FROM datasets WHERE id = $1`, id)
}

func (s *PGStore) GetDatasetByRail(ctx context.Context, railID uuid.UUID) (*models.Dataset, error) {
	return s.scanDataset(ctx,
		`SELECT id, payer, provider, rail_id, commission_bps, metadata, deleted_at, created_at
		 FROM datasets WHERE rail_id = $1`, railID)
}

func (s *PGStore) scanDataset(ctx context.Context, query string, arg any) (*models.Dataset, error) {
	var dataset models.Dataset
	err := s.db.Pool.QueryRow(ctx, query, arg).Scan(
		&dataset.ID, &dataset.Payer, &dataset.Provider, &dataset.RailID,
		&dataset.CommissionBps, &dataset.Metadata, &dataset.DeletedAt, &dataset.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	return &dataset, nil
}

func (s *PGStore) MarkDatasetDeleted(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Pool.Exec(ctx,
		"UPDATE datasets SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		return fmt.Errorf("failed to mark dataset deleted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) AddPieces(ctx context.Context, datasetID uuid.UUID, pieces []models.Piece) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, piece := range pieces {
		_, err = tx.Exec(ctx,
			`INSERT INTO pieces (dataset_id, piece_index, metadata, removed)
			 VALUES ($1, $2, $3, $4)`,
			datasetID, piece.PieceIndex, piece.Metadata, piece.Removed)
		if err != nil {
			return fmt.Errorf("failed to add piece %d: %w", piece.PieceIndex, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PGStore) PieceCount(ctx context.Context, datasetID uuid.UUID) (uint64, error) {
	var count uint64
	err := s.db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM pieces WHERE dataset_id = $1", datasetID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pieces: %w", err)
	}
	return count, nil
}

func (s *PGStore) GetProvingState(ctx context.Context, datasetID uuid.UUID) (*models.ProvingState, error) {
	var state models.ProvingState
	err := s.db.Pool.QueryRow(ctx,
		`SELECT dataset_id, proving_deadline, proven_this_period, activation_epoch, updated_at
		 FROM proving_states WHERE dataset_id = $1`,
		datasetID).Scan(&state.DatasetID, &state.ProvingDeadline,
		&state.ProvenThisPeriod, &state.ActivationEpoch, &state.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get proving state: %w", err)
	}
	return &state, nil
}

func (s *PGStore) PutProvingState(ctx context.Context, state *models.ProvingState) error {
	_, err := s.db.Pool.Exec(ctx,
		`UPDATE proving_states
		 SET proving_deadline = $2, proven_this_period = $3, activation_epoch = $4, updated_at = NOW()
		 WHERE dataset_id = $1`,
		state.DatasetID, state.ProvingDeadline, state.ProvenThisPeriod, state.ActivationEpoch)
	if err != nil {
		return fmt.Errorf("failed to update proving state: %w", err)
	}
	return nil
}

func (s *PGStore) SetPeriodProven(ctx context.Context, datasetID uuid.UUID, periodID int64, proven bool) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO proven_periods (dataset_id, period_id, proven)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (dataset_id, period_id) DO UPDATE SET proven = $3`,
		datasetID, periodID, proven)
	if err != nil {
		return fmt.Errorf("failed to record period outcome: %w", err)
	}
	return nil
}

func (s *PGStore) IsPeriodProven(ctx context.Context, datasetID uuid.UUID, periodID int64) (bool, error) {
	var proven bool
	err := s.db.Pool.QueryRow(ctx,
		"SELECT proven FROM proven_periods WHERE dataset_id = $1 AND period_id = $2",
		datasetID, periodID).Scan(&proven)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query period outcome: %w", err)
	}
	return proven, nil
}

func (s *PGStore) CreateRail(ctx context.Context, rail *models.Rail) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO rails (id, token, payer, payee, arbiter, commission_bps, rate, lockup_period, lockup_fixed, settled_upto)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rail.ID, rail.Token, rail.Payer, rail.Payee, rail.Arbiter, rail.CommissionBps,
		amountString(rail.Rate), rail.LockupPeriod, amountString(rail.LockupFixed), rail.SettledUpto)
	if err != nil {
		return fmt.Errorf("failed to create rail: %w", err)
	}
	return nil
}

func (s *PGStore) GetRail(ctx context.Context, id uuid.UUID) (*models.Rail, error) {
	var rail models.Rail
	var rate, lockupFixed string
	err := s.db.Pool.QueryRow(ctx,
		`SELECT id, token, payer, payee, arbiter, commission_bps, rate::text, lockup_period, lockup_fixed::text, settled_upto, created_at
		 FROM rails WHERE id = $1`,
		id).Scan(&rail.ID, &rail.Token, &rail.Payer, &rail.Payee, &rail.Arbiter,
		&rail.CommissionBps, &rate, &rail.LockupPeriod, &lockupFixed,
		&rail.SettledUpto, &rail.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rail: %w", err)
	}
	if rail.Rate, err = parseAmount(rate); err != nil {
		return nil, err
	}
	if rail.LockupFixed, err = parseAmount(lockupFixed); err != nil {
		return nil, err
	}
	return &rail, nil
}

func (s *PGStore) UpdateRailRate(ctx context.Context, id uuid.UUID, rate *big.Int) error {
	tag, err := s.db.Pool.Exec(ctx,
		"UPDATE rails SET rate = $2 WHERE id = $1", id, amountString(rate))
	if err != nil {
		return fmt.Errorf("failed to update rail rate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) UpdateRailLockup(ctx context.Context, id uuid.UUID, lockupPeriod int64, lockupFixed *big.Int) error {
	tag, err := s.db.Pool.Exec(ctx,
		"UPDATE rails SET lockup_period = $2, lockup_fixed = $3 WHERE id = $1",
		id, lockupPeriod, amountString(lockupFixed))
	if err != nil {
		return fmt.Errorf("failed to update rail lockup: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) RecordEvent(ctx context.Context, event *models.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO events (id, dataset_id, kind, payload)
		 VALUES ($1, $2, $3, $4)`,
		event.ID, event.DatasetID, event.Kind, event.Payload)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func (s *PGStore) ListEvents(ctx context.Context, datasetID uuid.UUID, limit int) ([]models.Event, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, dataset_id, kind, payload, created_at
		 FROM events WHERE dataset_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		datasetID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.DatasetID, &e.Kind, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func amountString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func parseAmount(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount in store: %q", s)
	}
	return n, nil
}
