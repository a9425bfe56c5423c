package storage

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/federated-storage/proofpay/internal/models"
)

type periodKey struct {
	dataset uuid.UUID
	period  int64
}

// MemoryStore is an in-memory Store used by tests and local development.
type MemoryStore struct {
	mu            sync.RWMutex
	payers        map[string]*models.PayerAccount
	providers     map[string]*models.Provider
	datasets      map[uuid.UUID]*models.Dataset
	railToDataset map[uuid.UUID]uuid.UUID
	pieces        map[uuid.UUID][]models.Piece
	provingStates map[uuid.UUID]*models.ProvingState
	provenPeriods map[periodKey]bool
	rails         map[uuid.UUID]*models.Rail
	events        []models.Event
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payers:        make(map[string]*models.PayerAccount),
		providers:     make(map[string]*models.Provider),
		datasets:      make(map[uuid.UUID]*models.Dataset),
		railToDataset: make(map[uuid.UUID]uuid.UUID),
		pieces:        make(map[uuid.UUID][]models.Piece),
		provingStates: make(map[uuid.UUID]*models.ProvingState),
		provenPeriods: make(map[periodKey]bool),
		rails:         make(map[uuid.UUID]*models.Rail),
	}
}

func (m *MemoryStore) CreatePayer(ctx context.Context, payer *models.PayerAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *payer
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.payers[payer.Address] = &cp
	return nil
}

func (m *MemoryStore) GetPayer(ctx context.Context, address string) (*models.PayerAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payer, ok := m.payers[address]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *payer
	return &cp, nil
}

func (m *MemoryStore) IncrementPayerSequence(ctx context.Context, address string, expected uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payer, ok := m.payers[address]
	if !ok || payer.Sequence != expected {
		return ErrNotFound
	}
	payer.Sequence++
	return nil
}

func (m *MemoryStore) ApproveProvider(ctx context.Context, provider *models.Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *provider
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.providers[provider.Address] = &cp
	return nil
}

func (m *MemoryStore) RevokeProvider(ctx context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[address]; !ok {
		return ErrNotFound
	}
	delete(m.providers, address)
	return nil
}

func (m *MemoryStore) IsProviderApproved(ctx context.Context, address string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.providers[address]
	return ok, nil
}

func (m *MemoryStore) ListProviders(ctx context.Context) ([]models.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	providers := make([]models.Provider, 0, len(m.providers))
	for _, p := range m.providers {
		providers = append(providers, *p)
	}
	return providers, nil
}

func (m *MemoryStore) CreateDataset(ctx context.Context, dataset *models.Dataset, state *models.ProvingState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *dataset
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.datasets[dataset.ID] = &cp
	m.railToDataset[dataset.RailID] = dataset.ID
	st := *state
	m.provingStates[dataset.ID] = &st
	return nil
}

func (m *MemoryStore) GetDataset(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dataset, ok := m.datasets[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *dataset
	return &cp, nil
}

func (m *MemoryStore) GetDatasetByRail(ctx context.Context, railID uuid.UUID) (*models.Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.railToDataset[railID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.datasets[id]
	return &cp, nil
}

func (m *MemoryStore) MarkDatasetDeleted(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dataset, ok := m.datasets[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	dataset.DeletedAt = &now
	return nil
}

func (m *MemoryStore) AddPieces(ctx context.Context, datasetID uuid.UUID, pieces []models.Piece) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.datasets[datasetID]; !ok {
		return ErrNotFound
	}
	m.pieces[datasetID] = append(m.pieces[datasetID], pieces...)
	return nil
}

func (m *MemoryStore) PieceCount(ctx context.Context, datasetID uuid.UUID) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.pieces[datasetID])), nil
}

func (m *MemoryStore) GetProvingState(ctx context.Context, datasetID uuid.UUID) (*models.ProvingState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.provingStates[datasetID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *state
	return &cp, nil
}

func (m *MemoryStore) PutProvingState(ctx context.Context, state *models.ProvingState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	cp.UpdatedAt = time.Now()
	m.provingStates[state.DatasetID] = &cp
	return nil
}

func (m *MemoryStore) SetPeriodProven(ctx context.Context, datasetID uuid.UUID, periodID int64, proven bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provenPeriods[periodKey{datasetID, periodID}] = proven
	return nil
}

func (m *MemoryStore) IsPeriodProven(ctx context.Context, datasetID uuid.UUID, periodID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.provenPeriods[periodKey{datasetID, periodID}], nil
}

func (m *MemoryStore) CreateRail(ctx context.Context, rail *models.Rail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rail
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.Rate = cloneAmount(rail.Rate)
	cp.LockupFixed = cloneAmount(rail.LockupFixed)
	m.rails[rail.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRail(ctx context.Context, id uuid.UUID) (*models.Rail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rail, ok := m.rails[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rail
	cp.Rate = cloneAmount(rail.Rate)
	cp.LockupFixed = cloneAmount(rail.LockupFixed)
	return &cp, nil
}

func (m *MemoryStore) UpdateRailRate(ctx context.Context, id uuid.UUID, rate *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rail, ok := m.rails[id]
	if !ok {
		return ErrNotFound
	}
	rail.Rate = cloneAmount(rate)
	return nil
}

func (m *MemoryStore) UpdateRailLockup(ctx context.Context, id uuid.UUID, lockupPeriod int64, lockupFixed *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rail, ok := m.rails[id]
	if !ok {
		return ErrNotFound
	}
	rail.LockupPeriod = lockupPeriod
	rail.LockupFixed = cloneAmount(lockupFixed)
	return nil
}

func (m *MemoryStore) RecordEvent(ctx context.Context, event *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *event
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.events = append(m.events, cp)
	return nil
}

func (m *MemoryStore) ListEvents(ctx context.Context, datasetID uuid.UUID, limit int) ([]models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var events []models.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if e.DatasetID == nil || *e.DatasetID != datasetID {
			continue
		}
		events = append(events, e)
		if limit > 0 && len(events) >= limit {
			break
		}
	}
	return events, nil
}

func cloneAmount(n *big.Int) *big.Int {
	if n == nil {
		return nil
	}
	return new(big.Int).Set(n)
}
