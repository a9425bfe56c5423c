package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/federated-storage/proofpay/internal/epoch"
	"github.com/federated-storage/proofpay/internal/models"
	"github.com/federated-storage/proofpay/internal/storage"
)

// ProvingParams holds the proving-period constants.
type ProvingParams struct {
	PeriodLength    int64
	ChallengeWindow int64
	MinChallenges   int64
}

// ProvingService owns the per-dataset proving-period state machine: the
// activation/rollover transitions, the possession gate, and the historical
// proven/unproven record the arbitration engine reads.
//
// Periods are anchored at the activation epoch:
// periodID(e) = (e - activationEpoch) / periodLength. The period ending at
// the current deadline is "open"; its outcome lives in ProvenThisPeriod
// until the next rollover writes it into the sparse record.
type ProvingService struct {
	store  storage.Store
	rate   *RateService
	clock  epoch.Clock
	sink   EventSink
	params ProvingParams
	locks  *datasetLocks
}

// NewProvingService creates the proving scheduler.
func NewProvingService(store storage.Store, rate *RateService, clock epoch.Clock, sink EventSink, params ProvingParams) *ProvingService {
	return &ProvingService{
		store:  store,
		rate:   rate,
		clock:  clock,
		sink:   sink,
		params: params,
		locks:  newDatasetLocks(),
	}
}

// NextProvingPeriod is the scheduler entry point invoked by the possession
// verifier. The first call with content activates proving; subsequent calls
// close the open period, record faults, and open the next one. A zero leaf
// count deactivates proving until content returns.
//
// Validation happens before any write: the call either applies the full
// transition (period flag, deadline, rate) or changes nothing.
func (s *ProvingService) NextProvingPeriod(ctx context.Context, datasetID uuid.UUID, challengeEpoch int64, leafCount uint64) error {
	unlock := s.locks.lock(datasetID)
	defer unlock()

	state, err := s.getState(ctx, datasetID)
	if err != nil {
		return err
	}

	if !state.Active() {
		return s.activate(ctx, state, challengeEpoch, leafCount)
	}
	return s.rollover(ctx, state, challengeEpoch, leafCount)
}

// activate opens the first proving period, or re-opens proving for a
// dataset that had gone empty. Re-activation keeps the original activation
// epoch so historical period ids stay valid; the fresh deadline lands on
// the original period grid.
func (s *ProvingService) activate(ctx context.Context, state *models.ProvingState, challengeEpoch int64, leafCount uint64) error {
	if leafCount == 0 {
		return ErrEmptyDataset
	}

	now := s.clock.Current()
	var deadline int64
	if !state.Activated() {
		deadline = now + s.params.PeriodLength
	} else {
		elapsed := (now - state.ActivationEpoch) / s.params.PeriodLength
		deadline = state.ActivationEpoch + s.params.PeriodLength*(elapsed+1)
	}

	if challengeEpoch < deadline-s.params.ChallengeWindow || challengeEpoch > deadline {
		return ErrChallengeWindowViolation
	}

	if !state.Activated() {
		state.ActivationEpoch = now
	}
	state.ProvingDeadline = deadline
	state.ProvenThisPeriod = false
	if err := s.store.PutProvingState(ctx, state); err != nil {
		return fmt.Errorf("failed to store proving state: %w", err)
	}

	if _, err := s.rate.UpdateRate(ctx, state.DatasetID, leafCount); err != nil {
		return err
	}
	return nil
}

// rollover closes the open period and opens the next one. At most one
// rollover is accepted per period: before the open period's challenge
// window the call is too early.
func (s *ProvingService) rollover(ctx context.Context, state *models.ProvingState, challengeEpoch int64, leafCount uint64) error {
	now := s.clock.Current()
	prevDeadline := state.ProvingDeadline

	if now < prevDeadline-s.params.ChallengeWindow {
		return ErrTooEarly
	}

	var periodsSkipped int64
	if now > prevDeadline {
		periodsSkipped = (now - (prevDeadline + 1)) / s.params.PeriodLength
	}

	nextDeadline := prevDeadline + s.params.PeriodLength*(periodsSkipped+1)
	if leafCount > 0 {
		if challengeEpoch < nextDeadline-s.params.ChallengeWindow || challengeEpoch > nextDeadline {
			return ErrChallengeWindowViolation
		}
	}

	closedPeriodID := s.periodID(state, prevDeadline-1)
	faultPeriods := periodsSkipped
	if !state.ProvenThisPeriod {
		faultPeriods++
	}

	// Only the boundary period's outcome is written; skipped periods stay
	// unset and read as unproven.
	if err := s.store.SetPeriodProven(ctx, state.DatasetID, closedPeriodID, state.ProvenThisPeriod); err != nil {
		return err
	}

	if faultPeriods > 0 {
		err := recordEvent(ctx, s.store, s.sink, state.DatasetID, models.EventFaultRecorded, map[string]any{
			"period_id":     closedPeriodID,
			"fault_periods": faultPeriods,
			"deadline":      prevDeadline,
		})
		if err != nil {
			return err
		}
	}

	if leafCount == 0 {
		state.ProvingDeadline = models.NoProvingDeadline
	} else {
		state.ProvingDeadline = nextDeadline
	}
	state.ProvenThisPeriod = false
	if err := s.store.PutProvingState(ctx, state); err != nil {
		return fmt.Errorf("failed to store proving state: %w", err)
	}

	if _, err := s.rate.UpdateRate(ctx, state.DatasetID, leafCount); err != nil {
		return err
	}
	return nil
}

// RecordProof is the possession gate. The external verifier calls it after
// checking a possession proof; the gate accepts at most one proof per
// period, and only inside the challenge window.
func (s *ProvingService) RecordProof(ctx context.Context, datasetID uuid.UUID, challengeCount int64) error {
	unlock := s.locks.lock(datasetID)
	defer unlock()

	state, err := s.getState(ctx, datasetID)
	if err != nil {
		return err
	}

	if state.ProvenThisPeriod {
		return ErrAlreadyProven
	}
	if challengeCount < s.params.MinChallenges {
		return ErrInsufficientChallenges
	}
	if !state.Active() {
		return ErrNotActive
	}

	now := s.clock.Current()
	if now > state.ProvingDeadline {
		return ErrPeriodExpired
	}
	if now < state.ProvingDeadline-s.params.ChallengeWindow {
		return ErrTooEarly
	}

	openPeriodID := s.periodID(state, state.ProvingDeadline-1)
	if err := s.store.SetPeriodProven(ctx, datasetID, openPeriodID, true); err != nil {
		return err
	}

	state.ProvenThisPeriod = true
	if err := s.store.PutProvingState(ctx, state); err != nil {
		return fmt.Errorf("failed to store proving state: %w", err)
	}

	return recordEvent(ctx, s.store, s.sink, datasetID, models.EventProofAccepted, map[string]any{
		"period_id":       openPeriodID,
		"epoch":           now,
		"challenge_count": challengeCount,
	})
}

// IsEpochProven reports whether the given epoch falls inside a proven
// period. Epochs before activation, in the future, or for never-activated
// datasets are unproven.
func (s *ProvingService) IsEpochProven(ctx context.Context, datasetID uuid.UUID, epochNum int64) (bool, error) {
	state, err := s.getState(ctx, datasetID)
	if err != nil {
		return false, err
	}

	if !state.Activated() {
		return false, nil
	}
	if epochNum < state.ActivationEpoch {
		return false, nil
	}
	if epochNum > s.clock.Current() {
		return false, nil
	}

	pid := s.periodID(state, epochNum)
	if state.Active() && pid == s.periodID(state, state.ProvingDeadline-1) {
		return state.ProvenThisPeriod, nil
	}
	return s.store.IsPeriodProven(ctx, datasetID, pid)
}

// State returns the dataset's proving state.
func (s *ProvingService) State(ctx context.Context, datasetID uuid.UUID) (*models.ProvingState, error) {
	return s.getState(ctx, datasetID)
}

func (s *ProvingService) getState(ctx context.Context, datasetID uuid.UUID) (*models.ProvingState, error) {
	state, err := s.store.GetProvingState(ctx, datasetID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrDatasetNotFound
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (s *ProvingService) periodID(state *models.ProvingState, epochNum int64) int64 {
	return (epochNum - state.ActivationEpoch) / s.params.PeriodLength
}
