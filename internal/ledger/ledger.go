// Package ledger is the payment-rail surface the settlement core consumes.
// The core only ever creates rails and pushes rate/lockup changes; the
// ledger's own settlement bookkeeping stays behind this interface.
package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/federated-storage/proofpay/internal/models"
	"github.com/federated-storage/proofpay/internal/storage"
)

// PaymentLedger is the consumed surface of the external payment ledger.
type PaymentLedger interface {
	// CreateRail opens a payment rail between payer and payee with a zero
	// initial rate and returns its id.
	CreateRail(ctx context.Context, token, payer, payee, arbiter string, commissionBps int64) (uuid.UUID, error)

	// SetLockup fixes the rail's lockup duration and one-time lockup amount.
	SetLockup(ctx context.Context, railID uuid.UUID, lockupPeriod int64, lockupFixed *big.Int) error

	// SetRate pushes a new per-epoch rate, optionally charging a one-time
	// payment in the same call.
	SetRate(ctx context.Context, railID uuid.UUID, rate, oneTimePayment *big.Int) error
}

// StoreLedger is an in-process PaymentLedger backed by the Store. It keeps
// just enough rail state for the arbitration callback to resolve rails and
// records one-time charges as events.
type StoreLedger struct {
	store storage.Store
}

// NewStoreLedger creates a store-backed payment ledger.
func NewStoreLedger(store storage.Store) *StoreLedger {
	return &StoreLedger{store: store}
}

func (l *StoreLedger) CreateRail(ctx context.Context, token, payer, payee, arbiter string, commissionBps int64) (uuid.UUID, error) {
	rail := &models.Rail{
		ID:            uuid.New(),
		Token:         token,
		Payer:         payer,
		Payee:         payee,
		Arbiter:       arbiter,
		CommissionBps: commissionBps,
		Rate:          big.NewInt(0),
		LockupFixed:   big.NewInt(0),
	}
	if err := l.store.CreateRail(ctx, rail); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create rail: %w", err)
	}
	return rail.ID, nil
}

func (l *StoreLedger) SetLockup(ctx context.Context, railID uuid.UUID, lockupPeriod int64, lockupFixed *big.Int) error {
	if lockupFixed == nil || lockupFixed.Sign() < 0 {
		return fmt.Errorf("invalid lockup amount")
	}
	return l.store.UpdateRailLockup(ctx, railID, lockupPeriod, lockupFixed)
}

func (l *StoreLedger) SetRate(ctx context.Context, railID uuid.UUID, rate, oneTimePayment *big.Int) error {
	if rate == nil || rate.Sign() < 0 {
		return fmt.Errorf("invalid rate")
	}
	rail, err := l.store.GetRail(ctx, railID)
	if err != nil {
		return fmt.Errorf("failed to load rail: %w", err)
	}
	if oneTimePayment != nil && oneTimePayment.Sign() > 0 {
		// The one-time payment must stay covered by the fixed lockup.
		if rail.LockupFixed == nil || rail.LockupFixed.Cmp(oneTimePayment) < 0 {
			return fmt.Errorf("one-time payment exceeds fixed lockup")
		}
		event := &models.Event{
			Kind:    models.EventOneTimePayment,
			Payload: fmt.Sprintf(`{"rail_id":%q,"amount":%q}`, railID, oneTimePayment.String()),
		}
		if err := l.store.RecordEvent(ctx, event); err != nil {
			return err
		}
	}
	return l.store.UpdateRailRate(ctx, railID, rate)
}
