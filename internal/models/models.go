package models

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Sentinel values for ProvingState epochs. A dataset that has never been
// activated, or that has gone empty, carries NoProvingDeadline; a dataset
// that has never been activated also carries NeverActivated.
const (
	NoProvingDeadline int64 = -1
	NeverActivated    int64 = -1
)

// PayerAccount represents a billing party. The sequence number is consumed
// by dataset creation and makes signed create messages single-use.
type PayerAccount struct {
	Address   string    `db:"address" json:"address"`
	PublicKey []byte    `db:"public_key" json:"-"`
	Sequence  uint64    `db:"sequence" json:"sequence"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Provider represents an approved storage provider on the allow-list.
type Provider struct {
	Address    string    `db:"address" json:"address"`
	Name       string    `db:"name" json:"name"`
	ApprovedBy string    `db:"approved_by" json:"approved_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Dataset is the unit of stored content tracked for billing and proofs.
// Provider, rail and commission rate are fixed for the dataset's lifetime;
// the commission is a snapshot of the service-wide default at creation.
type Dataset struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Payer         string     `db:"payer" json:"payer"`
	Provider      string     `db:"provider" json:"provider"`
	RailID        uuid.UUID  `db:"rail_id" json:"rail_id"`
	CommissionBps int64      `db:"commission_bps" json:"commission_bps"`
	Metadata      string     `db:"metadata" json:"metadata"`
	DeletedAt     *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// Piece is a unit of content within a dataset. Pieces are append-only;
// removal is a soft flag, indexes are never reused.
type Piece struct {
	DatasetID  uuid.UUID `db:"dataset_id" json:"dataset_id"`
	PieceIndex uint64    `db:"piece_index" json:"piece_index"`
	Metadata   string    `db:"metadata" json:"metadata"`
	Removed    bool      `db:"removed" json:"removed"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ProvingState is the per-dataset proving-period state machine. It evolves
// independently of the dataset metadata. Historical per-period outcomes live
// in the sparse proven-period record, keyed by
// periodID = (epoch - ActivationEpoch) / periodLength.
type ProvingState struct {
	DatasetID        uuid.UUID `db:"dataset_id" json:"dataset_id"`
	ProvingDeadline  int64     `db:"proving_deadline" json:"proving_deadline"`
	ProvenThisPeriod bool      `db:"proven_this_period" json:"proven_this_period"`
	ActivationEpoch  int64     `db:"activation_epoch" json:"activation_epoch"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Activated reports whether proving has ever been activated.
func (ps *ProvingState) Activated() bool {
	return ps.ActivationEpoch != NeverActivated
}

// Active reports whether a proving period is currently open.
func (ps *ProvingState) Active() bool {
	return ps.ProvingDeadline != NoProvingDeadline
}

// Rail is the payment channel between a payer and a provider. The core only
// sets rate and lockup on it; settlement bookkeeping belongs to the ledger.
type Rail struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Token         string    `db:"token" json:"token"`
	Payer         string    `db:"payer" json:"payer"`
	Payee         string    `db:"payee" json:"payee"`
	Arbiter       string    `db:"arbiter" json:"arbiter"`
	CommissionBps int64     `db:"commission_bps" json:"commission_bps"`
	Rate          *big.Int  `db:"rate" json:"rate"`
	LockupPeriod  int64     `db:"lockup_period" json:"lockup_period"`
	LockupFixed   *big.Int  `db:"lockup_fixed" json:"lockup_fixed"`
	SettledUpto   int64     `db:"settled_upto" json:"settled_upto"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// ArbitrationResult is the outcome of pro-rating a proposed payment over a
// disputed epoch range.
type ArbitrationResult struct {
	ModifiedAmount *big.Int `json:"modified_amount"`
	SettleUpto     int64    `json:"settle_upto"`
	Note           string   `json:"note"`
}

// Event kinds recorded by the core. Events are the observable side channel
// for faults, rate changes and settlements.
const (
	EventDatasetCreated     = "dataset_created"
	EventPiecesAdded        = "pieces_added"
	EventRemovalScheduled   = "removal_scheduled"
	EventDatasetDeleted     = "dataset_deleted"
	EventProofAccepted      = "proof_accepted"
	EventFaultRecorded      = "fault_recorded"
	EventRateChanged        = "rate_changed"
	EventArbitrationSettled = "arbitration_settled"
	EventOneTimePayment     = "one_time_payment"
)

// Event is a recorded observable occurrence tied to a dataset.
type Event struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	DatasetID *uuid.UUID `db:"dataset_id" json:"dataset_id,omitempty"`
	Kind      string     `db:"kind" json:"kind"`
	Payload   string     `db:"payload" json:"payload"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
