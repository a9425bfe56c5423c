package services

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/crypto/blake2b"

	"github.com/federated-storage/proofpay/internal/models"
	"github.com/federated-storage/proofpay/internal/storage"
)

// OperationTag identifies the mutation a signed authorization covers.
type OperationTag byte

const (
	OpCreateDataset   OperationTag = 1
	OpAddPieces       OperationTag = 2
	OpScheduleRemoval OperationTag = 3
	OpDeleteDataset   OperationTag = 4
)

// AuthService is the authorization gate. Every mutation of a dataset must
// carry a signature by the dataset's payer over the canonical message for
// that operation. The message binds the service identity, the operation tag
// and a per-operation counter, so a captured signature cannot be replayed
// against another service, operation or state.
type AuthService struct {
	store     storage.Store
	serviceID string
}

// NewAuthService creates the authorization gate.
func NewAuthService(store storage.Store, serviceID string) *AuthService {
	return &AuthService{store: store, serviceID: serviceID}
}

// RegisterPayer registers a payer's public key. The payer address is the
// libp2p peer id derived from the key, so the address itself commits to the
// key material.
func (s *AuthService) RegisterPayer(ctx context.Context, publicKey []byte) (*models.PayerAccount, error) {
	pub, err := crypto.UnmarshalPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	id, err := peer.IDFromPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to derive payer address: %w", err)
	}

	address := id.String()
	if existing, err := s.store.GetPayer(ctx, address); err == nil {
		return existing, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	payer := &models.PayerAccount{
		Address:   address,
		PublicKey: publicKey,
		Sequence:  0,
	}
	if err := s.store.CreatePayer(ctx, payer); err != nil {
		return nil, err
	}
	return payer, nil
}

// VerifyCreate checks the signed authorization for dataset creation and
// returns the payer account whose sequence number the message was bound to.
// The sequence is consumed separately once the creation succeeds.
func (s *AuthService) VerifyCreate(ctx context.Context, payer, provider, metadata string, signature []byte) (*models.PayerAccount, error) {
	if provider == "" {
		return nil, ErrEmptyPayload
	}
	account, err := s.payer(ctx, payer)
	if err != nil {
		return nil, err
	}
	digest := CreateDatasetDigest(s.serviceID, payer, account.Sequence, provider, metadata)
	if err := verifySignature(account.PublicKey, digest, signature); err != nil {
		return nil, err
	}
	return account, nil
}

// ConsumeSequence increments the payer's sequence number, guarding against a
// concurrent create consuming the same one.
func (s *AuthService) ConsumeSequence(ctx context.Context, payer string, expected uint64) error {
	if err := s.store.IncrementPayerSequence(ctx, payer, expected); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidSignature
		}
		return err
	}
	return nil
}

// VerifyAddPieces checks the signed authorization for appending pieces. The
// message is bound to the dataset's current piece count, which makes
// reordered or replayed add messages fail verification.
func (s *AuthService) VerifyAddPieces(ctx context.Context, payer string, datasetID uuid.UUID, pieceCount uint64, pieces []string, signature []byte) error {
	if len(pieces) == 0 {
		return ErrEmptyPayload
	}
	account, err := s.payer(ctx, payer)
	if err != nil {
		return err
	}
	digest := AddPiecesDigest(s.serviceID, payer, datasetID, pieceCount, pieces)
	return verifySignature(account.PublicKey, digest, signature)
}

// VerifyScheduleRemoval checks the signed authorization for scheduling piece
// removal.
func (s *AuthService) VerifyScheduleRemoval(ctx context.Context, payer string, datasetID uuid.UUID, pieceIndexes []uint64, signature []byte) error {
	if len(pieceIndexes) == 0 {
		return ErrEmptyPayload
	}
	account, err := s.payer(ctx, payer)
	if err != nil {
		return err
	}
	digest := ScheduleRemovalDigest(s.serviceID, payer, account.Sequence, datasetID, pieceIndexes)
	return verifySignature(account.PublicKey, digest, signature)
}

// VerifyDelete checks the signed authorization for dataset deletion.
func (s *AuthService) VerifyDelete(ctx context.Context, payer string, datasetID uuid.UUID, signature []byte) error {
	account, err := s.payer(ctx, payer)
	if err != nil {
		return err
	}
	digest := DeleteDatasetDigest(s.serviceID, payer, account.Sequence, datasetID)
	return verifySignature(account.PublicKey, digest, signature)
}

func (s *AuthService) payer(ctx context.Context, address string) (*models.PayerAccount, error) {
	account, err := s.store.GetPayer(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnknownPayer
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func verifySignature(publicKey []byte, digest [32]byte, signature []byte) error {
	if len(signature) == 0 {
		return ErrInvalidSignature
	}
	pub, err := crypto.UnmarshalPublicKey(publicKey)
	if err != nil {
		return fmt.Errorf("failed to parse payer key: %w", err)
	}
	ok, err := pub.Verify(digest[:], signature)
	if err != nil || !ok {
		return ErrInvalidSignature
	}
	return nil
}

// Canonical message layout. The digest is blake2b-256 over:
//
//	len(serviceID) || serviceID || tag || len(payer) || payer ||
//	counter (uint64 BE) || per-operation operands, each length-prefixed
//
// Lengths are uint64 big-endian. This layout is a compatibility contract
// with off-process signers; changing it invalidates every issued signature.

// CreateDatasetDigest builds the message a payer signs to create a dataset.
// The counter is the payer's current sequence number.
func CreateDatasetDigest(serviceID, payer string, sequence uint64, provider, metadata string) [32]byte {
	return messageDigest(serviceID, OpCreateDataset, payer, sequence,
		[]byte(provider), []byte(metadata))
}

// AddPiecesDigest builds the message a payer signs to append pieces. The
// counter is the dataset's current piece count.
func AddPiecesDigest(serviceID, payer string, datasetID uuid.UUID, pieceCount uint64, pieces []string) [32]byte {
	operands := make([][]byte, 0, len(pieces)+1)
	operands = append(operands, datasetID[:])
	for _, p := range pieces {
		operands = append(operands, []byte(p))
	}
	return messageDigest(serviceID, OpAddPieces, payer, pieceCount, operands...)
}

// ScheduleRemovalDigest builds the message a payer signs to schedule piece
// removal. The counter is the payer's current sequence number.
func ScheduleRemovalDigest(serviceID, payer string, sequence uint64, datasetID uuid.UUID, pieceIndexes []uint64) [32]byte {
	indexes := make([]byte, 8*len(pieceIndexes))
	for i, idx := range pieceIndexes {
		binary.BigEndian.PutUint64(indexes[i*8:], idx)
	}
	return messageDigest(serviceID, OpScheduleRemoval, payer, sequence, datasetID[:], indexes)
}

// DeleteDatasetDigest builds the message a payer signs to delete a dataset.
// The counter is the payer's current sequence number.
func DeleteDatasetDigest(serviceID, payer string, sequence uint64, datasetID uuid.UUID) [32]byte {
	return messageDigest(serviceID, OpDeleteDataset, payer, sequence, datasetID[:])
}

func messageDigest(serviceID string, tag OperationTag, payer string, counter uint64, operands ...[]byte) [32]byte {
	var buf []byte
	buf = appendField(buf, []byte(serviceID))
	buf = append(buf, byte(tag))
	buf = appendField(buf, []byte(payer))
	buf = binary.BigEndian.AppendUint64(buf, counter)
	for _, operand := range operands {
		buf = appendField(buf, operand)
	}
	return blake2b.Sum256(buf)
}

func appendField(buf, field []byte) []byte {
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(field)))
	return append(buf, field...)
}
