package services

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterPayer(t *testing.T) {
	env := newTestEnv(t, defaultProvingParams())
	ctx := context.Background()

	_, pub, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)
	pubBytes, err := crypto.MarshalPublicKey(pub)
	require.NoError(t, err)

	payer, err := env.auth.RegisterPayer(ctx, pubBytes)
	require.NoError(t, err)
	assert.NotEmpty(t, payer.Address)
	assert.Equal(t, uint64(0), payer.Sequence)

	// Registration is idempotent
	again, err := env.auth.RegisterPayer(ctx, pubBytes)
	require.NoError(t, err)
	assert.Equal(t, payer.Address, again.Address)

	_, err = env.auth.RegisterPayer(ctx, []byte("not a key"))
	assert.Error(t, err)
}

func TestVerifyCreate(t *testing.T) {
	env := newTestEnv(t, defaultProvingParams())
	ctx := context.Background()
	payer := env.registerPayer(t)

	digest := CreateDatasetDigest(testServiceID, payer.address, 0, "provider-1", "meta")

	tests := []struct {
		name      string
		payer     string
		provider  string
		metadata  string
		signature []byte
		wantErr   error
	}{
		{
			name:      "valid signature",
			payer:     payer.address,
			provider:  "provider-1",
			metadata:  "meta",
			signature: payer.sign(t, digest),
		},
		{
			name:      "unknown payer",
			payer:     "12D3KooWunknown",
			provider:  "provider-1",
			signature: payer.sign(t, digest),
			wantErr:   ErrUnknownPayer,
		},
		{
			name:     "empty provider",
			payer:    payer.address,
			provider: "",
			wantErr:  ErrEmptyPayload,
		},
		{
			name:      "signature over different provider",
			payer:     payer.address,
			provider:  "provider-2",
			metadata:  "meta",
			signature: payer.sign(t, digest),
			wantErr:   ErrInvalidSignature,
		},
		{
			name:      "empty signature",
			payer:     payer.address,
			provider:  "provider-1",
			metadata:  "meta",
			signature: nil,
			wantErr:   ErrInvalidSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.auth.VerifyCreate(ctx, tt.payer, tt.provider, tt.metadata, tt.signature)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConsumeSequence(t *testing.T) {
	env := newTestEnv(t, defaultProvingParams())
	ctx := context.Background()
	payer := env.registerPayer(t)

	require.NoError(t, env.auth.ConsumeSequence(ctx, payer.address, 0))

	// Stale expectation means a replayed or concurrent consume
	err := env.auth.ConsumeSequence(ctx, payer.address, 0)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	require.NoError(t, env.auth.ConsumeSequence(ctx, payer.address, 1))
}

func TestDigestsAreDomainSeparated(t *testing.T) {
	datasetID := uuid.New()

	remove := ScheduleRemovalDigest(testServiceID, "payer", 7, datasetID, []uint64{1})
	del := DeleteDatasetDigest(testServiceID, "payer", 7, datasetID)
	assert.NotEqual(t, remove, del)

	// Different service identity, different digest
	other := DeleteDatasetDigest("other-service", "payer", 7, datasetID)
	assert.NotEqual(t, del, other)

	// Counter is part of the message
	next := DeleteDatasetDigest(testServiceID, "payer", 8, datasetID)
	assert.NotEqual(t, del, next)
}

func TestVerifyAddPiecesBoundToCount(t *testing.T) {
	env := newTestEnv(t, defaultProvingParams())
	ctx := context.Background()
	payer := env.registerPayer(t)
	datasetID := uuid.New()
	pieces := []string{"piece-a", "piece-b"}

	digest := AddPiecesDigest(testServiceID, payer.address, datasetID, 0, pieces)
	sig := payer.sign(t, digest)

	require.NoError(t, env.auth.VerifyAddPieces(ctx, payer.address, datasetID, 0, pieces, sig))

	// Same signature against a different current count fails
	err := env.auth.VerifyAddPieces(ctx, payer.address, datasetID, 2, pieces, sig)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	err = env.auth.VerifyAddPieces(ctx, payer.address, datasetID, 0, nil, sig)
	assert.ErrorIs(t, err, ErrEmptyPayload)
}
