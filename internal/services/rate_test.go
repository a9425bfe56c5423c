package services

import (
	"context"
	"math/big"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/federated-storage/proofpay/internal/models"
)

func TestComputeRate(t *testing.T) {
	env := newTestEnv(t, defaultProvingParams())

	tests := []struct {
		name       string
		totalBytes int64
		want       string
	}{
		{"empty dataset", 0, "0"},
		{"500 KiB inside free tier", 500 << 10, "0"},
		{"one byte below the tier", (1 << 20) - 1, "0"},
		{"one TiB", 1 << 40, "23148148148148"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate := env.rate.ComputeRate(big.NewInt(tt.totalBytes))
			assert.Equal(t, tt.want, rate.String())
		})
	}
}

func TestComputeRateFloorsAndMinimum(t *testing.T) {
	svc := NewRateService(nil, nil, nil, RateParams{
		PricePerTiBMonth: big.NewInt(10),
		MinRate:          big.NewInt(7),
		FreeTierBytes:    1,
		LeafSizeBytes:    32,
		EpochsPerMonth:   3,
	})

	// 1 TiB at price 10 over 3 epochs floors 10/3 down to 3
	assert.Equal(t, "3", svc.ComputeRate(big.NewInt(1<<40)).String())

	// Above the free tier the rate never rounds to zero
	assert.Equal(t, "7", svc.ComputeRate(big.NewInt(16)).String())
}

func TestUpdateRate(t *testing.T) {
	env := newTestEnv(t, defaultProvingParams())
	ctx := context.Background()
	payer := env.registerPayer(t)
	env.approveProvider(t, "provider-1")
	dataset := env.createDataset(t, payer, "provider-1")

	rate, err := env.rate.UpdateRate(ctx, dataset.ID, oneTiBLeaves)
	require.NoError(t, err)
	assert.Equal(t, "23148148148148", rate.String())

	rail, err := env.store.GetRail(ctx, dataset.RailID)
	require.NoError(t, err)
	assert.Equal(t, "23148148148148", rail.Rate.String())
	assert.Equal(t, 1, env.sink.countKind(models.EventRateChanged))

	// Re-pushing the same size is harmless
	_, err = env.rate.UpdateRate(ctx, dataset.ID, oneTiBLeaves)
	require.NoError(t, err)
	rail, err = env.store.GetRail(ctx, dataset.RailID)
	require.NoError(t, err)
	assert.Equal(t, "23148148148148", rail.Rate.String())

	_, err = env.rate.UpdateRate(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}
