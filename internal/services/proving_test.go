package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/federated-storage/proofpay/internal/models"
)

const oneTiBLeaves = uint64(1) << 35 // 1 TiB of 32-byte leaves

func TestNextProvingPeriodActivation(t *testing.T) {
	env := newTestEnv(t, defaultProvingParams())
	ctx := context.Background()
	payer := env.registerPayer(t)
	env.approveProvider(t, "provider-1")
	dataset := env.createDataset(t, payer, "provider-1")

	env.clock.Set(1000)

	err := env.proving.NextProvingPeriod(ctx, dataset.ID, 3850, 0)
	assert.ErrorIs(t, err, ErrEmptyDataset)

	// Challenge epoch must fall inside the first deadline's window
	err = env.proving.NextProvingPeriod(ctx, dataset.ID, 2000, oneTiBLeaves)
	assert.ErrorIs(t, err, ErrChallengeWindowViolation)
	err = env.proving.NextProvingPeriod(ctx, dataset.ID, 3881, oneTiBLeaves)
	assert.ErrorIs(t, err, ErrChallengeWindowViolation)

	require.NoError(t, env.proving.NextProvingPeriod(ctx, dataset.ID, 3850, oneTiBLeaves))

	state, err := env.proving.State(ctx, dataset.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), state.ActivationEpoch)
	assert.Equal(t, int64(3880), state.ProvingDeadline)
	assert.False(t, state.ProvenThisPeriod)

	// Activation priced the dataset onto its rail
	rail, err := env.store.GetRail(ctx, dataset.RailID)
	require.NoError(t, err)
	assert.Equal(t, "23148148148148", rail.Rate.String())
}

func TestRolloverTooEarly(t *testing.T) {
	env := newTestEnv(t, defaultProvingParams())
	ctx := context.Background()
	payer := env.registerPayer(t)
	env.approveProvider(t, "provider-1")
	dataset := env.createDataset(t, payer, "provider-1")

	env.clock.Set(1000)
	require.NoError(t, env.proving.NextProvingPeriod(ctx, dataset.ID, 3850, oneTiBLeaves))

	// Mid-period rollover is rejected; only one transition per period
	env.clock.Set(2000)
	err := env.proving.NextProvingPeriod(ctx, dataset.ID, 3850, oneTiBLeaves)
	assert.ErrorIs(t, err, ErrTooEarly)
}

func TestRecordProof(t *testing.T) {
	env := newTestEnv(t, defaultProvingParams())
	ctx := context.Background()
	payer := env.registerPayer(t)
	env.approveProvider(t, "provider-1")
	dataset := env.createDataset(t, payer, "provider-1")

	err := env.proving.RecordProof(ctx, dataset.ID, 5)
	assert.ErrorIs(t, err, ErrNotActive)

	env.clock.Set(1000)
	require.NoError(t, env.proving.NextProvingPeriod(ctx, dataset.ID, 3850, oneTiBLeaves))

	err = env.proving.RecordProof(ctx, dataset.ID, 3)
	assert.ErrorIs(t, err, ErrInsufficientChallenges)

	env.clock.Set(2000)
	err = env.proving.RecordProof(ctx, dataset.ID, 5)
	assert.ErrorIs(t, err, ErrTooEarly)

	env.clock.Set(3850)
	require.NoError(t, env.proving.RecordProof(ctx, dataset.ID, 5))
	assert.Equal(t, 1, env.sink.countKind(models.EventProofAccepted))

	err = env.proving.RecordProof(ctx, dataset.ID, 5)
	assert.ErrorIs(t, err, ErrAlreadyProven)

	state, err := env.proving.State(ctx, dataset.ID)
	require.NoError(t, err)
	assert.True(t, state.ProvenThisPeriod)
}

func TestRecordProofExpired(t *testing.T) {
	env := newTestEnv(t, defaultProvingParams())
	ctx := context.Background()
	payer := env.registerPayer(t)
	env.approveProvider(t, "provider-1")
	dataset := env.createDataset(t, payer, "provider-1")

	env.clock.Set(1000)
	require.NoError(t, env.proving.NextProvingPeriod(ctx, dataset.ID, 3850, oneTiBLeaves))

	env.clock.Set(3890)
	err := env.proving.RecordProof(ctx, dataset.ID, 5)
	assert.ErrorIs(t, err, ErrPeriodExpired)
}

func TestRolloverAfterProof(t *testing.T) {
	env := newTestEnv(t, defaultProvingParams())
	ctx := context.Background()
	payer := env.registerPayer(t)
	env.approveProvider(t, "provider-1")
	dataset := env.createDataset(t, payer, "provider-1")

	env.clock.Set(1000)
	require.NoError(t, env.proving.NextProvingPeriod(ctx, dataset.ID, 3850, oneTiBLeaves))
	env.clock.Set(3850)
	require.NoError(t, env.proving.RecordProof(ctx, dataset.ID, 5))

	env.clock.Set(3860)
	require.NoError(t, env.proving.NextProvingPeriod(ctx, dataset.ID, 6750, oneTiBLeaves))

	state, err := env.proving.State(ctx, dataset.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6760), state.ProvingDeadline)
	assert.False(t, state.ProvenThisPeriod)

	// Closed period stays proven, no fault raised
	proven, err := env.store.IsPeriodProven(ctx, dataset.ID, 0)
	require.NoError(t, err)
	assert.True(t, proven)
	assert.Equal(t, 0, env.sink.countKind(models.EventFaultRecorded))
}

func TestRolloverWithoutProofRecordsFault(t *testing.T) {
	env := newTestEnv(t, defaultProvingParams())
	ctx := context.Background()
	payer := env.registerPayer(t)
	env.approveProvider(t, "provider-1")
	dataset := env.createDataset(t, payer, "provider-1")

	env.clock.Set(1000)
	require.NoError(t, env.proving.NextProvingPeriod(ctx, dataset.ID, 3850, oneTiBLeaves))

	env.clock.Set(3860)
	require.NoError(t, env.proving.NextProvingPeriod(ctx, dataset.ID, 6750, oneTiBLeaves))

	proven, err := env.store.IsPeriodProven(ctx, dataset.ID, 0)
	require.NoError(t, err)
	assert.False(t, proven)
	assert.Equal(t, 1, env.sink.countKind(models.EventFaultRecorded))
}

func TestRolloverSkippedPeriods(t *testing.T) {
	env := newTestEnv(t, defaultProvingParams())
	ctx := context.Background()
	payer := env.registerPayer(t)
	env.approveProvider(t, "provider-1")
	dataset := env.createDataset(t, payer, "provider-1")

	env.clock.Set(1000)
	require.NoError(t, env.proving.NextProvingPeriod(ctx, dataset.ID, 3850, oneTiBLeaves))

	// Two full periods elapse unattended before the next transition
	env.clock.Set(9700)
	require.NoError(t, env.proving.NextProvingPeriod(ctx, dataset.ID, 12500, oneTiBLeaves))

	state, err := env.proving.State(ctx, dataset.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12520), state.ProvingDeadline)

	require.Equal(t, 1, env.sink.countKind(models.EventFaultRecorded))
	for _, e := range env.sink.events {
		if e.Kind == models.EventFaultRecorded {
			assert.Contains(t, e.Payload, `"fault_periods":3`)
		}
	}

	// Skipped periods read as unproven without explicit records
	for _, pid := range []int64{0, 1, 2} {
		proven, err := env.proving.IsEpochProven(ctx, dataset.ID, 1000+pid*2880+5)
		require.NoError(t, err)
		assert.False(t, proven, fmt.Sprintf("period %d", pid))
	}
}

func TestEmptyRolloverDeactivatesAndReactivates(t *testing.T) {
	env := newTestEnv(t, defaultProvingParams())
	ctx := context.Background()
	payer := env.registerPayer(t)
	env.approveProvider(t, "provider-1")
	dataset := env.createDataset(t, payer, "provider-1")

	env.clock.Set(1000)
	require.NoError(t, env.proving.NextProvingPeriod(ctx, dataset.ID, 3850, oneTiBLeaves))
	env.clock.Set(3850)
	require.NoError(t, env.proving.RecordProof(ctx, dataset.ID, 5))

	// Dataset went empty: proving stops, rail drops to the free tier
	require.NoError(t, env.proving.NextProvingPeriod(ctx, dataset.ID, 0, 0))

	state, err := env.proving.State(ctx, dataset.ID)
	require.NoError(t, err)
	assert.True(t, state.Activated())
	assert.False(t, state.Active())

	rail, err := env.store.GetRail(ctx, dataset.RailID)
	require.NoError(t, err)
	assert.Equal(t, 0, rail.Rate.Sign())

	// History survives deactivation
	proven, err := env.proving.IsEpochProven(ctx, dataset.ID, 2000)
	require.NoError(t, err)
	assert.True(t, proven)

	// Re-activation stays on the original period grid
	env.clock.Set(9000)
	require.NoError(t, env.proving.NextProvingPeriod(ctx, dataset.ID, 9600, oneTiBLeaves))

	state, err = env.proving.State(ctx, dataset.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), state.ActivationEpoch)
	assert.Equal(t, int64(9640), state.ProvingDeadline)
}

func TestIsEpochProven(t *testing.T) {
	env := newTestEnv(t, defaultProvingParams())
	ctx := context.Background()
	payer := env.registerPayer(t)
	env.approveProvider(t, "provider-1")
	dataset := env.createDataset(t, payer, "provider-1")

	proven, err := env.proving.IsEpochProven(ctx, dataset.ID, 100)
	require.NoError(t, err)
	assert.False(t, proven, "never activated")

	env.clock.Set(1000)
	require.NoError(t, env.proving.NextProvingPeriod(ctx, dataset.ID, 3850, oneTiBLeaves))
	env.clock.Set(3850)
	require.NoError(t, env.proving.RecordProof(ctx, dataset.ID, 5))

	tests := []struct {
		name   string
		epoch  int64
		proven bool
	}{
		{"before activation", 500, false},
		{"open period, proven flag", 2000, true},
		{"open period boundary", 3850, true},
		{"future epoch", 5000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proven, err := env.proving.IsEpochProven(ctx, dataset.ID, tt.epoch)
			require.NoError(t, err)
			assert.Equal(t, tt.proven, proven)
		})
	}
}

func TestAlternatingPeriodsRoundTrip(t *testing.T) {
	env := newTestEnv(t, ProvingParams{PeriodLength: 10, ChallengeWindow: 3, MinChallenges: 1})
	ctx := context.Background()
	payer := env.registerPayer(t)
	env.approveProvider(t, "provider-1")
	dataset := env.createDataset(t, payer, "provider-1")

	env.clock.Set(0)
	require.NoError(t, env.proving.NextProvingPeriod(ctx, dataset.ID, 8, oneTiBLeaves))

	// Prove even periods, fault odd ones, over six full periods
	for p := int64(0); p < 6; p++ {
		deadline := 10 * (p + 1)
		env.clock.Set(deadline - 2)
		if p%2 == 0 {
			require.NoError(t, env.proving.RecordProof(ctx, dataset.ID, 1))
		}
		require.NoError(t, env.proving.NextProvingPeriod(ctx, dataset.ID, deadline+8, oneTiBLeaves))
	}

	env.clock.Set(70)
	for p := int64(0); p < 6; p++ {
		for _, epochNum := range []int64{10*p + 1, 10*p + 5, 10*p + 9} {
			proven, err := env.proving.IsEpochProven(ctx, dataset.ID, epochNum)
			require.NoError(t, err)
			assert.Equal(t, p%2 == 0, proven, fmt.Sprintf("epoch %d", epochNum))
		}
	}
}
