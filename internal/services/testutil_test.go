package services

import (
	"context"
	"crypto/rand"
	"math/big"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/stretchr/testify/require"

	"github.com/federated-storage/proofpay/internal/epoch"
	"github.com/federated-storage/proofpay/internal/ledger"
	"github.com/federated-storage/proofpay/internal/models"
	"github.com/federated-storage/proofpay/internal/storage"
)

const testServiceID = "proofpay-test"

// recordingSink collects announced events so tests can assert on them.
type recordingSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (s *recordingSink) Announce(event models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]string, len(s.events))
	for i, e := range s.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func (s *recordingSink) countKind(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

type testEnv struct {
	store       *storage.MemoryStore
	clock       *epoch.ManualClock
	sink        *recordingSink
	rails       ledger.PaymentLedger
	auth        *AuthService
	providers   *ProviderService
	datasets    *DatasetService
	rate        *RateService
	proving     *ProvingService
	arbitration *ArbitrationService
}

func defaultProvingParams() ProvingParams {
	return ProvingParams{
		PeriodLength:    2880,
		ChallengeWindow: 60,
		MinChallenges:   5,
	}
}

func newTestEnv(t *testing.T, provingParams ProvingParams) *testEnv {
	t.Helper()

	store := storage.NewMemoryStore()
	clock := epoch.NewManualClock(0)
	sink := &recordingSink{}
	rails := ledger.NewStoreLedger(store)

	auth := NewAuthService(store, testServiceID)
	providers := NewProviderService(store)
	rate := NewRateService(store, rails, sink, RateParams{
		PricePerTiBMonth: mustAmount(t, "2000000000000000000"),
		MinRate:          big.NewInt(1),
		FreeTierBytes:    1 << 20,
		LeafSizeBytes:    32,
		EpochsPerMonth:   86400,
	})
	datasets := NewDatasetService(store, rails, auth, sink, DatasetParams{
		Token:         "FIL",
		CommissionBps: 100,
		CreationFee:   big.NewInt(1000),
		LockupPeriod:  28800,
		ServiceID:     testServiceID,
	})
	proving := NewProvingService(store, rate, clock, sink, provingParams)
	arbitration := NewArbitrationService(store, proving, sink)

	return &testEnv{
		store:       store,
		clock:       clock,
		sink:        sink,
		rails:       rails,
		auth:        auth,
		providers:   providers,
		datasets:    datasets,
		rate:        rate,
		proving:     proving,
		arbitration: arbitration,
	}
}

func mustAmount(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	return n
}

// testPayer is a registered payer account together with its signing key.
type testPayer struct {
	priv    crypto.PrivKey
	address string
}

func (p *testPayer) sign(t *testing.T, digest [32]byte) []byte {
	t.Helper()
	sig, err := p.priv.Sign(digest[:])
	require.NoError(t, err)
	return sig
}

func (e *testEnv) registerPayer(t *testing.T) *testPayer {
	t.Helper()
	priv, pub, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)
	pubBytes, err := crypto.MarshalPublicKey(pub)
	require.NoError(t, err)

	account, err := e.auth.RegisterPayer(context.Background(), pubBytes)
	require.NoError(t, err)
	return &testPayer{priv: priv, address: account.Address}
}

func (e *testEnv) approveProvider(t *testing.T, address string) {
	t.Helper()
	_, err := e.providers.Approve(context.Background(), ApproveProviderRequest{Address: address}, "ops")
	require.NoError(t, err)
}

// createDataset registers an approved dataset for the payer, signing with
// the payer's current sequence number.
func (e *testEnv) createDataset(t *testing.T, payer *testPayer, provider string) *models.Dataset {
	t.Helper()
	ctx := context.Background()

	account, err := e.store.GetPayer(ctx, payer.address)
	require.NoError(t, err)

	digest := CreateDatasetDigest(testServiceID, payer.address, account.Sequence, provider, "")
	dataset, err := e.datasets.CreateDataset(ctx, CreateDatasetRequest{
		Payer:     payer.address,
		Provider:  provider,
		Signature: payer.sign(t, digest),
	})
	require.NoError(t, err)
	return dataset
}

// addPieces appends pieces with a signature bound to the current count.
func (e *testEnv) addPieces(t *testing.T, payer *testPayer, datasetID uuid.UUID, pieces []string) {
	t.Helper()
	ctx := context.Background()

	count, err := e.store.PieceCount(ctx, datasetID)
	require.NoError(t, err)

	digest := AddPiecesDigest(testServiceID, payer.address, datasetID, count, pieces)
	_, err = e.datasets.AddPieces(ctx, datasetID, AddPiecesRequest{
		Pieces:    pieces,
		Signature: payer.sign(t, digest),
	})
	require.NoError(t, err)
}
