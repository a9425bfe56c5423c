package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(2880), cfg.Proving.PeriodLength)
	assert.Equal(t, int64(60), cfg.Proving.ChallengeWindow)
	assert.Equal(t, int64(5), cfg.Proving.MinChallenges)
	assert.Equal(t, int64(1<<20), cfg.Pricing.FreeTierBytes)
	assert.Equal(t, "proofpay", cfg.Service.Identity)

	require.NoError(t, cfg.Validate())

	price, err := cfg.Pricing.PricePerTiBMonthInt()
	require.NoError(t, err)
	assert.Equal(t, "2000000000000000000", price.String())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9000

[proving]
period_length = 120
challenge_window = 10

[payments]
creation_fee = "5000"

[service]
identity = "proofpay-dev"

[service.verifier_keys]
"verifier-1" = "secret-key"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, int64(120), cfg.Proving.PeriodLength)
	assert.Equal(t, int64(10), cfg.Proving.ChallengeWindow)
	assert.Equal(t, "5000", cfg.Payments.CreationFee)
	assert.Equal(t, "proofpay-dev", cfg.Service.Identity)
	assert.Equal(t, "secret-key", cfg.Service.VerifierKeys["verifier-1"])

	// Defaults fill the rest
	assert.Equal(t, int64(5), cfg.Proving.MinChallenges)
	assert.Equal(t, "FIL", cfg.Payments.Token)
}

func TestLoadRejectsBadAmounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[payments]
creation_fee = "not-a-number"
`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDatabaseURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Password = "pw"
	assert.Equal(t, "postgres://postgres:pw@localhost:5432/proofpay?sslmode=disable", cfg.Database.DatabaseURL())
}
