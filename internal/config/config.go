package config

import (
	"fmt"
	"math/big"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the settlement coordinator
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	P2P      P2PConfig      `toml:"p2p"`
	Chain    ChainConfig    `toml:"chain"`
	Proving  ProvingConfig  `toml:"proving"`
	Pricing  PricingConfig  `toml:"pricing"`
	Payments PaymentsConfig `toml:"payments"`
	Service  ServiceConfig  `toml:"service"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	ReadTimeout  int    `toml:"read_timeout"`
	WriteTimeout int    `toml:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"ssl_mode"`
}

// P2PConfig holds libp2p configuration for the event announcer
type P2PConfig struct {
	ListenAddresses []string `toml:"listen_addresses"`
	BootstrapPeers  []string `toml:"bootstrap_peers"`
	ObserverPeers   []string `toml:"observer_peers"`
	EnableTCP       bool     `toml:"enable_tcp"`
	EnableQUIC      bool     `toml:"enable_quic"`
}

// ChainConfig maps wall-clock time onto epochs. One epoch per underlying
// ledger block.
type ChainConfig struct {
	GenesisUnix  int64 `toml:"genesis_unix"`
	EpochSeconds int64 `toml:"epoch_seconds"`
}

// ProvingConfig holds the proving-period state machine constants
type ProvingConfig struct {
	PeriodLength    int64 `toml:"period_length"`
	ChallengeWindow int64 `toml:"challenge_window"`
	MinChallenges   int64 `toml:"min_challenges"`
}

// PricingConfig holds the rate computation constants. Amounts are decimal
// strings so they survive TOML round-trips at full precision.
type PricingConfig struct {
	PricePerTiBMonth string `toml:"price_per_tib_month"`
	MinRate          string `toml:"min_rate"`
	FreeTierBytes    int64  `toml:"free_tier_bytes"`
	LeafSizeBytes    int64  `toml:"leaf_size_bytes"`
	EpochsPerMonth   int64  `toml:"epochs_per_month"`
}

// PaymentsConfig holds the payment-rail creation constants
type PaymentsConfig struct {
	Token         string `toml:"token"`
	CommissionBps int64  `toml:"commission_bps"`
	CreationFee   string `toml:"creation_fee"`
	LockupPeriod  int64  `toml:"lockup_period"`
}

// ServiceConfig identifies this service inside signed authorization messages
// and lists the possession verifiers allowed on the proving endpoints.
type ServiceConfig struct {
	Identity     string            `toml:"identity"`
	VerifierKeys map[string]string `toml:"verifier_keys"`
}

// Load loads configuration from TOML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// DatabaseURL returns the PostgreSQL connection URL
func (c *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// PricePerTiBMonthInt parses the configured price into an integer amount.
func (c *PricingConfig) PricePerTiBMonthInt() (*big.Int, error) {
	return parseAmount("price_per_tib_month", c.PricePerTiBMonth)
}

// MinRateInt parses the configured minimum non-zero rate.
func (c *PricingConfig) MinRateInt() (*big.Int, error) {
	return parseAmount("min_rate", c.MinRate)
}

// CreationFeeInt parses the configured one-time dataset creation fee.
func (c *PaymentsConfig) CreationFeeInt() (*big.Int, error) {
	return parseAmount("creation_fee", c.CreationFee)
}

func parseAmount(field, value string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(value, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s amount: %q", field, value)
	}
	return n, nil
}

// Validate checks that amount fields parse
func (c *Config) Validate() error {
	if _, err := c.Pricing.PricePerTiBMonthInt(); err != nil {
		return err
	}
	if _, err := c.Pricing.MinRateInt(); err != nil {
		return err
	}
	if _, err := c.Payments.CreationFeeInt(); err != nil {
		return err
	}
	return nil
}

// SetDefaults sets default values for config
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.User == "" {
		c.Database.User = "postgres"
	}
	if c.Database.Database == "" {
		c.Database.Database = "proofpay"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.P2P.EnableTCP == false && c.P2P.EnableQUIC == false {
		c.P2P.EnableTCP = true
		c.P2P.EnableQUIC = true
	}
	if c.Chain.EpochSeconds == 0 {
		c.Chain.EpochSeconds = 30
	}
	if c.Proving.PeriodLength == 0 {
		c.Proving.PeriodLength = 2880 // one day of 30s epochs
	}
	if c.Proving.ChallengeWindow == 0 {
		c.Proving.ChallengeWindow = 60
	}
	if c.Proving.MinChallenges == 0 {
		c.Proving.MinChallenges = 5
	}
	if c.Pricing.PricePerTiBMonth == "" {
		c.Pricing.PricePerTiBMonth = "2000000000000000000" // 2 tokens (1e18 base units) per TiB-month
	}
	if c.Pricing.MinRate == "" {
		c.Pricing.MinRate = "1"
	}
	if c.Pricing.FreeTierBytes == 0 {
		c.Pricing.FreeTierBytes = 1 << 20 // 1 MiB
	}
	if c.Pricing.LeafSizeBytes == 0 {
		c.Pricing.LeafSizeBytes = 32
	}
	if c.Pricing.EpochsPerMonth == 0 {
		c.Pricing.EpochsPerMonth = 86400 // 30 days of 30s epochs
	}
	if c.Payments.Token == "" {
		c.Payments.Token = "FIL"
	}
	if c.Payments.CommissionBps == 0 {
		c.Payments.CommissionBps = 100 // 1%
	}
	if c.Payments.CreationFee == "" {
		c.Payments.CreationFee = "100000000000000000" // 0.1 token
	}
	if c.Payments.LockupPeriod == 0 {
		c.Payments.LockupPeriod = 28800 // ten proving periods
	}
	if c.Service.Identity == "" {
		c.Service.Identity = "proofpay"
	}
}
