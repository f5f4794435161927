package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the ledger API server
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	P2P      P2PConfig      `toml:"p2p"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Auth     AuthConfig     `toml:"auth"`
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

// P2PConfig holds libp2p configuration
type P2PConfig struct {
	Enabled         bool     `toml:"enabled"`
	ListenAddresses []string `toml:"listen_addresses"`
	BootstrapPeers  []string `toml:"bootstrap_peers"`
	EnableQUIC      bool     `toml:"enable_quic"`
	EnableTCP       bool     `toml:"enable_tcp"`
}

// LedgerConfig holds protocol parameters
type LedgerConfig struct {
	// Authority is the identity allowed to verify participants, decide
	// submissions and pause the ledger. Leave empty to disable authority
	// operations entirely.
	Authority           string `toml:"authority"`
	CreditPrice         uint64 `toml:"credit_price"`
	DefaultBudget       uint64 `toml:"default_budget"`
	RateLimitWindow     uint64 `toml:"rate_limit_window"`
	MaxOpsPerTick       uint64 `toml:"max_ops_per_tick"`
	BudgetResetWindow   uint64 `toml:"budget_reset_window"`
	TickIntervalSeconds int    `toml:"tick_interval_seconds"`
}

// AuthConfig holds account authentication settings
type AuthConfig struct {
	JWTSecret            string `toml:"jwt_secret"`
	TokenExpirationHours int    `toml:"token_expiration_hours"`
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
		c.Database.Database = "greentrace"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.P2P.EnableTCP == false && c.P2P.EnableQUIC == false {
		c.P2P.EnableTCP = true
		c.P2P.EnableQUIC = true
	}
	if len(c.P2P.ListenAddresses) == 0 {
		c.P2P.ListenAddresses = []string{
			"/ip4/0.0.0.0/tcp/4001",
			"/ip4/0.0.0.0/udp/4001/quic-v1",
		}
	}
	if c.Ledger.CreditPrice == 0 {
		c.Ledger.CreditPrice = 1_000_000 // base units per credit
	}
	if c.Ledger.DefaultBudget == 0 {
		c.Ledger.DefaultBudget = 10_000 // grams CO2e per month
	}
	if c.Ledger.RateLimitWindow == 0 {
		c.Ledger.RateLimitWindow = 10
	}
	if c.Ledger.MaxOpsPerTick == 0 {
		c.Ledger.MaxOpsPerTick = 5
	}
	if c.Ledger.BudgetResetWindow == 0 {
		c.Ledger.BudgetResetWindow = 4_320
	}
	if c.Ledger.TickIntervalSeconds == 0 {
		c.Ledger.TickIntervalSeconds = 10
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if c.Auth.TokenExpirationHours == 0 {
		c.Auth.TokenExpirationHours = 24
	}
}
