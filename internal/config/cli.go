package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// CLIConfig holds all configuration for the greentrace command line client
type CLIConfig struct {
	API  APIConfig  `toml:"api"`
	Data DataConfig `toml:"data"`
}

// APIConfig holds ledger API connection info
type APIConfig struct {
	URL       string `toml:"url"`
	AccountID string `toml:"account_id"`
	APIKey    string `toml:"api_key"`
	AuthToken string `toml:"auth_token"`
}

// DataConfig holds local data settings
type DataConfig struct {
	Dir      string `toml:"dir"`
	LabelsDB string `toml:"labels_db"`
}

// LoadCLI loads CLI configuration from TOML file
func LoadCLI(path string) (*CLIConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config CLIConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()

	return &config, nil
}

// Save saves configuration to TOML file
func (c *CLIConfig) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// EnsureDirs creates necessary directories
func (c *CLIConfig) EnsureDirs() error {
	if err := os.MkdirAll(c.Data.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.Data.Dir, err)
	}
	return nil
}

func (c *CLIConfig) setDefaults() {
	if c.API.URL == "" {
		c.API.URL = "http://localhost:8080"
	}
	if c.Data.Dir == "" {
		c.Data.Dir = "data"
	}
	if c.Data.LabelsDB == "" {
		c.Data.LabelsDB = filepath.Join(c.Data.Dir, "labels.db")
	}
}

// DefaultCLIConfig returns a default CLI configuration
func DefaultCLIConfig() *CLIConfig {
	cfg := &CLIConfig{}
	cfg.setDefaults()
	return cfg
}
