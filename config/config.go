package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"escrowd/crypto"
)

// Config carries the node-level settings for the escrow service. Platform
// fee state lives in the engine; this file only seeds the identities and
// wiring the process starts with.
type Config struct {
	ListenAddress       string           `toml:"ListenAddress"`
	DataDir             string           `toml:"DataDir"`
	Environment         string           `toml:"Environment"`
	OwnerAddress        string           `toml:"OwnerAddress"`
	FeeRecipientAddress string           `toml:"FeeRecipientAddress"`
	EventJournalSize    int              `toml:"EventJournalSize"`
	GenesisAccounts     []GenesisAccount `toml:"GenesisAccounts"`
}

// GenesisAccount seeds a ledger balance at first start so deposits can be
// funded in development and test networks.
type GenesisAccount struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./escrowd-data"
	}
	if c.EventJournalSize <= 0 {
		c.EventJournalSize = 1024
	}
}

// Validate checks that the admin identities decode as addresses.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OwnerAddress) == "" {
		return fmt.Errorf("config: OwnerAddress is required")
	}
	if _, err := crypto.DecodeAddress(c.OwnerAddress); err != nil {
		return fmt.Errorf("config: invalid OwnerAddress: %w", err)
	}
	if strings.TrimSpace(c.FeeRecipientAddress) == "" {
		return fmt.Errorf("config: FeeRecipientAddress is required")
	}
	if _, err := crypto.DecodeAddress(c.FeeRecipientAddress); err != nil {
		return fmt.Errorf("config: invalid FeeRecipientAddress: %w", err)
	}
	for i, acct := range c.GenesisAccounts {
		if _, err := crypto.DecodeAddress(acct.Address); err != nil {
			return fmt.Errorf("config: invalid genesis address %d: %w", i, err)
		}
	}
	return nil
}

// Owner returns the decoded owner identity. Call Validate first.
func (c *Config) Owner() (crypto.Address, error) {
	return crypto.DecodeAddress(c.OwnerAddress)
}

// FeeRecipient returns the decoded fee recipient identity. Call Validate
// first.
func (c *Config) FeeRecipient() (crypto.Address, error) {
	return crypto.DecodeAddress(c.FeeRecipientAddress)
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
