// Package config loads service configuration, following the 12-factor
// convention: an optional YAML file provides a base, a .env file (when
// present) is folded into the environment, and environment variables win
// over everything.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/medledger/medledger/internal/ledger"
	"github.com/medledger/medledger/internal/pin"
)

// Environment variable names.
const (
	EnvConfigFile      = "MEDLEDGER_CONFIG"
	EnvDBPath          = "MEDLEDGER_DB_PATH"
	EnvPinataAPIKey    = "MEDLEDGER_PINATA_API_KEY"
	EnvPinataAPISecret = "MEDLEDGER_PINATA_API_SECRET"
	EnvPinataBaseURL   = "MEDLEDGER_PINATA_BASE_URL"
	EnvPinataTimeout   = "MEDLEDGER_PINATA_TIMEOUT"
	EnvLedgerRPCURL    = "MEDLEDGER_LEDGER_RPC_URL"
	EnvLedgerContract  = "MEDLEDGER_LEDGER_CONTRACT"
	EnvLedgerKey       = "MEDLEDGER_LEDGER_PRIVATE_KEY"
	EnvLedgerChainID   = "MEDLEDGER_LEDGER_CHAIN_ID"
)

// Defaults applied when neither file nor environment provides a value.
const (
	DefaultConfigFile = "medledger.yaml"
	DefaultDBPath     = "medledger.db"
	DefaultChainID    = int64(31337)
)

// Config holds everything the service needs to reach its backends.
type Config struct {
	DBPath string
	Pinata pin.PinataConfig
	Ledger ledger.EthereumConfig
}

// fileConfig is the YAML shape of the optional config file.
type fileConfig struct {
	DBPath string `yaml:"db_path"`
	Pinata struct {
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
		BaseURL   string `yaml:"base_url"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"pinata"`
	Ledger struct {
		RPCURL          string `yaml:"rpc_url"`
		ContractAddress string `yaml:"contract_address"`
		PrivateKey      string `yaml:"private_key"`
		ChainID         int64  `yaml:"chain_id"`
	} `yaml:"ledger"`
}

// Load assembles the configuration. Precedence, lowest to highest:
// defaults, the YAML file (MEDLEDGER_CONFIG, or medledger.yaml when it
// exists), then environment variables. A .env file in the working
// directory is folded into the environment before the env pass.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		DBPath: DefaultDBPath,
		Ledger: ledger.EthereumConfig{ChainID: DefaultChainID},
	}

	path := os.Getenv(EnvConfigFile)
	explicit := path != ""
	if path == "" {
		path = DefaultConfigFile
	}
	if err := applyFile(&cfg, path, explicit); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyFile merges the YAML file at path into cfg. A missing file is an
// error only when the path was set explicitly.
func applyFile(cfg *Config, path string, explicit bool) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	setString(&cfg.DBPath, fc.DBPath)
	setString(&cfg.Pinata.APIKey, fc.Pinata.APIKey)
	setString(&cfg.Pinata.APISecret, fc.Pinata.APISecret)
	setString(&cfg.Pinata.BaseURL, fc.Pinata.BaseURL)
	if fc.Pinata.Timeout != "" {
		d, err := time.ParseDuration(fc.Pinata.Timeout)
		if err != nil {
			return fmt.Errorf("config: parse %s pinata.timeout: %w", path, err)
		}
		cfg.Pinata.Timeout = d
	}
	setString(&cfg.Ledger.RPCURL, fc.Ledger.RPCURL)
	setString(&cfg.Ledger.ContractAddress, fc.Ledger.ContractAddress)
	setString(&cfg.Ledger.PrivateKey, fc.Ledger.PrivateKey)
	if fc.Ledger.ChainID != 0 {
		cfg.Ledger.ChainID = fc.Ledger.ChainID
	}
	return nil
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config) error {
	setString(&cfg.DBPath, os.Getenv(EnvDBPath))
	setString(&cfg.Pinata.APIKey, os.Getenv(EnvPinataAPIKey))
	setString(&cfg.Pinata.APISecret, os.Getenv(EnvPinataAPISecret))
	setString(&cfg.Pinata.BaseURL, os.Getenv(EnvPinataBaseURL))
	setString(&cfg.Ledger.RPCURL, os.Getenv(EnvLedgerRPCURL))
	setString(&cfg.Ledger.ContractAddress, os.Getenv(EnvLedgerContract))
	setString(&cfg.Ledger.PrivateKey, os.Getenv(EnvLedgerKey))

	if raw := os.Getenv(EnvPinataTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("config: parse %s: %w", EnvPinataTimeout, err)
		}
		cfg.Pinata.Timeout = d
	}
	if raw := os.Getenv(EnvLedgerChainID); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("config: parse %s: %w", EnvLedgerChainID, err)
		}
		cfg.Ledger.ChainID = id
	}
	return nil
}

// ValidatePinning checks the settings the pinning client needs. Only
// commands that pin content call this, so read-only commands run without
// Pinata credentials.
func (c Config) ValidatePinning() error {
	if c.Pinata.APIKey == "" {
		return fmt.Errorf("config: %s is required", EnvPinataAPIKey)
	}
	if c.Pinata.APISecret == "" {
		return fmt.Errorf("config: %s is required", EnvPinataAPISecret)
	}
	return nil
}

// ValidateLedger checks the settings the ledger client needs.
func (c Config) ValidateLedger() error {
	if c.Ledger.RPCURL == "" {
		return fmt.Errorf("config: %s is required", EnvLedgerRPCURL)
	}
	if c.Ledger.ContractAddress == "" {
		return fmt.Errorf("config: %s is required", EnvLedgerContract)
	}
	if c.Ledger.PrivateKey == "" {
		return fmt.Errorf("config: %s is required", EnvLedgerKey)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
