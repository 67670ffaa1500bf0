package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps the real environment and working directory out of Load.
func isolate(t *testing.T) {
	t.Helper()
	oldWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(oldWD) })
	for _, key := range []string{
		EnvConfigFile, EnvDBPath,
		EnvPinataAPIKey, EnvPinataAPISecret, EnvPinataBaseURL, EnvPinataTimeout,
		EnvLedgerRPCURL, EnvLedgerContract, EnvLedgerKey, EnvLedgerChainID,
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, DefaultChainID, cfg.Ledger.ChainID)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv(EnvDBPath, "/var/lib/medledger/medledger.db")
	t.Setenv(EnvPinataAPIKey, "key")
	t.Setenv(EnvPinataAPISecret, "secret")
	t.Setenv(EnvPinataTimeout, "5s")
	t.Setenv(EnvLedgerRPCURL, "http://localhost:8545")
	t.Setenv(EnvLedgerContract, "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	t.Setenv(EnvLedgerKey, "deadbeef")
	t.Setenv(EnvLedgerChainID, "1337")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/medledger/medledger.db", cfg.DBPath)
	assert.Equal(t, "key", cfg.Pinata.APIKey)
	assert.Equal(t, 5*time.Second, cfg.Pinata.Timeout)
	assert.Equal(t, int64(1337), cfg.Ledger.ChainID)

	require.NoError(t, cfg.ValidatePinning())
	require.NoError(t, cfg.ValidateLedger())
}

func TestLoad_YAMLFile(t *testing.T) {
	isolate(t)
	path := writeFile(t, "medledger.yaml", `
db_path: /data/medledger.db
pinata:
  api_key: file-key
  api_secret: file-secret
  timeout: 10s
ledger:
  rpc_url: http://node:8545
  contract_address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
  private_key: cafe
  chain_id: 11155111
`)
	t.Setenv(EnvConfigFile, path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/medledger.db", cfg.DBPath)
	assert.Equal(t, "file-key", cfg.Pinata.APIKey)
	assert.Equal(t, 10*time.Second, cfg.Pinata.Timeout)
	assert.Equal(t, int64(11155111), cfg.Ledger.ChainID)
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	isolate(t)
	path := writeFile(t, "medledger.yaml", "db_path: /from/file.db\n")
	t.Setenv(EnvConfigFile, path)
	t.Setenv(EnvDBPath, "/from/env.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", cfg.DBPath)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	isolate(t)
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_BadValues(t *testing.T) {
	isolate(t)
	t.Setenv(EnvPinataTimeout, "soon")
	_, err := Load()
	assert.Error(t, err)

	isolate(t)
	t.Setenv(EnvLedgerChainID, "not-a-number")
	_, err = Load()
	assert.Error(t, err)

	isolate(t)
	path := writeFile(t, "bad.yaml", "pinata: [not a map]\n")
	t.Setenv(EnvConfigFile, path)
	_, err = Load()
	assert.Error(t, err)
}

func TestValidate_Missing(t *testing.T) {
	var cfg Config
	assert.Error(t, cfg.ValidatePinning())
	assert.Error(t, cfg.ValidateLedger())
}
