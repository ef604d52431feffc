package configloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
payment:
  payTo: "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.ReadTimeout)
	assert.Equal(t, 60, cfg.Server.IdleTimeout)

	assert.Equal(t, "base-sepolia", cfg.Payment.Network)
	assert.Equal(t, "0x209693Bc6afc0C5328bA36FaF03C514EF312287C", cfg.Payment.PayTo)
	assert.Equal(t, "$0.01", cfg.Payment.DefaultPrice)
	assert.Equal(t, "$0.001", cfg.Payment.DefaultBudget)
	assert.Equal(t, 60, cfg.Payment.MaxTimeoutSeconds)

	assert.Equal(t, DefaultFacilitatorURL, cfg.Facilitator.BaseURL)
	assert.Equal(t, int64(10000), cfg.Facilitator.RequestTimeoutMillis)
	assert.Equal(t, 3, cfg.Facilitator.MaxRetries)

	assert.Equal(t, 10, cfg.Gate.ReplayCleanupMinutes)
	assert.Equal(t, 5, cfg.Pricing.CacheTTLMinutes)
	assert.Equal(t, 50, cfg.RpcClient.MaxWalletsPerRPC)

	assert.Equal(t, int64(30000), cfg.Payer.RequestTimeoutMillis)
	assert.Equal(t, 4, cfg.Payer.MaxConcurrentRequests)
	assert.Equal(t, 5, cfg.Payer.RequestsPerSecond)
	assert.Equal(t, 10, cfg.Payer.BurstLimit)
	assert.Equal(t, "$1", cfg.Payer.MaxPaymentAmount)

	assert.Equal(t, "data/assets", cfg.Assets.Dir)
	assert.Equal(t, "data/wallets.txt", cfg.Wallets.File)
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
  readTimeout: 5
payment:
  network: "eip155:8453"
  maxTimeoutSeconds: 120
facilitator:
  baseURL: "https://facilitator.example.test"
  requestTimeoutMillis: 2500
payer:
  resourceBaseURL: "http://localhost:9090"
  maxConcurrentRequests: 2
  endpoints:
    - path: "/acp-budget"
      method: "GET"
      budget: "$0.002"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 5, cfg.Server.ReadTimeout)
	assert.Equal(t, "eip155:8453", cfg.Payment.Network)
	assert.Equal(t, 120, cfg.Payment.MaxTimeoutSeconds)
	assert.Equal(t, "https://facilitator.example.test", cfg.Facilitator.BaseURL)
	assert.Equal(t, int64(2500), cfg.Facilitator.RequestTimeoutMillis)
	assert.Equal(t, 2, cfg.Payer.MaxConcurrentRequests)
	require.Len(t, cfg.Payer.Endpoints, 1)
	assert.Equal(t, "/acp-budget", cfg.Payer.Endpoints[0].Path)
	assert.Equal(t, "$0.002", cfg.Payer.Endpoints[0].Budget)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("NETWORK", "avalanche")
	t.Setenv("PAY_TO", "0x857b06519E91e3A54538791bDbb0E22373e36b66")
	t.Setenv("FACILITATOR_URL", "https://api.cdp.coinbase.com/platform/v2/x402")
	t.Setenv("CDP_API_KEY_ID", "key-id-from-env")
	t.Setenv("CDP_API_KEY_SECRET", "key-secret-from-env")
	t.Setenv("RESOURCE_SERVER_URL", "http://paid.example.test")

	path := writeConfig(t, `
payment:
  network: "base"
  payTo: "0x0000000000000000000000000000000000000001"
cdp:
  enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "avalanche", cfg.Payment.Network)
	assert.Equal(t, "0x857b06519E91e3A54538791bDbb0E22373e36b66", cfg.Payment.PayTo)
	assert.Equal(t, "https://api.cdp.coinbase.com/platform/v2/x402", cfg.Facilitator.BaseURL)
	assert.True(t, cfg.CDP.Enabled)
	assert.Equal(t, "key-id-from-env", cfg.CDP.KeyID)
	assert.Equal(t, "key-secret-from-env", cfg.CDP.KeySecret)
	assert.Equal(t, "http://paid.example.test", cfg.Payer.ResourceBaseURL)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("PAY_TO", "0x857b06519E91e3A54538791bDbb0E22373e36b66")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "0x857b06519E91e3A54538791bDbb0E22373e36b66", cfg.Payment.PayTo)
	assert.Equal(t, "base-sepolia", cfg.Payment.Network)
	assert.Equal(t, DefaultFacilitatorURL, cfg.Facilitator.BaseURL)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "payment: [not, a, mapping")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal config data")
}
