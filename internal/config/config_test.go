package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
broker:
  auth_url: https://sim.logonvalidation.net/authorize
  token_url: https://sim.logonvalidation.net/token
  api_base_url: https://gateway.saxobank.com/sim/openapi
  stream_base_url: wss://streaming.saxobank.com/sim/openapi/streamingws
  redirect_uri: http://localhost:12321/callback
trading:
  plan_path: plan.json
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv("FXT_CLIENT_ID", "client-123")
	t.Setenv("FXT_CLIENT_SECRET", "secret-456")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3.5, cfg.Trading.SpreadPipsLimit)
	assert.Equal(t, "Europe/Copenhagen", cfg.Trading.Timezone)
	assert.Equal(t, 15*time.Second, cfg.Stream.PingInterval)
	assert.Equal(t, []int{10, 60, 180}, cfg.Stream.NotifyThresholdsSeconds)
	assert.Equal(t, "client-123", cfg.Broker.ClientID)
	assert.Equal(t, "secret-456", cfg.Broker.ClientSecret)
}

func TestLoad_UseLiveEnvOverride(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv("FXT_CLIENT_ID", "client-123")
	t.Setenv("FXT_CLIENT_SECRET", "secret-456")
	t.Setenv("FXT_USE_LIVE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.UseLive)
}

func TestValidate_RequiresClientCredentials(t *testing.T) {
	cfg := &Config{Trading: TradingConfig{Timezone: "UTC"}}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidate_RejectsUnknownTimezone(t *testing.T) {
	cfg := &Config{
		Broker: BrokerConfig{ClientID: "x", ClientSecret: "y",
			APIBaseURL: "https://api.example", StreamBaseURL: "wss://stream.example"},
		Trading: TradingConfig{SpreadPipsLimit: 3.5, Timezone: "Not/A_Zone"},
	}
	assert.Error(t, cfg.Validate())
}
