// Package config defines all configuration for the trade execution
// engine. Config is loaded from a YAML file (default:
// configs/config.yaml) with sensitive fields overridable via FXT_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	UseLive  bool           `mapstructure:"use_live"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Session  SessionConfig  `mapstructure:"session"`
	State    StateConfig    `mapstructure:"state"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// BrokerConfig holds OAuth client credentials and REST endpoints. The
// client id and secret may be set in the file; FXT_CLIENT_ID and
// FXT_CLIENT_SECRET override them when set.
type BrokerConfig struct {
	AuthURL      string `mapstructure:"auth_url"`
	TokenURL     string `mapstructure:"token_url"`
	APIBaseURL   string `mapstructure:"api_base_url"`
	StreamBaseURL string `mapstructure:"stream_base_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

// TradingConfig tunes entry/exit guard behavior.
//
//   - StopLossPips / TakeProfitPips: bracket order distances.
//   - SpreadPipsLimit: entries are rejected above this spread.
//   - EntryRetryCount / ExitRetryCount / RandomDelaySec: loaded but not
//     read by the orchestrator, which makes at most 2 entry and 2 close
//     attempts and uses a fixed 3s bound for the randomized advance.
//   - FillTimeoutSeconds: how long confirm_entry_fill/confirm_exit_fill
//     wait on the waiter registry before falling back to the audit API.
type TradingConfig struct {
	StopLossPips       float64 `mapstructure:"stop_loss_pips"`
	TakeProfitPips     float64 `mapstructure:"take_profit_pips"`
	SpreadPipsLimit    float64 `mapstructure:"spread_pips_limit"`
	EntryRetryCount    int     `mapstructure:"entry_retry_count"`
	ExitRetryCount     int     `mapstructure:"exit_retry_count"`
	RandomDelaySec     int     `mapstructure:"random_delay_sec"`
	FillTimeoutSeconds int     `mapstructure:"fill_timeout_seconds"`
	Timezone           string  `mapstructure:"timezone"`
	PlanPath           string  `mapstructure:"plan_path"`
}

// StreamConfig tunes the ENS WebSocket client.
type StreamConfig struct {
	PingInterval             time.Duration `mapstructure:"ws_ping_interval"`
	PingTimeout              time.Duration `mapstructure:"ws_ping_timeout"`
	CloseTimeout             time.Duration `mapstructure:"ws_close_timeout"`
	StaleSeconds             time.Duration `mapstructure:"ens_stale_seconds"`
	MonitorInterval          time.Duration `mapstructure:"ens_monitor_interval_seconds"`
	NotifyThresholdsSeconds  []int         `mapstructure:"ens_notify_thresholds"`
	ReconnectMaxDelaySeconds time.Duration `mapstructure:"ens_reconnect_max_delay_seconds"`
}

// SessionConfig tunes the periodic token refresh loop.
type SessionConfig struct {
	TokenRefreshInterval     time.Duration `mapstructure:"token_refresh_interval_seconds"`
	StreamingAuthorizeEnabled bool         `mapstructure:"streaming_authorize_enabled"`
}

// StateConfig points at the crash-recovery state file.
type StateConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig controls zap construction.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the Prometheus HTTP exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: FXT_CLIENT_ID, FXT_CLIENT_SECRET.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("FXT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if id := os.Getenv("FXT_CLIENT_ID"); id != "" {
		cfg.Broker.ClientID = id
	}
	if secret := os.Getenv("FXT_CLIENT_SECRET"); secret != "" {
		cfg.Broker.ClientSecret = secret
	}
	if os.Getenv("FXT_USE_LIVE") == "true" || os.Getenv("FXT_USE_LIVE") == "1" {
		cfg.UseLive = true
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("use_live", false)
	v.SetDefault("trading.stop_loss_pips", 1.0)
	v.SetDefault("trading.take_profit_pips", 4000.0)
	v.SetDefault("trading.spread_pips_limit", 3.5)
	v.SetDefault("trading.entry_retry_count", 0)
	v.SetDefault("trading.exit_retry_count", 3)
	v.SetDefault("trading.random_delay_sec", 3)
	v.SetDefault("trading.fill_timeout_seconds", 180)
	v.SetDefault("trading.timezone", "Europe/Copenhagen")
	v.SetDefault("stream.ws_ping_interval", 15*time.Second)
	v.SetDefault("stream.ws_ping_timeout", 5*time.Second)
	v.SetDefault("stream.ws_close_timeout", 5*time.Second)
	v.SetDefault("stream.ens_stale_seconds", 45*time.Second)
	v.SetDefault("stream.ens_monitor_interval_seconds", 10*time.Second)
	v.SetDefault("stream.ens_notify_thresholds", []int{10, 60, 180})
	v.SetDefault("stream.ens_reconnect_max_delay_seconds", 30*time.Second)
	v.SetDefault("session.token_refresh_interval_seconds", 1080*time.Second)
	v.SetDefault("session.streaming_authorize_enabled", true)
	v.SetDefault("state.path", "trade_status.json")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Broker.ClientID == "" {
		return fmt.Errorf("broker.client_id is required (set FXT_CLIENT_ID)")
	}
	if c.Broker.ClientSecret == "" {
		return fmt.Errorf("broker.client_secret is required (set FXT_CLIENT_SECRET)")
	}
	if c.Broker.APIBaseURL == "" {
		return fmt.Errorf("broker.api_base_url is required")
	}
	if c.Broker.StreamBaseURL == "" {
		return fmt.Errorf("broker.stream_base_url is required")
	}
	if c.Trading.SpreadPipsLimit <= 0 {
		return fmt.Errorf("trading.spread_pips_limit must be > 0")
	}
	if c.Trading.Timezone == "" {
		return fmt.Errorf("trading.timezone is required")
	}
	if _, err := time.LoadLocation(c.Trading.Timezone); err != nil {
		return fmt.Errorf("trading.timezone is invalid: %w", err)
	}
	return nil
}
