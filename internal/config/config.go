// Package config defines all configuration for the arbitrage monitor.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via ARB_* environment variables.
//
// Settings is the runtime-editable part (datasource, books, rebates, stake,
// notifications). The file seeds it; the persisted blob in the store
// overlays it; the dashboard edits it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Feed      FeedConfig      `mapstructure:"feed"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Settings  Settings        `mapstructure:"settings"`
}

// FeedConfig tunes the connection manager.
//
//   - DefaultURL: feed endpoint used when the datasource mode is "auto".
//   - MockURL: endpoint used when the datasource runs in mock mode. Empty means
//     the dashboard's own fixture endpoint (ws://localhost:<port>/ws/opps).
//   - HeartbeatTimeout: close the transport if no heartbeat arrives within this window.
//   - HeartbeatPoll: how often the heartbeat monitor checks.
//   - BaseBackoff/MaxBackoff: reconnect delay is min(Max, 2^(attempt-1) * Base).
//   - ReconnectDelay: settle delay before a manual reconnect dials.
//   - CompanyBooks: maps numeric companyId codes in feed records to book names.
type FeedConfig struct {
	DefaultURL       string            `mapstructure:"default_url"`
	MockURL          string            `mapstructure:"mock_url"`
	HeartbeatTimeout time.Duration     `mapstructure:"heartbeat_timeout"`
	HeartbeatPoll    time.Duration     `mapstructure:"heartbeat_poll"`
	BaseBackoff      time.Duration     `mapstructure:"base_backoff"`
	MaxBackoff       time.Duration     `mapstructure:"max_backoff"`
	ReconnectDelay   time.Duration     `mapstructure:"reconnect_delay"`
	DialTimeout      time.Duration     `mapstructure:"dial_timeout"`
	CompanyBooks     map[string]string `mapstructure:"company_books"`
}

// AlertsConfig controls alert deduplication and system-notification throttling.
// Memory selects the dedup backend: "memory" (process lifetime) or "redis".
type AlertsConfig struct {
	Memory          string        `mapstructure:"memory"`
	DedupWindow     time.Duration `mapstructure:"dedup_window"`
	NotifyPerMinute int           `mapstructure:"notify_per_minute"`
}

// TelegramConfig enables Telegram as the system-notification channel.
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	ChatID  int64  `mapstructure:"chat_id"`
}

// RedisConfig is used when alerts.memory is "redis".
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StoreConfig sets where the settings blob is persisted.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the web dashboard server.
type DashboardConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: ARB_FEED_TOKEN, ARB_TELEGRAM_TOKEN, ARB_TELEGRAM_CHAT_ID.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ARB")
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

	// Override sensitive fields from env
	if token := os.Getenv("ARB_FEED_TOKEN"); token != "" {
		cfg.Settings.Datasource.Token = token
	}
	if token := os.Getenv("ARB_TELEGRAM_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	if chat := os.Getenv("ARB_TELEGRAM_CHAT_ID"); chat != "" {
		id, err := strconv.ParseInt(chat, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse ARB_TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Telegram.ChatID = id
	}
	if cfg.Settings.Books == nil {
		cfg.Settings.Books = make(map[string]bool)
	}
	cfg.Settings.normalize()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("feed.heartbeat_timeout", 30*time.Second)
	v.SetDefault("feed.heartbeat_poll", 5*time.Second)
	v.SetDefault("feed.base_backoff", time.Second)
	v.SetDefault("feed.max_backoff", 30*time.Second)
	v.SetDefault("feed.reconnect_delay", 120*time.Millisecond)
	v.SetDefault("feed.dial_timeout", 10*time.Second)
	v.SetDefault("alerts.memory", "memory")
	v.SetDefault("alerts.dedup_window", 15*time.Second)
	v.SetDefault("alerts.notify_per_minute", 20)
	v.SetDefault("store.data_dir", "data")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("dashboard.port", 3000)

	d := DefaultSettings()
	v.SetDefault("settings.datasource.mode", d.Datasource.Mode)
	v.SetDefault("settings.datasource.transport", d.Datasource.Transport)
	v.SetDefault("settings.datasource.use_mock", d.Datasource.UseMock)
	v.SetDefault("settings.stake.a_book", d.Stake.ABook)
	v.SetDefault("settings.stake.amount_a", d.Stake.AmountA)
	v.SetDefault("settings.stake.min_profit", d.Stake.MinProfit)
	v.SetDefault("settings.notify.sound_enabled", d.Notify.SoundEnabled)
	v.SetDefault("settings.notify.toast_enabled", d.Notify.ToastEnabled)
	v.SetDefault("settings.notify.toast_duration_s", d.Notify.ToastDurationS)
	v.SetDefault("settings.notify.auto_hide_row_s", d.Notify.AutoHideRowS)
}

// MockURL returns the mock datasource endpoint, defaulting to the dashboard fixture.
func (c *Config) MockURL() string {
	if c.Feed.MockURL != "" {
		return c.Feed.MockURL
	}
	return fmt.Sprintf("ws://localhost:%d/ws/opps", c.Dashboard.Port)
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Dashboard.Port <= 0 {
		return fmt.Errorf("dashboard.port must be > 0")
	}
	if c.Feed.HeartbeatTimeout <= 0 || c.Feed.HeartbeatPoll <= 0 {
		return fmt.Errorf("feed.heartbeat_timeout and feed.heartbeat_poll must be > 0")
	}
	if c.Feed.BaseBackoff <= 0 || c.Feed.MaxBackoff < c.Feed.BaseBackoff {
		return fmt.Errorf("feed.base_backoff must be > 0 and <= feed.max_backoff")
	}
	switch c.Alerts.Memory {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when alerts.memory is redis")
		}
	default:
		return fmt.Errorf("alerts.memory must be one of: memory, redis")
	}
	if c.Alerts.DedupWindow <= 0 {
		return fmt.Errorf("alerts.dedup_window must be > 0")
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == 0) {
		return fmt.Errorf("telegram.token and telegram.chat_id are required when telegram is enabled (set ARB_TELEGRAM_TOKEN)")
	}
	return c.Settings.Validate()
}
