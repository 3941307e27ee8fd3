// Package config defines the relay configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SIGNALRELAY_* environment variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Relay    RelayConfig    `toml:"relay"`
	Redis    RedisConfig    `toml:"redis"`
	Supabase SupabaseConfig `toml:"supabase"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port          int      `toml:"port"`
	CORSOrigins   []string `toml:"cors_origins"`
	APIKey        string   `toml:"api_key"`
	WebhookSecret string   `toml:"webhook_secret"`
	// SigningSecret, when set, requires an HMAC signature on webhook bodies.
	SigningSecret    string   `toml:"signing_secret"`
	SignatureMaxSkew duration `toml:"signature_max_skew"`
	MaxBodyBytes     int64    `toml:"max_body_bytes"`
	// RateLimit is webhook requests per RateWindow per client IP; 0 disables.
	RateLimit       int      `toml:"rate_limit"`
	RateWindow      duration `toml:"rate_window"`
	ReadTimeout     duration `toml:"read_timeout"`
	WriteTimeout    duration `toml:"write_timeout"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken   string   `toml:"telegram_token"`
	TelegramChatIDs []string `toml:"telegram_chat_ids"`
	TelegramBaseURL string   `toml:"telegram_base_url"`
	// MinSendInterval paces consecutive Telegram messages.
	MinSendInterval   duration `toml:"min_send_interval"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	DiscordUsername   string   `toml:"discord_username"`
	// Events limits which signal kinds are delivered; empty means all.
	Events          []string `toml:"events"`
	AnnounceStartup bool     `toml:"announce_startup"`
}

// RelayConfig tunes the signal pipeline.
type RelayConfig struct {
	EntryCooldown     duration `toml:"entry_cooldown"`
	ExitCooldown      duration `toml:"exit_cooldown"`
	DedupRetention    duration `toml:"dedup_retention"`
	LevelTolerance    float64  `toml:"level_tolerance"`
	MaxPlausiblePrice float64  `toml:"max_plausible_price"`
}

// RedisConfig holds Redis connection parameters. URL wins over Addr.
type RedisConfig struct {
	URL        string `toml:"url"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Namespace  string `toml:"namespace"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// ArchiveConfig controls history recording and cold archiving in full mode.
type ArchiveConfig struct {
	Enabled        bool     `toml:"enabled"`
	RetentionDays  int      `toml:"retention_days"`
	Cron           string   `toml:"cron"`
	RecordInterval duration `toml:"record_interval"`
}

// duration wraps time.Duration so TOML strings like "30s" decode.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the built-in defaults.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:             5000,
			MaxBodyBytes:     64 << 10,
			SignatureMaxSkew: duration{5 * time.Minute},
			RateLimit:        120,
			RateWindow:       duration{time.Minute},
			ReadTimeout:      duration{15 * time.Second},
			WriteTimeout:     duration{30 * time.Second},
			ShutdownTimeout:  duration{10 * time.Second},
		},
		Notify: NotifyConfig{
			TelegramBaseURL: "https://api.telegram.org",
			MinSendInterval: duration{2 * time.Second},
			DiscordUsername: "signalrelay",
			AnnounceStartup: true,
		},
		Relay: RelayConfig{
			EntryCooldown:     duration{60 * time.Second},
			ExitCooldown:      duration{30 * time.Second},
			DedupRetention:    duration{600 * time.Second},
			LevelTolerance:    0.005,
			MaxPlausiblePrice: 10_000_000,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			Namespace:  "signalrelay",
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "signalrelay-archive",
			ForcePathStyle: true,
			Prefix:         "archive",
		},
		Archive: ArchiveConfig{
			Enabled:        false,
			RetentionDays:  30,
			Cron:           "0 3 * * *",
			RecordInterval: duration{5 * time.Second},
		},
		Mode:     ModeStandalone,
		LogLevel: "info",
	}
}

// Run modes.
const (
	ModeStandalone = "standalone"
	ModeFull       = "full"
)

var validModes = map[string]bool{
	ModeStandalone: true,
	ModeFull:       true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: standalone, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, "server: max_body_bytes must be > 0")
	}
	if c.Server.SigningSecret != "" && c.Server.SignatureMaxSkew.Duration <= 0 {
		errs = append(errs, "server: signature_max_skew must be > 0 when signing_secret is set")
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
	}

	// Notify: at least one destination.
	hasTelegram := c.Notify.TelegramToken != "" && len(c.Notify.TelegramChatIDs) > 0
	if c.Notify.TelegramToken != "" && len(c.Notify.TelegramChatIDs) == 0 {
		errs = append(errs, "notify: telegram_chat_ids must be set when telegram_token is set")
	}
	if !hasTelegram && c.Notify.DiscordWebhookURL == "" {
		errs = append(errs, "notify: configure telegram_token + telegram_chat_ids or discord_webhook_url")
	}
	if c.Notify.MinSendInterval.Duration < 0 {
		errs = append(errs, "notify: min_send_interval must be >= 0")
	}

	// Relay
	if c.Relay.EntryCooldown.Duration < 0 || c.Relay.ExitCooldown.Duration < 0 {
		errs = append(errs, "relay: cooldowns must be >= 0")
	}
	if c.Relay.DedupRetention.Duration < max(c.Relay.EntryCooldown.Duration, c.Relay.ExitCooldown.Duration) {
		errs = append(errs, "relay: dedup_retention must be >= the longest cooldown")
	}
	if c.Relay.LevelTolerance < 0 || c.Relay.LevelTolerance >= 1 {
		errs = append(errs, fmt.Sprintf("relay: level_tolerance must be in [0, 1), got %g", c.Relay.LevelTolerance))
	}
	if c.Relay.MaxPlausiblePrice <= 0 {
		errs = append(errs, "relay: max_plausible_price must be > 0")
	}

	if strings.EqualFold(c.Mode, ModeFull) {
		// Redis
		if c.Redis.URL == "" && c.Redis.Addr == "" {
			errs = append(errs, "redis: url or addr must be set in full mode")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}

		// Supabase
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns < 0 || c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must be between 0 and pool_max_conns")
		}

		// Archive
		if c.Archive.Enabled {
			if c.S3.Bucket == "" {
				errs = append(errs, "s3: bucket must not be empty when archive is enabled")
			}
			if c.S3.Region == "" {
				errs = append(errs, "s3: region must not be empty when archive is enabled")
			}
			if c.Archive.RetentionDays < 1 {
				errs = append(errs, "archive: retention_days must be >= 1")
			}
			if strings.TrimSpace(c.Archive.Cron) == "" {
				errs = append(errs, "archive: cron must not be empty")
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsFull reports whether the relay runs with its external stores.
func (c *Config) IsFull() bool {
	return strings.EqualFold(c.Mode, ModeFull)
}
