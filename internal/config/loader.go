package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load builds the Config: defaults, then the TOML file at path (skipped when
// it does not exist), then a .env file if present, then environment
// overrides. The result is not validated; call Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// A missing .env is normal in deployed environments.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	applyLegacyEnv(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads SIGNALRELAY_* variables and overwrites the matching
// field when a variable is set and non-empty.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "SIGNALRELAY_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SIGNALRELAY_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SIGNALRELAY_SERVER_API_KEY")
	setStr(&cfg.Server.WebhookSecret, "SIGNALRELAY_SERVER_WEBHOOK_SECRET")
	setStr(&cfg.Server.SigningSecret, "SIGNALRELAY_SERVER_SIGNING_SECRET")
	setDuration(&cfg.Server.SignatureMaxSkew, "SIGNALRELAY_SERVER_SIGNATURE_MAX_SKEW")
	setInt64(&cfg.Server.MaxBodyBytes, "SIGNALRELAY_SERVER_MAX_BODY_BYTES")
	setInt(&cfg.Server.RateLimit, "SIGNALRELAY_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "SIGNALRELAY_SERVER_RATE_WINDOW")
	setDuration(&cfg.Server.ShutdownTimeout, "SIGNALRELAY_SERVER_SHUTDOWN_TIMEOUT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SIGNALRELAY_NOTIFY_TELEGRAM_TOKEN")
	setStringSlice(&cfg.Notify.TelegramChatIDs, "SIGNALRELAY_NOTIFY_TELEGRAM_CHAT_IDS")
	setStr(&cfg.Notify.TelegramBaseURL, "SIGNALRELAY_NOTIFY_TELEGRAM_BASE_URL")
	setDuration(&cfg.Notify.MinSendInterval, "SIGNALRELAY_NOTIFY_MIN_SEND_INTERVAL")
	setStr(&cfg.Notify.DiscordWebhookURL, "SIGNALRELAY_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SIGNALRELAY_NOTIFY_EVENTS")
	setBool(&cfg.Notify.AnnounceStartup, "SIGNALRELAY_NOTIFY_ANNOUNCE_STARTUP")

	// ── Relay ──
	setDuration(&cfg.Relay.EntryCooldown, "SIGNALRELAY_RELAY_ENTRY_COOLDOWN")
	setDuration(&cfg.Relay.ExitCooldown, "SIGNALRELAY_RELAY_EXIT_COOLDOWN")
	setDuration(&cfg.Relay.DedupRetention, "SIGNALRELAY_RELAY_DEDUP_RETENTION")
	setFloat64(&cfg.Relay.LevelTolerance, "SIGNALRELAY_RELAY_LEVEL_TOLERANCE")
	setFloat64(&cfg.Relay.MaxPlausiblePrice, "SIGNALRELAY_RELAY_MAX_PLAUSIBLE_PRICE")

	// ── Redis ──
	setStr(&cfg.Redis.URL, "SIGNALRELAY_REDIS_URL")
	setStr(&cfg.Redis.Addr, "SIGNALRELAY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SIGNALRELAY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SIGNALRELAY_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "SIGNALRELAY_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "SIGNALRELAY_REDIS_NAMESPACE")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "SIGNALRELAY_SUPABASE_DSN")
	setStr(&cfg.Supabase.Host, "SIGNALRELAY_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "SIGNALRELAY_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "SIGNALRELAY_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "SIGNALRELAY_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "SIGNALRELAY_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "SIGNALRELAY_SUPABASE_SSL_MODE")
	setBool(&cfg.Supabase.RunMigrations, "SIGNALRELAY_SUPABASE_RUN_MIGRATIONS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SIGNALRELAY_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SIGNALRELAY_S3_REGION")
	setStr(&cfg.S3.Bucket, "SIGNALRELAY_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SIGNALRELAY_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SIGNALRELAY_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SIGNALRELAY_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SIGNALRELAY_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "SIGNALRELAY_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "SIGNALRELAY_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "SIGNALRELAY_ARCHIVE_CRON")

	// ── Top-level ──
	setStr(&cfg.Mode, "SIGNALRELAY_MODE")
	setStr(&cfg.LogLevel, "SIGNALRELAY_LOG_LEVEL")
}

// applyLegacyEnv honours the variable names used by existing deployments.
// They only fill fields the SIGNALRELAY_* set left empty.
func applyLegacyEnv(cfg *Config) {
	if cfg.Notify.TelegramToken == "" {
		setStr(&cfg.Notify.TelegramToken, "TELEGRAM_BOT_TOKEN")
	}
	if len(cfg.Notify.TelegramChatIDs) == 0 {
		setStringSlice(&cfg.Notify.TelegramChatIDs, "TELEGRAM_CHAT_IDS")
	}
	if len(cfg.Notify.TelegramChatIDs) == 0 {
		setStringSlice(&cfg.Notify.TelegramChatIDs, "TELEGRAM_CHAT_ID")
	}
	if cfg.Server.WebhookSecret == "" {
		setStr(&cfg.Server.WebhookSecret, "WEBHOOK_SECRET")
	}
	if os.Getenv("SIGNALRELAY_SERVER_PORT") == "" {
		setInt(&cfg.Server.Port, "PORT")
	}
	if cfg.Redis.URL == "" {
		setStr(&cfg.Redis.URL, "REDIS_URL")
	}
	if cfg.Supabase.DSN == "" {
		setStr(&cfg.Supabase.DSN, "DATABASE_URL")
	}
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and parses.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		if cleaned := splitList(v); len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// splitList splits on commas, trimming blanks.
func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
