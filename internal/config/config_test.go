package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validStandalone is the smallest config that passes Validate.
func validStandalone() Config {
	cfg := Defaults()
	cfg.Notify.TelegramToken = "123:abc"
	cfg.Notify.TelegramChatIDs = []string{"-100"}
	return cfg
}

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, ModeStandalone, cfg.Mode)
	assert.Equal(t, 60*time.Second, cfg.Relay.EntryCooldown.Duration)
	assert.Equal(t, 30*time.Second, cfg.Relay.ExitCooldown.Duration)
	assert.Equal(t, 600*time.Second, cfg.Relay.DedupRetention.Duration)
	assert.InDelta(t, 0.005, cfg.Relay.LevelTolerance, 1e-12)
}

func TestLoadFile(t *testing.T) {
	path := writeTOML(t, `
mode = "full"
log_level = "debug"

[server]
port = 8080
webhook_secret = "hook"

[notify]
telegram_token = "tok"
telegram_chat_ids = ["-1", "-2"]
min_send_interval = "500ms"

[relay]
entry_cooldown = "90s"
level_tolerance = 0.01
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeFull, cfg.Mode)
	assert.True(t, cfg.IsFull())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "hook", cfg.Server.WebhookSecret)
	assert.Equal(t, []string{"-1", "-2"}, cfg.Notify.TelegramChatIDs)
	assert.Equal(t, 500*time.Millisecond, cfg.Notify.MinSendInterval.Duration)
	assert.Equal(t, 90*time.Second, cfg.Relay.EntryCooldown.Duration)
	assert.Equal(t, 30*time.Second, cfg.Relay.ExitCooldown.Duration, "unset keys keep defaults")
	assert.InDelta(t, 0.01, cfg.Relay.LevelTolerance, 1e-12)
}

func TestLoadMalformedFile(t *testing.T) {
	_, err := Load(writeTOML(t, "mode = "))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SIGNALRELAY_SERVER_PORT", "9000")
	t.Setenv("SIGNALRELAY_NOTIFY_TELEGRAM_CHAT_IDS", " -1 , ,-2 ")
	t.Setenv("SIGNALRELAY_RELAY_EXIT_COOLDOWN", "45s")
	t.Setenv("SIGNALRELAY_ARCHIVE_ENABLED", "true")
	t.Setenv("SIGNALRELAY_RELAY_LEVEL_TOLERANCE", "not-a-number")
	t.Setenv("PORT", "7000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port, "SIGNALRELAY_SERVER_PORT wins over PORT")
	assert.Equal(t, []string{"-1", "-2"}, cfg.Notify.TelegramChatIDs)
	assert.Equal(t, 45*time.Second, cfg.Relay.ExitCooldown.Duration)
	assert.True(t, cfg.Archive.Enabled)
	assert.InDelta(t, 0.005, cfg.Relay.LevelTolerance, 1e-12, "unparsable values are ignored")
}

func TestLegacyEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "legacy-token")
	t.Setenv("TELEGRAM_CHAT_ID", "-1003252117175")
	t.Setenv("WEBHOOK_SECRET", "legacy-secret")
	t.Setenv("PORT", "7000")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "legacy-token", cfg.Notify.TelegramToken)
	assert.Equal(t, []string{"-1003252117175"}, cfg.Notify.TelegramChatIDs)
	assert.Equal(t, "legacy-secret", cfg.Server.WebhookSecret)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

func TestLegacyChatIDsListWins(t *testing.T) {
	t.Setenv("TELEGRAM_CHAT_IDS", "-1,-2")
	t.Setenv("TELEGRAM_CHAT_ID", "-3")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"-1", "-2"}, cfg.Notify.TelegramChatIDs)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid standalone", func(*Config) {}, ""},
		{"discord only", func(c *Config) {
			c.Notify.TelegramToken = ""
			c.Notify.TelegramChatIDs = nil
			c.Notify.DiscordWebhookURL = "https://discord.test/hook"
		}, ""},
		{"no destination", func(c *Config) {
			c.Notify.TelegramToken = ""
			c.Notify.TelegramChatIDs = nil
		}, "notify: configure"},
		{"token without chats", func(c *Config) { c.Notify.TelegramChatIDs = nil }, "telegram_chat_ids must be set"},
		{"bad mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "unknown log_level"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server: port"},
		{"tolerance", func(c *Config) { c.Relay.LevelTolerance = 1.5 }, "level_tolerance"},
		{"retention shorter than cooldown", func(c *Config) {
			c.Relay.DedupRetention.Duration = 10 * time.Second
		}, "dedup_retention"},
		{"full without redis", func(c *Config) {
			c.Mode = ModeFull
			c.Redis.Addr = ""
		}, "redis: url or addr"},
		{"full archive without bucket", func(c *Config) {
			c.Mode = ModeFull
			c.Archive.Enabled = true
			c.S3.Bucket = ""
		}, "s3: bucket"},
		{"signing without skew", func(c *Config) {
			c.Server.SigningSecret = "sign"
			c.Server.SignatureMaxSkew.Duration = 0
		}, "signature_max_skew"},
		{"standalone ignores redis", func(c *Config) { c.Redis.Addr = "" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validStandalone()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validStandalone()
	cfg.Server.WebhookSecret = "hook"
	cfg.Supabase.DSN = "postgres://u:p@h/db"
	cfg.S3.SecretKey = ""

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Equal(t, "***", out.Server.WebhookSecret)
	assert.Equal(t, "***", out.Supabase.DSN)
	assert.Empty(t, out.S3.SecretKey, "empty secrets stay empty")
	assert.Equal(t, "123:abc", cfg.Notify.TelegramToken, "original untouched")

	out.Notify.TelegramChatIDs[0] = "changed"
	assert.Equal(t, "-100", cfg.Notify.TelegramChatIDs[0])
}
