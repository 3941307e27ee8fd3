package config

import "slices"

// RedactedConfig returns a copy of cfg with secrets replaced by "***", for
// logging the active configuration.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Server.APIKey)
	redact(&out.Server.WebhookSecret)
	redact(&out.Server.SigningSecret)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	redact(&out.Redis.Password)
	redact(&out.Redis.URL)

	redact(&out.Supabase.DSN)
	redact(&out.Supabase.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Slices are copied so the redacted value cannot alias the original.
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	out.Notify.TelegramChatIDs = slices.Clone(cfg.Notify.TelegramChatIDs)
	out.Notify.Events = slices.Clone(cfg.Notify.Events)

	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

