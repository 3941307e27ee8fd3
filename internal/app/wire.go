package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/signalrelay/internal/blob/s3"
	"github.com/alanyoungcy/signalrelay/internal/cache/redis"
	"github.com/alanyoungcy/signalrelay/internal/config"
	"github.com/alanyoungcy/signalrelay/internal/domain"
	"github.com/alanyoungcy/signalrelay/internal/notify"
	"github.com/alanyoungcy/signalrelay/internal/store/postgres"
)

// Dependencies bundles the backends the modes need. Everything except
// Notifier is nil in standalone mode; Archiver is also nil unless archiving
// is enabled.
type Dependencies struct {
	// Stores
	SignalStore domain.SignalStore
	AuditStore  domain.AuditStore

	// Caches
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	Archiver domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	// HealthChecks probes each wired backend by name.
	HealthChecks map[string]func(ctx context.Context) error
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		HealthChecks: make(map[string]func(ctx context.Context) error),
		Notifier:     notify.NewNotifier(buildSenders(cfg.Notify), cfg.Notify.Events, logger),
	}

	if !cfg.IsFull() {
		return deps, cleanup, nil
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Supabase.DSN,
		Host:     cfg.Supabase.Host,
		Port:     cfg.Supabase.Port,
		Database: cfg.Supabase.Database,
		User:     cfg.Supabase.User,
		Password: cfg.Supabase.Password,
		SSLMode:  cfg.Supabase.SSLMode,
		MaxConns: cfg.Supabase.PoolMaxConns,
		MinConns: cfg.Supabase.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Supabase.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	signals := postgres.NewSignalStore(pool)
	audit := postgres.NewAuditStore(pool)
	deps.SignalStore = signals
	deps.AuditStore = audit
	deps.HealthChecks["postgres"] = pgClient.Ping

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		URL:        cfg.Redis.URL,
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
		Namespace:  cfg.Redis.Namespace,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.HealthChecks["redis"] = redisClient.Ping

	// --- S3 blob storage (only when archiving) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.Archiver = s3blob.NewSignalArchiver(
			s3blob.NewWriter(s3Client),
			signals,
			s3blob.NewVerifier(s3Client),
			audit,
			cfg.S3.Prefix,
			logger,
		)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	return deps, cleanup, nil
}

// buildSenders returns one sender per configured chat platform.
func buildSenders(cfg config.NotifyConfig) []notify.Sender {
	var senders []notify.Sender
	if cfg.TelegramToken != "" && len(cfg.TelegramChatIDs) > 0 {
		senders = append(senders, notify.NewTelegramSender(notify.TelegramConfig{
			Token:       cfg.TelegramToken,
			ChatIDs:     cfg.TelegramChatIDs,
			MinInterval: cfg.MinSendInterval.Duration,
			BaseURL:     cfg.TelegramBaseURL,
		}))
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL, cfg.DiscordUsername))
	}
	return senders
}
