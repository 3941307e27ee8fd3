package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/signalrelay/internal/dedup"
	"github.com/alanyoungcy/signalrelay/internal/domain"
	"github.com/alanyoungcy/signalrelay/internal/extract"
	"github.com/alanyoungcy/signalrelay/internal/ledger"
	"github.com/alanyoungcy/signalrelay/internal/pipeline"
	"github.com/alanyoungcy/signalrelay/internal/server"
	"github.com/alanyoungcy/signalrelay/internal/server/handler"
	"github.com/alanyoungcy/signalrelay/internal/server/middleware"
	"github.com/alanyoungcy/signalrelay/internal/server/ws"
	"github.com/alanyoungcy/signalrelay/internal/service"
)

// StandaloneMode runs the relay with in-process state only: the webhook
// server, the ledger and the dedup gate. Nothing survives a restart.
func (a *App) StandaloneMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting standalone mode")

	g, ctx := errgroup.WithContext(ctx)

	relay := a.buildRelay(deps)
	limiter := middleware.NewLocalLimiter(10 * time.Minute)

	a.startHTTPServer(ctx, g, deps, relay, limiter, nil, nil)
	a.announce(ctx, g, relay, nil)

	return g.Wait()
}

// FullMode adds the shared backends: relayed signals are published on the
// Redis bus, recorded into Postgres, streamed to WebSocket clients and,
// when enabled, archived to object storage.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.Bool("archive", deps.Archiver != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	relay := a.buildRelay(deps)

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		StartedAt:      time.Now().UTC(),
		Positions:      func() int { return len(relay.Positions()) },
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	recorder := pipeline.NewRecorder(deps.SignalBus, deps.SignalStore, a.logger)

	var (
		archiver  *pipeline.Archiver
		triggerCh chan struct{}
	)
	if deps.Archiver != nil {
		triggerCh = make(chan struct{}, 1)
		archiver = pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger).
			WithTrigger(triggerCh)
	}

	orch := pipeline.NewOrchestrator(
		recorder,
		archiver,
		a.cfg.Archive.RecordInterval.Duration,
		a.cfg.Archive.Cron,
		a.logger,
	)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	a.startHTTPServer(ctx, g, deps, relay, deps.RateLimiter, hub, triggerCh)
	a.announce(ctx, g, relay, deps.LockManager)

	return g.Wait()
}

// buildRelay assembles the signal pipeline and the service that delivers its
// output.
func (a *App) buildRelay(deps *Dependencies) *service.RelayService {
	rc := a.cfg.Relay

	extractor := extract.New(decimal.NewFromFloat(rc.MaxPlausiblePrice), a.logger)
	gate := dedup.New(dedup.Config{
		EntryCooldown: rc.EntryCooldown.Duration,
		ExitCooldown:  rc.ExitCooldown.Duration,
		Retention:     rc.DedupRetention.Duration,
	})
	book := ledger.New(decimal.NewFromFloat(rc.LevelTolerance))

	p := pipeline.New(extractor, gate, book, a.logger)

	a.logger.Info("relay pipeline ready",
		slog.Any("senders", deps.Notifier.Senders()),
		slog.Duration("entry_cooldown", rc.EntryCooldown.Duration),
		slog.Duration("exit_cooldown", rc.ExitCooldown.Duration),
		slog.Float64("level_tolerance", rc.LevelTolerance),
	)

	return service.NewRelayService(p, deps.Notifier, deps.SignalBus, deps.AuditStore, deps.SignalStore, a.logger)
}

// startHTTPServer builds the handlers and runs the server until ctx is done.
// hub and archiveTrigger may be nil.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	relay *service.RelayService,
	limiter domain.RateLimiter,
	hub *ws.Hub,
	archiveTrigger chan<- struct{},
) {
	sc := a.cfg.Server
	nc := a.cfg.Notify

	checks := make(map[string]handler.HealthCheckFunc, len(deps.HealthChecks))
	for name, fn := range deps.HealthChecks {
		checks[name] = fn
	}

	archiveH := handler.NewArchiveHandler(a.logger)
	if archiveTrigger != nil {
		archiveH = archiveH.WithTriggerChannel(archiveTrigger)
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(checks, a.logger),
		Status: handler.NewStatusHandler(handler.StatusInfo{
			Mode:             a.cfg.Mode,
			Version:          a.version,
			TelegramTokenSet: nc.TelegramToken != "",
			TelegramChats:    len(nc.TelegramChatIDs),
			DiscordSet:       nc.DiscordWebhookURL != "",
			WebhookSecretSet: sc.WebhookSecret != "",
			Senders:          deps.Notifier.Senders(),
		}, func() int { return len(relay.Positions()) }),
		Webhook:   handler.NewWebhookHandler(relay, sc.MaxBodyBytes, a.logger),
		Positions: handler.NewPositionHandler(relay),
		Signals:   handler.NewSignalHandler(relay, a.logger),
		Archive:   archiveH,
	}

	srv := server.NewServer(server.Config{
		Port:              sc.Port,
		CORSOrigins:       sc.CORSOrigins,
		APIKey:            sc.APIKey,
		WebhookSecret:     sc.WebhookSecret,
		SigningSecret:     sc.SigningSecret,
		SignatureMaxSkew:  sc.SignatureMaxSkew.Duration,
		MaxBodyBytes:      sc.MaxBodyBytes,
		WebhookRateLimit:  sc.RateLimit,
		WebhookRateWindow: sc.RateWindow.Duration,
		ReadTimeout:       sc.ReadTimeout.Duration,
		WriteTimeout:      sc.WriteTimeout.Duration,
	}, handlers, limiter, hub, a.logger)

	if sc.WebhookSecret == "" {
		a.logger.WarnContext(ctx, "webhook secret not set, anyone who knows the URL can post alerts")
	}

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", sc.Port),
			slog.String("webhook", "/webhook"),
			slog.String("personal_webhook", "/personal/{chat_id}/webhook"),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout.Duration)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// announce sends the startup message in the background. A failed
// announcement is logged and never stops the relay.
func (a *App) announce(ctx context.Context, g *errgroup.Group, relay *service.RelayService, locks domain.LockManager) {
	if !a.cfg.Notify.AnnounceStartup {
		return
	}
	g.Go(func() error {
		if err := relay.Announce(ctx, locks, a.version); err != nil && ctx.Err() == nil {
			a.logger.WarnContext(ctx, "startup announcement failed", slog.String("error", err.Error()))
		}
		return nil
	})
}
