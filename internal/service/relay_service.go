package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alanyoungcy/signalrelay/internal/domain"
	"github.com/alanyoungcy/signalrelay/internal/notify"
	"github.com/alanyoungcy/signalrelay/internal/pipeline"
)

// ErrDeliveryFailed wraps notifier failures for accepted signals.
var ErrDeliveryFailed = errors.New("delivery failed")

const (
	announceLockKey = "startup-announcement"
	announceLockTTL = 2 * time.Minute
)

// RelayService runs accepted alerts through the pipeline, delivers the
// rendered message, and fans the event out to the bus. The bus, audit store
// and history store are optional.
type RelayService struct {
	pipeline *pipeline.Pipeline
	notifier *notify.Notifier
	bus      domain.SignalBus
	audit    domain.AuditStore
	history  domain.SignalStore
	logger   *slog.Logger
}

// NewRelayService creates a RelayService. bus, audit and history may be nil.
func NewRelayService(
	p *pipeline.Pipeline,
	notifier *notify.Notifier,
	bus domain.SignalBus,
	audit domain.AuditStore,
	history domain.SignalStore,
	logger *slog.Logger,
) *RelayService {
	return &RelayService{
		pipeline: p,
		notifier: notifier,
		bus:      bus,
		audit:    audit,
		history:  history,
		logger:   logger.With(slog.String("component", "relay_service")),
	}
}

// Relay processes one alert. chatID, when set, overrides the default chat
// destinations. Pipeline rejections are returned unchanged (wrapping the
// domain sentinels); delivery problems wrap ErrDeliveryFailed.
func (s *RelayService) Relay(ctx context.Context, raw domain.RawPayload, chatID string) (domain.SignalEvent, error) {
	ev, err := s.pipeline.Process(ctx, raw)
	if err != nil {
		s.recordRejection(ctx, raw, ev, err)
		return ev, err
	}

	title, body := notify.Render(ev)
	if chatID != "" {
		err = s.notifier.NotifyTo(ctx, chatID, string(ev.Kind), title, body)
	} else {
		err = s.notifier.Notify(ctx, string(ev.Kind), title, body)
	}

	s.publish(ctx, ev)

	if err != nil {
		return ev, fmt.Errorf("relay_service: %s %s: %w: %v", ev.Kind, ev.Symbol, ErrDeliveryFailed, err)
	}
	return ev, nil
}

// Positions returns the ledger snapshot.
func (s *RelayService) Positions() []domain.PositionRecord {
	return s.pipeline.Positions()
}

// History returns recently relayed signals. It returns domain.ErrNotFound
// when no history store is configured.
func (s *RelayService) History(ctx context.Context, opts domain.ListOpts) ([]domain.SignalEvent, error) {
	if s.history == nil {
		return nil, domain.ErrNotFound
	}
	events, err := s.history.ListRecent(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("relay_service: list history: %w", err)
	}
	return events, nil
}

// Announce sends the startup message once. When a lock manager is given, only
// the replica that wins the lock announces.
func (s *RelayService) Announce(ctx context.Context, locks domain.LockManager, version string) error {
	if locks != nil {
		if _, err := locks.Acquire(ctx, announceLockKey, announceLockTTL); err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				s.logger.InfoContext(ctx, "startup announcement already sent by another replica")
				return nil
			}
			return fmt.Errorf("relay_service: announce lock: %w", err)
		}
		// The lock is left to expire so replicas starting within the TTL stay quiet.
	}

	body := fmt.Sprintf("Relay %s is online and listening for alerts.\nSenders: %v", version, s.notifier.Senders())
	if err := s.notifier.NotifyAll(ctx, "✅ signalrelay started", body); err != nil {
		return fmt.Errorf("relay_service: announce: %w", err)
	}
	return nil
}

func (s *RelayService) publish(ctx context.Context, ev domain.SignalEvent) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.WarnContext(ctx, "marshal event failed", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelSignals, payload); err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("id", ev.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, domain.StreamSignals, payload); err != nil {
		s.logger.WarnContext(ctx, "stream append failed",
			slog.String("id", ev.ID),
			slog.String("error", err.Error()),
		)
	}
}

// maxAuditBody bounds how much of a rejected body is kept in the audit log.
const maxAuditBody = 2048

// auditSnippet cuts body to at most maxAuditBody bytes on a rune boundary.
// Invalid UTF-8 is replaced so the detail stays storable as JSON.
func auditSnippet(body []byte) string {
	if len(body) > maxAuditBody {
		n := maxAuditBody
		for n > 0 && !utf8.RuneStart(body[n]) {
			n--
		}
		body = body[:n]
	}
	return strings.ToValidUTF8(string(body), "\uFFFD")
}

func (s *RelayService) recordRejection(ctx context.Context, raw domain.RawPayload, ev domain.SignalEvent, cause error) {
	if s.audit == nil {
		return
	}
	event := "signal_rejected"
	detail := map[string]any{"reason": cause.Error()}
	if errors.Is(cause, domain.ErrDuplicateSuppressed) {
		event = "signal_suppressed"
		detail["symbol"] = ev.Symbol
		detail["kind"] = string(ev.Kind)
	} else {
		detail["body"] = auditSnippet(raw.Body)
		detail["content_type"] = raw.ContentType
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}
}
