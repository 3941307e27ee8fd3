package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalrelay/internal/dedup"
	"github.com/alanyoungcy/signalrelay/internal/domain"
	"github.com/alanyoungcy/signalrelay/internal/extract"
	"github.com/alanyoungcy/signalrelay/internal/ledger"
	"github.com/alanyoungcy/signalrelay/internal/normalize"
)

// Pipeline turns one raw alert into a canonical SignalEvent: extract,
// normalize, dedup, ledger. Rejected and suppressed alerts never reach the
// ledger.
type Pipeline struct {
	extractor *extract.Extractor
	gate      *dedup.Gate
	ledger    *ledger.Ledger
	now       func() time.Time
	logger    *slog.Logger
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the wall clock used for received-at stamps and
// cooldowns.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline over its stateful collaborators.
func New(extractor *extract.Extractor, gate *dedup.Gate, l *ledger.Ledger, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor: extractor,
		gate:      gate,
		ledger:    l,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "pipeline")),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process runs the alert through the pipeline. Errors wrap
// domain.ErrPayloadUnparsable, domain.ErrSignalUnresolved or
// domain.ErrDuplicateSuppressed; for the latter the event is returned too.
func (p *Pipeline) Process(ctx context.Context, raw domain.RawPayload) (domain.SignalEvent, error) {
	res, err := p.extractor.Extract(raw)
	if err != nil {
		return domain.SignalEvent{}, fmt.Errorf("pipeline: %w", err)
	}
	if _, ok := res.Fields.Symbol(); !ok {
		return domain.SignalEvent{}, fmt.Errorf("pipeline: no symbol in %s payload: %w", res.Strategy, domain.ErrPayloadUnparsable)
	}

	norm := normalize.Normalize(res.Fields)
	if norm.Kind == domain.SignalUnknown {
		return domain.SignalEvent{}, fmt.Errorf("pipeline: %s: evidence %q: %w",
			norm.Event.Symbol, norm.Evidence, domain.ErrSignalUnresolved)
	}

	ev := norm.Event
	ev.ID = uuid.NewString()
	ev.ReceivedAt = p.now()
	ev.Extractor = res.Strategy

	if p.gate.ShouldSuppress(ev.Kind, ev.Symbol, ev, ev.ReceivedAt) {
		p.logger.InfoContext(ctx, "duplicate suppressed",
			slog.String("symbol", ev.Symbol),
			slog.String("kind", string(ev.Kind)),
		)
		return ev, fmt.Errorf("pipeline: %s %s: %w", ev.Kind, ev.Symbol, domain.ErrDuplicateSuppressed)
	}

	obs := p.ledger.Observe(ev)
	ev.Kind = obs.Kind
	if ev.Kind.IsExit() && obs.Previous != nil {
		enrich(&ev, obs.Previous, obs.Reclassified)
	}
	if ev.Timestamp == "" {
		ev.Timestamp = ev.ReceivedAt.Format(time.RFC3339)
	}

	p.logger.InfoContext(ctx, "signal accepted",
		slog.String("id", ev.ID),
		slog.String("symbol", ev.Symbol),
		slog.String("kind", string(ev.Kind)),
		slog.String("source_kind", string(ev.SourceKind)),
		slog.Bool("inferred", ev.Inferred),
		slog.Bool("reclassified", obs.Reclassified),
		slog.String("extractor", ev.Extractor),
		slog.String("state", string(obs.Current.State())),
	)
	return ev, nil
}

// Positions returns the current ledger snapshot.
func (p *Pipeline) Positions() []domain.PositionRecord {
	return p.ledger.Snapshot()
}

// enrich fills an exit event from the remembered position. When the exit was
// inferred from an entry-shaped alert, the alert's own levels describe a new
// entry and are replaced.
func enrich(ev *domain.SignalEvent, prev *domain.PositionRecord, replace bool) {
	set := func(dst *decimal.NullDecimal, src decimal.NullDecimal) {
		if src.Valid && (replace || !dst.Valid) {
			*dst = src
		}
	}
	set(&ev.EntryPrice, prev.EntryPrice)
	set(&ev.TP1, prev.TP1)
	set(&ev.TP2, prev.TP2)
	set(&ev.TP3, prev.TP3)
	set(&ev.StopLoss, prev.StopLoss)
}
