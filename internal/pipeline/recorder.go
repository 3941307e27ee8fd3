package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/signalrelay/internal/domain"
)

const recordBatch = 100

// Recorder drains the durable signal stream into the history store. Inserts
// are idempotent on the event id, so the stream is read from the start on
// every boot.
type Recorder struct {
	bus    domain.SignalBus
	store  domain.SignalStore
	lastID string
	logger *slog.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(bus domain.SignalBus, store domain.SignalStore, logger *slog.Logger) *Recorder {
	return &Recorder{
		bus:    bus,
		store:  store,
		lastID: "0-0",
		logger: logger.With(slog.String("component", "recorder")),
	}
}

// Drain reads every pending stream entry and stores it. It returns the
// number of events stored.
func (r *Recorder) Drain(ctx context.Context) (int, error) {
	stored := 0
	for {
		msgs, err := r.bus.StreamRead(ctx, domain.StreamSignals, r.lastID, recordBatch)
		if err != nil {
			return stored, fmt.Errorf("recorder: read: %w", err)
		}
		if len(msgs) == 0 {
			return stored, nil
		}
		for _, m := range msgs {
			var ev domain.SignalEvent
			if err := json.Unmarshal(m.Payload, &ev); err != nil {
				r.logger.Warn("skipping malformed stream entry",
					slog.String("stream_id", m.ID),
					slog.String("error", err.Error()),
				)
				r.lastID = m.ID
				continue
			}
			if err := r.store.Insert(ctx, ev); err != nil {
				return stored, fmt.Errorf("recorder: insert %s: %w", ev.ID, err)
			}
			r.lastID = m.ID
			stored++
		}
		if len(msgs) < recordBatch {
			return stored, nil
		}
	}
}

// RunLoop drains the stream on every tick until ctx is cancelled. Failed
// drains are logged and retried on the next tick.
func (r *Recorder) RunLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := r.Drain(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			r.logger.Error("drain failed", slog.String("error", err.Error()))
		case n > 0:
			r.logger.Info("signals recorded", slog.Int("count", n), slog.String("last_id", r.lastID))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
