package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs the background side of the relay: recording relayed
// signals from the bus into history, and archiving old history to cold
// storage. Either part may be nil.
type Orchestrator struct {
	recorder       *Recorder
	archiver       *Archiver
	recordInterval time.Duration
	archiveCron    string
	logger         *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	recorder *Recorder,
	archiver *Archiver,
	recordInterval time.Duration,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		recorder:       recorder,
		archiver:       archiver,
		recordInterval: recordInterval,
		archiveCron:    archiveCron,
		logger:         logger.With(slog.String("component", "orchestrator")),
	}
}

// Run starts the configured loops under an errgroup and blocks until ctx is
// cancelled or a loop fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator starting",
		slog.Bool("recorder", o.recorder != nil),
		slog.Bool("archiver", o.archiver != nil),
		slog.Duration("record_interval", o.recordInterval),
		slog.String("archive_cron", o.archiveCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	if o.recorder != nil {
		g.Go(func() error {
			err := o.recorder.RunLoop(ctx, o.recordInterval)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("recorder: %w", err)
		})
	}

	if o.archiver != nil {
		g.Go(func() error {
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("orchestrator stopped cleanly")
	return nil
}
