package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/signalrelay/internal/domain"
)

// SignalHistory lists relayed signals.
type SignalHistory interface {
	History(ctx context.Context, opts domain.ListOpts) ([]domain.SignalEvent, error)
}

// SignalHandler serves the relayed-signal history.
type SignalHandler struct {
	history SignalHistory
	logger  *slog.Logger
}

// NewSignalHandler creates a SignalHandler.
func NewSignalHandler(history SignalHistory, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{history: history, logger: logHandler(logger, "signals")}
}

// ListSignals returns recent signals, newest first.
// GET /api/signals?symbol=&limit=&offset=&since=&until=
func (h *SignalHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	events, err := h.history.History(r.Context(), opts)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "signal history is not enabled")
			return
		}
		h.logger.ErrorContext(r.Context(), "list signals failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list signals")
		return
	}
	if events == nil {
		events = []domain.SignalEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"signals": events,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}
