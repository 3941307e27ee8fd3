package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// ArchiveHandler serves the archive trigger endpoint.
type ArchiveHandler struct {
	logger    *slog.Logger
	triggerCh chan<- struct{} // when non-nil, sending triggers one archive pass
}

// NewArchiveHandler creates an ArchiveHandler with the given logger.
func NewArchiveHandler(logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{logger: logHandler(logger, "archive")}
}

// WithTriggerChannel sets the channel to send on when a trigger is requested.
// The archiver loop must receive from this channel to run one pass.
func (h *ArchiveHandler) WithTriggerChannel(ch chan<- struct{}) *ArchiveHandler {
	h.triggerCh = ch
	return h
}

// TriggerArchive enqueues one archive pass. Responds 503 when no archiver
// is running.
// POST /api/archive/trigger
func (h *ArchiveHandler) TriggerArchive(w http.ResponseWriter, r *http.Request) {
	if h.triggerCh == nil {
		writeError(w, http.StatusServiceUnavailable, "archiver is not enabled")
		return
	}
	h.logger.InfoContext(r.Context(), "archive trigger requested")
	select {
	case h.triggerCh <- struct{}{}:
	default:
		// already triggered and not yet consumed
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"message":      "archive trigger enqueued",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
