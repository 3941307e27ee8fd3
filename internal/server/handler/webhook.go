package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/alanyoungcy/signalrelay/internal/domain"
	"github.com/alanyoungcy/signalrelay/internal/service"
)

// DefaultMaxBody bounds webhook request bodies.
const DefaultMaxBody int64 = 64 << 10

// Relayer is what the webhook handler needs from the relay service.
type Relayer interface {
	Relay(ctx context.Context, raw domain.RawPayload, chatID string) (domain.SignalEvent, error)
}

// chatIDPattern accepts numeric chat ids (negative for groups and channels)
// and public @channel usernames.
var chatIDPattern = regexp.MustCompile(`^(-?\d+|@[A-Za-z][A-Za-z0-9_]{4,})$`)

// WebhookHandler receives alert webhooks.
type WebhookHandler struct {
	relay   Relayer
	maxBody int64
	logger  *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler. A non-positive maxBody selects
// DefaultMaxBody.
func NewWebhookHandler(relay Relayer, maxBody int64, logger *slog.Logger) *WebhookHandler {
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	return &WebhookHandler{
		relay:   relay,
		maxBody: maxBody,
		logger:  logHandler(logger, "webhook"),
	}
}

// Receive relays an alert to the default chats.
// POST /webhook
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "")
}

// ReceivePersonal relays an alert to the chat named in the path.
// POST /personal/{chat_id}/webhook
func (h *WebhookHandler) ReceivePersonal(w http.ResponseWriter, r *http.Request) {
	chatID := pathParam(r, "chat_id")
	if !chatIDPattern.MatchString(chatID) {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	h.handle(w, r, chatID)
}

// Info reports that the endpoint is alive.
// GET /webhook, GET /personal/{chat_id}/webhook
func (h *WebhookHandler) Info(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "active",
		"message":   "webhook endpoint is active, send alerts with POST",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if id := pathParam(r, "chat_id"); id != "" {
		resp["chat_id"] = id
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request, chatID string) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	raw := domain.RawPayload{Body: body, ContentType: r.Header.Get("Content-Type")}
	ev, err := h.relay.Relay(r.Context(), raw, chatID)

	switch {
	case err == nil:
		target := chatID
		if target == "" {
			target = "default"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "success",
			"id":      ev.ID,
			"signal":  ev.Kind,
			"symbol":  ev.Symbol,
			"chat_id": target,
		})

	case errors.Is(err, domain.ErrDuplicateSuppressed):
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ignored",
			"reason": "duplicate",
			"signal": ev.Kind,
			"symbol": ev.Symbol,
		})

	case errors.Is(err, domain.ErrPayloadUnparsable):
		h.logger.WarnContext(r.Context(), "unparsable payload",
			slog.Int("bytes", len(body)),
			slog.String("content_type", raw.ContentType),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "unparsable payload",
			"reason": err.Error(),
		})

	case errors.Is(err, domain.ErrSignalUnresolved):
		h.logger.WarnContext(r.Context(), "unresolved signal", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "unresolved signal",
			"reason": err.Error(),
		})

	case errors.Is(err, service.ErrDeliveryFailed):
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  "delivery failed",
			"signal": ev.Kind,
			"symbol": ev.Symbol,
		})

	default:
		h.logger.ErrorContext(r.Context(), "relay failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
