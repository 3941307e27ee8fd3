package handler

import (
	"net/http"
	"time"
)

// StatusInfo is the static part of the status document.
type StatusInfo struct {
	Mode             string
	Version          string
	TelegramTokenSet bool
	TelegramChats    int
	DiscordSet       bool
	WebhookSecretSet bool
	Senders          []string
}

// StatusHandler reports which notification settings are present without
// revealing them.
type StatusHandler struct {
	info      StatusInfo
	positions func() int
	started   time.Time
}

// NewStatusHandler creates a StatusHandler. positions returns the number of
// open positions in the ledger.
func NewStatusHandler(info StatusInfo, positions func() int) *StatusHandler {
	return &StatusHandler{info: info, positions: positions, started: time.Now().UTC()}
}

// GetStatus responds with the relay configuration status.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	open := 0
	if h.positions != nil {
		open = h.positions()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":    h.info.Mode,
		"version": h.info.Version,
		"config": map[string]any{
			"telegram_bot_token": h.info.TelegramTokenSet,
			"telegram_chat_ids":  h.info.TelegramChats,
			"discord_webhook":    h.info.DiscordSet,
			"webhook_secret":     h.info.WebhookSecretSet,
			"all_set":            h.info.TelegramTokenSet && h.info.TelegramChats > 0,
		},
		"senders":        h.info.Senders,
		"open_positions": open,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}
