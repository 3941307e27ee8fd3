package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/signalrelay/internal/crypto"
	"github.com/alanyoungcy/signalrelay/internal/domain"
	"github.com/alanyoungcy/signalrelay/internal/server/handler"
)

type nopRelay struct{ calls int }

func (n *nopRelay) Relay(_ context.Context, _ domain.RawPayload, _ string) (domain.SignalEvent, error) {
	n.calls++
	return domain.SignalEvent{Symbol: "BTCUSDT", Kind: domain.SignalEntryLong}, nil
}

type noPositions struct{}

func (noPositions) Positions() []domain.PositionRecord { return nil }

func newTestServer(cfg Config, relay *nopRelay) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handlers := Handlers{
		Health:    handler.NewHealthHandler(nil, logger),
		Status:    handler.NewStatusHandler(handler.StatusInfo{Mode: "standalone"}, nil),
		Webhook:   handler.NewWebhookHandler(relay, 0, logger),
		Positions: handler.NewPositionHandler(noPositions{}),
	}
	return NewServer(cfg, handlers, nil, nil, logger).Handler()
}

func TestRoutes(t *testing.T) {
	relay := &nopRelay{}
	h := newTestServer(Config{APIKey: "key", WebhookSecret: "hook"}, relay)

	tests := []struct {
		name   string
		method string
		target string
		apiKey string
		want   int
	}{
		{"root", http.MethodGet, "/", "", http.StatusOK},
		{"webhook probe", http.MethodGet, "/webhook", "", http.StatusOK},
		{"personal probe", http.MethodGet, "/personal/123/webhook", "", http.StatusOK},
		{"webhook without secret", http.MethodPost, "/webhook", "", http.StatusUnauthorized},
		{"webhook with secret", http.MethodPost, "/webhook?secret=hook", "", http.StatusOK},
		{"personal with secret", http.MethodPost, "/personal/123/webhook?secret=hook", "", http.StatusOK},
		{"api without key", http.MethodGet, "/api/status", "", http.StatusUnauthorized},
		{"api with key", http.MethodGet, "/api/status", "key", http.StatusOK},
		{"positions", http.MethodGet, "/api/positions", "key", http.StatusOK},
		{"signals disabled", http.MethodGet, "/api/signals", "key", http.StatusNotFound},
		{"unknown", http.MethodGet, "/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(`{"signal":"BUY","symbol":"BTCUSDT"}`))
			if tt.apiKey != "" {
				req.Header.Set("X-API-Key", tt.apiKey)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, 2, relay.calls)
}

func TestSignedWebhook(t *testing.T) {
	relay := &nopRelay{}
	h := newTestServer(Config{SigningSecret: "sign", SignatureMaxSkew: time.Minute}, relay)
	body := `{"action":"buy","ticker":"BTCUSDT","price":"100"}`

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, relay.calls)

	now := time.Now().Unix()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(crypto.HeaderTimestamp, strconv.FormatInt(now, 10))
	req.Header.Set(crypto.HeaderSignature, crypto.Sign([]byte("sign"), now, []byte(body)))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, relay.calls)
}
