package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramConfig configures a TelegramSender.
type TelegramConfig struct {
	Token       string
	ChatIDs     []string
	MinInterval time.Duration // minimum gap between two messages
	BaseURL     string        // defaults to the public Bot API
}

// TelegramSender delivers notifications via the Telegram Bot API using HTML
// parse mode. Sends are paced so that at most one message leaves every
// MinInterval.
type TelegramSender struct {
	token   string
	chatIDs []string
	baseURL string
	pacer   *rate.Limiter
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender. It uses an HTTP client with a
// 10-second timeout.
func NewTelegramSender(cfg TelegramConfig) *TelegramSender {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultTelegramAPI
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	return &TelegramSender{
		token:   cfg.Token,
		chatIDs: cfg.ChatIDs,
		baseURL: base,
		pacer:   rate.NewLimiter(limit, 1),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the message to every configured chat.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	if len(t.chatIDs) == 0 {
		return errors.New("telegram: no chat ids configured")
	}
	var errs []error
	for _, id := range t.chatIDs {
		if err := t.SendTo(ctx, id, title, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// telegramResponse is the envelope returned by the Bot API.
type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendTo posts a message to one chat. The title is rendered in bold; both
// parts are HTML-escaped.
func (t *TelegramSender) SendTo(ctx context.Context, chatID, title, message string) error {
	if err := t.pacer.Wait(ctx); err != nil {
		return fmt.Errorf("telegram: pacing: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	text := html.EscapeString(message)
	if title != "" {
		text = fmt.Sprintf("<b>%s</b>\n\n%s", html.EscapeString(title), text)
	}

	body, err := json.Marshal(map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", scrubURL(err, t.token))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", scrubURL(err, t.token))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram: chat %s: unexpected status %d: %s", chatID, resp.StatusCode, string(respBody))
	}

	var tr telegramResponse
	if err := json.Unmarshal(respBody, &tr); err == nil && !tr.OK {
		return fmt.Errorf("telegram: chat %s: api error: %s", chatID, tr.Description)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}

var _ ChatSender = (*TelegramSender)(nil)
