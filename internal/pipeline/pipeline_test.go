package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalrelay/internal/dedup"
	"github.com/alanyoungcy/signalrelay/internal/domain"
	"github.com/alanyoungcy/signalrelay/internal/extract"
	"github.com/alanyoungcy/signalrelay/internal/ledger"
)

type harness struct {
	p      *Pipeline
	gate   *dedup.Gate
	ledger *ledger.Ledger
	now    time.Time
}

func newHarness() *harness {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		gate:   dedup.New(dedup.Config{}),
		ledger: ledger.New(decimal.Zero),
		now:    time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC),
	}
	h.p = New(extract.New(decimal.Zero, logger), h.gate, h.ledger, logger,
		WithClock(func() time.Time { return h.now }))
	return h
}

func (h *harness) send(body string) (domain.SignalEvent, error) {
	return h.p.Process(context.Background(), domain.RawPayload{Body: []byte(body)})
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestProcess_PipeFillsObjectGaps(t *testing.T) {
	h := newHarness()
	ev, err := h.send(`SIGNAL_CODE:{{plot("code")}}|SYMBOL:BTCUSDT|PRICE:50000|TF:15 {"signal":"BUY","symbol":"BTCUSDT","tp1":51000,"stop_loss":49000}`)
	require.NoError(t, err)

	assert.Equal(t, domain.SignalEntryLong, ev.Kind)
	assert.Equal(t, dec("50000"), ev.EntryPrice)
	assert.Equal(t, dec("51000"), ev.TP1)
	assert.Equal(t, "15", ev.Timeframe)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, h.now, ev.ReceivedAt)
}

func TestProcess_ReversalDetection(t *testing.T) {
	h := newHarness()
	_, err := h.send(`{"signal":"BUY","symbol":"BTCUSDT","entry_price":50000}`)
	require.NoError(t, err)

	h.advance(70 * time.Second)
	ev, err := h.send(`{"signal":"SELL","symbol":"BTCUSDT","entry_price":50500}`)
	require.NoError(t, err)
	assert.Equal(t, domain.SignalEntryShortReverse, ev.Kind)
	assert.Equal(t, domain.SignalEntryShort, ev.SourceKind)

	rec, ok := h.ledger.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, domain.SideShort, rec.Side)

	h.advance(70 * time.Second)
	ev, err = h.send(`{"signal":"SELL","symbol":"BTCUSDT","entry_price":50400}`)
	require.NoError(t, err)
	assert.Equal(t, domain.SignalEntryShort, ev.Kind)
}

func TestProcess_ImplicitCloseInference(t *testing.T) {
	h := newHarness()
	_, err := h.send(`{"signal":"BUY","symbol":"ETHUSDT","entry_price":2000,"tp1":2050,"stop_loss":1950}`)
	require.NoError(t, err)

	h.advance(70 * time.Second)
	ev, err := h.send(`{"signal":"BUY","symbol":"ETHUSDT","observed_price":2049}`)
	require.NoError(t, err)
	assert.Equal(t, domain.SignalTP1Hit, ev.Kind)
	assert.Equal(t, dec("2000"), ev.EntryPrice)
	assert.Equal(t, dec("2050"), ev.TP1)
	_, open := h.ledger.Get("ETHUSDT")
	assert.True(t, open)

	h.advance(70 * time.Second)
	ev, err = h.send(`{"signal":"BUY","symbol":"ETHUSDT","observed_price":1951}`)
	require.NoError(t, err)
	assert.Equal(t, domain.SignalStopLossHit, ev.Kind)
	_, open = h.ledger.Get("ETHUSDT")
	assert.False(t, open)
}

func TestProcess_Deduplication(t *testing.T) {
	body := `{"signal":"BUY","symbol":"SOLUSDT","entry_price":150}`

	h := newHarness()
	_, err := h.send(body)
	require.NoError(t, err)
	h.advance(10 * time.Second)
	ev, err := h.send(body)
	assert.ErrorIs(t, err, domain.ErrDuplicateSuppressed)
	assert.Equal(t, "SOLUSDT", ev.Symbol)

	h = newHarness()
	_, err = h.send(body)
	require.NoError(t, err)
	h.advance(61 * time.Second)
	_, err = h.send(body)
	assert.NoError(t, err)
}

func TestProcess_TimestampedRepeatAfterCooldown(t *testing.T) {
	h := newHarness()
	entryBody := `{"signal":"BUY","symbol":"SOLUSDT","entry_price":150,"time":"2024-01-15 14:30"}`
	_, err := h.send(entryBody)
	require.NoError(t, err)
	h.advance(61 * time.Second)
	_, err = h.send(entryBody)
	assert.NoError(t, err)

	exitBody := `{"signal":"TP1","symbol":"SOLUSDT","price":155,"time":"2024-01-15T14:32:00Z"}`
	_, err = h.send(exitBody)
	require.NoError(t, err)
	h.advance(time.Second)
	_, err = h.send(exitBody)
	assert.ErrorIs(t, err, domain.ErrDuplicateSuppressed)
	h.advance(31 * time.Second)
	_, err = h.send(exitBody)
	assert.NoError(t, err)
}

func TestProcess_ImplausiblePrice(t *testing.T) {
	h := newHarness()
	ev, err := h.send("order buy @123456789 BTCUSDT")
	require.NoError(t, err)

	assert.Equal(t, domain.SignalEntryLong, ev.Kind)
	assert.False(t, ev.EntryPrice.Valid)
	assert.False(t, ev.HasLevels())
}

func TestProcess_ReplayLeavesLedgerUnchanged(t *testing.T) {
	h := newHarness()
	body := `{"signal":"SELL","symbol":"XRPUSDT","entry_price":0.62,"tp1":0.6,"stop_loss":0.64,"time":"2024-01-15T14:30:00Z"}`
	_, err := h.send(body)
	require.NoError(t, err)

	before, err := json.Marshal(h.ledger.Snapshot())
	require.NoError(t, err)

	h.advance(5 * time.Second)
	_, err = h.send(body)
	require.ErrorIs(t, err, domain.ErrDuplicateSuppressed)

	after, err := json.Marshal(h.ledger.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestProcess_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"garbage", "hello world", domain.ErrPayloadUnparsable},
		{"price without symbol", `{"signal":"BUY","price":100}`, domain.ErrPayloadUnparsable},
		{"no directional evidence", `{"symbol":"BTCUSDT","entry_price":100}`, domain.ErrSignalUnresolved},
		{"unrecognised signal", `{"signal":"moon","symbol":"BTCUSDT","entry_price":100,"tp1":120}`, domain.ErrSignalUnresolved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			_, err := h.send(tt.body)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, h.ledger.Len())
			assert.Equal(t, 0, h.gate.Len())
		})
	}
}

func TestProcess_ExitEnrichedFromLedger(t *testing.T) {
	h := newHarness()
	_, err := h.send(`{"signal":"BUY","symbol":"ETHUSDT","entry_price":2000,"tp1":2050,"tp2":2100,"stop_loss":1950}`)
	require.NoError(t, err)

	h.advance(time.Second)
	ev, err := h.send(`{"signal":"TP2","symbol":"ETHUSDT","price":2101}`)
	require.NoError(t, err)

	assert.Equal(t, domain.SignalTP2Hit, ev.Kind)
	assert.Equal(t, dec("2000"), ev.EntryPrice)
	assert.Equal(t, dec("2100"), ev.TP2)
	assert.Equal(t, dec("2101"), ev.ObservedPrice)
	assert.Len(t, h.p.Positions(), 1)
}

func TestProcess_SignalCodeBesidePlaceholder(t *testing.T) {
	h := newHarness()
	ev, err := h.send(`{"signal":"{{strategy.order.action}}","signal_code":2,"symbol":"BTCUSDT","price":50000}`)
	require.NoError(t, err)

	assert.Equal(t, domain.SignalEntryShort, ev.Kind)
	assert.False(t, ev.Inferred)
	assert.Equal(t, dec("50000"), ev.EntryPrice)
}

func TestProcess_InferredEntry(t *testing.T) {
	h := newHarness()
	ev, err := h.send(`{"signal":"{{strategy.order.action}}","symbol":"ADAUSDT","entry_price":0.5,"tp1":0.45}`)
	require.NoError(t, err)

	assert.Equal(t, domain.SignalEntryShort, ev.Kind)
	assert.True(t, ev.Inferred)
}
