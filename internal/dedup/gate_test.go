package dedup

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/signalrelay/internal/domain"
)

var t0 = time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

func entry(price string) domain.SignalEvent {
	return domain.SignalEvent{
		Symbol:     "BTCUSDT",
		Kind:       domain.SignalEntryLong,
		EntryPrice: decimal.NewNullDecimal(decimal.RequireFromString(price)),
	}
}

func TestGate_EntryCooldown(t *testing.T) {
	tests := []struct {
		name string
		gap  time.Duration
		want bool
	}{
		{"10s apart suppressed", 10 * time.Second, true},
		{"59s apart suppressed", 59 * time.Second, true},
		{"61s apart accepted", 61 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(Config{})
			ev := entry("50000")
			assert.False(t, g.ShouldSuppress(ev.Kind, ev.Symbol, ev, t0))
			assert.Equal(t, tt.want, g.ShouldSuppress(ev.Kind, ev.Symbol, ev, t0.Add(tt.gap)))
		})
	}
}

func TestGate_EntryFamilySharesWindow(t *testing.T) {
	g := New(Config{})
	ev := entry("50000")
	assert.False(t, g.ShouldSuppress(domain.SignalEntryLong, "BTCUSDT", ev, t0))
	assert.True(t, g.ShouldSuppress(domain.SignalEntryLongReverse, "BTCUSDT", entry("51000"), t0.Add(5*time.Second)))
	assert.False(t, g.ShouldSuppress(domain.SignalEntryShort, "BTCUSDT", entry("51000"), t0.Add(6*time.Second)))
	assert.False(t, g.ShouldSuppress(domain.SignalEntryLong, "ETHUSDT", entry("2000"), t0.Add(7*time.Second)))
}

func TestGate_ExitCooldownPerKind(t *testing.T) {
	g := New(Config{})
	ev := domain.SignalEvent{Symbol: "ETHUSDT"}
	assert.False(t, g.ShouldSuppress(domain.SignalTP1Hit, "ETHUSDT", ev, t0))
	assert.True(t, g.ShouldSuppress(domain.SignalTP1Hit, "ETHUSDT", ev, t0.Add(20*time.Second)))
	assert.False(t, g.ShouldSuppress(domain.SignalTP2Hit, "ETHUSDT", ev, t0.Add(21*time.Second)))
	assert.False(t, g.ShouldSuppress(domain.SignalTP1Hit, "ETHUSDT", ev, t0.Add(51*time.Second)))
}

func TestGate_FineKeyBlocksExactRepeat(t *testing.T) {
	g := New(Config{})
	ev := entry("50000")
	ev.Timestamp = "2024-01-15T14:30:00.250Z"

	assert.False(t, g.ShouldSuppress(ev.Kind, ev.Symbol, ev, t0))

	again := entry("50000.000000001")
	again.Timestamp = "2024-01-15T14:30:00.900Z"
	assert.True(t, g.ShouldSuppress(again.Kind, again.Symbol, again, t0.Add(time.Second)))
}

func TestGate_TimestampedRepeatFollowsCooldown(t *testing.T) {
	tests := []struct {
		name string
		kind domain.SignalKind
		ts   string
		gap  time.Duration
	}{
		{"entry with minute time", domain.SignalEntryLong, "2024-01-15 14:30", 61 * time.Second},
		{"entry with opaque time", domain.SignalEntryShort, "bar close", 61 * time.Second},
		{"exit with fixed time", domain.SignalTP1Hit, "2024-01-15T14:30:00Z", 31 * time.Second},
		{"stop with epoch time", domain.SignalStopLossHit, "1705329000", 31 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(Config{})
			ev := entry("150")
			ev.Symbol = "SOLUSDT"
			ev.Kind = tt.kind
			ev.Timestamp = tt.ts

			assert.False(t, g.ShouldSuppress(tt.kind, ev.Symbol, ev, t0))
			assert.False(t, g.ShouldSuppress(tt.kind, ev.Symbol, ev, t0.Add(tt.gap)))
		})
	}
}

func TestGate_RetentionPurge(t *testing.T) {
	g := New(Config{})
	ev := entry("50000")
	ev.Timestamp = "1705329000"

	assert.False(t, g.ShouldSuppress(ev.Kind, ev.Symbol, ev, t0))
	assert.Equal(t, 2, g.Len())

	assert.False(t, g.ShouldSuppress(ev.Kind, ev.Symbol, ev, t0.Add(601*time.Second)))
	assert.Equal(t, 2, g.Len())
}

func TestGate_CustomConfig(t *testing.T) {
	g := New(Config{EntryCooldown: 5 * time.Second, ExitCooldown: time.Second, Retention: 10 * time.Second})
	ev := entry("1")
	assert.False(t, g.ShouldSuppress(ev.Kind, ev.Symbol, ev, t0))
	assert.False(t, g.ShouldSuppress(ev.Kind, ev.Symbol, ev, t0.Add(6*time.Second)))
}

func TestSourceSecond(t *testing.T) {
	assert.Equal(t, "1705329000", sourceSecond("", t0.Add(300*time.Millisecond)))
	assert.Equal(t, "1705329000", sourceSecond("1705329000123", t0))
	assert.Equal(t, "1705329000", sourceSecond("2024-01-15 14:30:00", t0))
	assert.Equal(t, "1705329000", sourceSecond("2024-01-15 14:30", t0))
	assert.Equal(t, "bar close", sourceSecond("bar close", t0))
}
