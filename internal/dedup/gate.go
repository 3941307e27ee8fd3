// Package dedup suppresses repeated signal notifications within cooldown
// windows.
package dedup

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/signalrelay/internal/domain"
)

const (
	DefaultEntryCooldown = 60 * time.Second
	DefaultExitCooldown  = 30 * time.Second
	DefaultRetention     = 600 * time.Second
)

// Config holds the gate's windows. Zero values select the defaults.
type Config struct {
	EntryCooldown time.Duration
	ExitCooldown  time.Duration
	Retention     time.Duration
}

// Gate tracks recently seen signals. Expired entries are purged lazily on
// every call. It is safe for concurrent use.
type Gate struct {
	seen map[string]time.Time // key -> last seen
	cfg  Config
	mu   sync.Mutex
}

// New creates a Gate.
func New(cfg Config) *Gate {
	if cfg.EntryCooldown <= 0 {
		cfg.EntryCooldown = DefaultEntryCooldown
	}
	if cfg.ExitCooldown <= 0 {
		cfg.ExitCooldown = DefaultExitCooldown
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Retention < cfg.EntryCooldown || cfg.Retention < cfg.ExitCooldown {
		cfg.Retention = max(cfg.EntryCooldown, cfg.ExitCooldown)
	}
	return &Gate{
		seen: make(map[string]time.Time),
		cfg:  cfg,
	}
}

// ShouldSuppress reports whether a notification for (kind, symbol) repeats
// one seen within its cooldown, or exactly repeats an earlier delivery (same
// price and source second) within that same cooldown. The attempt is
// recorded either way.
func (g *Gate) ShouldSuppress(kind domain.SignalKind, symbol string, ev domain.SignalEvent, now time.Time) bool {
	primary, cooldown := g.primaryKey(kind, symbol)
	fine := fineKey(kind, symbol, ev, now)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.purge(now)

	suppress := false
	if last, ok := g.seen[primary]; ok && now.Sub(last) < cooldown {
		suppress = true
	}
	if last, ok := g.seen[fine]; ok && now.Sub(last) < cooldown {
		suppress = true
	}

	g.seen[primary] = now
	g.seen[fine] = now
	return suppress
}

// Len returns the number of tracked keys.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// purge drops entries older than the retention window. Callers hold mu.
func (g *Gate) purge(now time.Time) {
	for k, ts := range g.seen {
		if now.Sub(ts) >= g.cfg.Retention {
			delete(g.seen, k)
		}
	}
}

// primaryKey groups entries by direction family (plain and reverse share a
// window) and exits by exact kind.
func (g *Gate) primaryKey(kind domain.SignalKind, symbol string) (string, time.Duration) {
	if kind.IsEntry() {
		return "entry:" + string(kind.Side()) + ":" + symbol, g.cfg.EntryCooldown
	}
	return "exit:" + string(kind) + ":" + symbol, g.cfg.ExitCooldown
}

func fineKey(kind domain.SignalKind, symbol string, ev domain.SignalEvent, now time.Time) string {
	price := "-"
	switch {
	case ev.EntryPrice.Valid:
		price = ev.EntryPrice.Decimal.Round(8).String()
	case ev.ObservedPrice.Valid:
		price = ev.ObservedPrice.Decimal.Round(8).String()
	}
	return strings.Join([]string{"fine", string(kind), symbol, price, sourceSecond(ev.Timestamp, now)}, ":")
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// sourceSecond reduces the source timestamp to second granularity. Missing
// timestamps use now; unparsable ones are used verbatim.
func sourceSecond(ts string, now time.Time) string {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return strconv.FormatInt(now.Unix(), 10)
	}
	if n, err := strconv.ParseInt(ts, 10, 64); err == nil {
		if n > 1e12 {
			n /= 1000
		}
		return strconv.FormatInt(n, 10)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return strconv.FormatInt(t.Unix(), 10)
		}
	}
	return ts
}
