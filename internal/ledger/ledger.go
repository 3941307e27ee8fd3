// Package ledger keeps the relay's per-symbol memory of open positions and
// uses it to re-classify reversals and implicit take-profit / stop-loss hits.
package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalrelay/internal/domain"
)

// DefaultTolerance is the fraction of the reference price within which an
// observed price counts as touching a stored level.
var DefaultTolerance = decimal.RequireFromString("0.005")

// Observation is the outcome of applying one event to the ledger.
type Observation struct {
	Kind         domain.SignalKind
	Reclassified bool
	Previous     *domain.PositionRecord
	Current      *domain.PositionRecord
}

// Ledger holds at most one PositionRecord per symbol. It is safe for
// concurrent use; transitions for one symbol apply in lock order.
type Ledger struct {
	positions map[string]*domain.PositionRecord
	tolerance decimal.Decimal
	mu        sync.Mutex
}

// New creates an empty ledger. A non-positive tolerance selects
// DefaultTolerance.
func New(tolerance decimal.Decimal) *Ledger {
	if !tolerance.IsPositive() {
		tolerance = DefaultTolerance
	}
	return &Ledger{
		positions: make(map[string]*domain.PositionRecord),
		tolerance: tolerance,
	}
}

// Observe applies ev to the symbol's state machine and returns the possibly
// re-classified kind together with copies of the record before and after.
func (l *Ledger) Observe(ev domain.SignalEvent) Observation {
	now := ev.ReceivedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.positions[ev.Symbol]
	obs := Observation{Kind: ev.Kind, Previous: clone(prev)}

	if prev != nil && ev.ObservedPrice.Valid &&
		(ev.Kind == domain.SignalEntryLong || ev.Kind == domain.SignalEntryShort) {
		if hit, ok := l.touchedLevel(prev, ev.ObservedPrice.Decimal); ok {
			obs.Kind = hit
			obs.Reclassified = true
		}
	}

	switch k := obs.Kind; {
	case k.IsEntry():
		side := k.Side()
		switch {
		case prev == nil:
			l.positions[ev.Symbol] = newRecord(ev, side, now)
		case prev.Side == side:
			obs.Kind = domain.EntryKind(side, false)
			refresh(prev, ev, now)
		default:
			obs.Kind = domain.EntryKind(side, true)
			l.positions[ev.Symbol] = newRecord(ev, side, now)
		}
		obs.Reclassified = obs.Reclassified || obs.Kind != ev.Kind
	case k.ClosesPosition():
		delete(l.positions, ev.Symbol)
	}

	obs.Current = clone(l.positions[ev.Symbol])
	return obs
}

// touchedLevel returns the kind for the stored level closest to price, if
// any lies within tolerance. Levels are tested TP3, TP2, TP1, SL; on equal
// distance the earlier one wins.
func (l *Ledger) touchedLevel(rec *domain.PositionRecord, price decimal.Decimal) (domain.SignalKind, bool) {
	ref := price
	if rec.EntryPrice.Valid {
		ref = rec.EntryPrice.Decimal
	}
	tol := ref.Mul(l.tolerance).Abs()

	candidates := []struct {
		kind  domain.SignalKind
		level decimal.NullDecimal
	}{
		{domain.SignalTP3Hit, rec.TP3},
		{domain.SignalTP2Hit, rec.TP2},
		{domain.SignalTP1Hit, rec.TP1},
		{domain.SignalStopLossHit, rec.StopLoss},
	}

	var (
		best     domain.SignalKind
		bestDist decimal.Decimal
		found    bool
	)
	for _, c := range candidates {
		if !c.level.Valid {
			continue
		}
		dist := price.Sub(c.level.Decimal).Abs()
		if dist.GreaterThan(tol) {
			continue
		}
		if !found || dist.LessThan(bestDist) {
			best, bestDist, found = c.kind, dist, true
		}
	}
	return best, found
}

// Get returns a copy of the symbol's open position.
func (l *Ledger) Get(symbol string) (domain.PositionRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.positions[symbol]
	if !ok {
		return domain.PositionRecord{}, false
	}
	return *rec, true
}

// Snapshot returns copies of all open positions sorted by symbol.
func (l *Ledger) Snapshot() []domain.PositionRecord {
	l.mu.Lock()
	out := make([]domain.PositionRecord, 0, len(l.positions))
	for _, rec := range l.positions {
		out = append(out, *rec)
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Len returns the number of open positions.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

func newRecord(ev domain.SignalEvent, side domain.Side, now time.Time) *domain.PositionRecord {
	return &domain.PositionRecord{
		Symbol:     ev.Symbol,
		Side:       side,
		EntryPrice: ev.EntryPrice,
		TP1:        ev.TP1,
		TP2:        ev.TP2,
		TP3:        ev.TP3,
		StopLoss:   ev.StopLoss,
		OpenedAt:   now,
		UpdatedAt:  now,
	}
}

// refresh updates a same-side record in place. OpenedAt is kept; levels the
// new event carries replace the stored ones.
func refresh(rec *domain.PositionRecord, ev domain.SignalEvent, now time.Time) {
	overwrite := func(dst *decimal.NullDecimal, src decimal.NullDecimal) {
		if src.Valid {
			*dst = src
		}
	}
	overwrite(&rec.EntryPrice, ev.EntryPrice)
	overwrite(&rec.TP1, ev.TP1)
	overwrite(&rec.TP2, ev.TP2)
	overwrite(&rec.TP3, ev.TP3)
	overwrite(&rec.StopLoss, ev.StopLoss)
	rec.UpdatedAt = now
}

func clone(rec *domain.PositionRecord) *domain.PositionRecord {
	if rec == nil {
		return nil
	}
	c := *rec
	return &c
}
