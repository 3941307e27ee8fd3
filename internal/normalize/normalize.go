// Package normalize maps extracted alert fields onto a canonical signal kind
// and typed price levels.
package normalize

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalrelay/internal/domain"
	"github.com/alanyoungcy/signalrelay/internal/extract"
)

// Result is the normalized view of one alert. Event carries the symbol,
// levels, prices, timestamp and timeframe; Event.Kind equals Kind.
type Result struct {
	Kind     domain.SignalKind
	Inferred bool
	Evidence string // directional evidence used when the kind was inferred
	Event    domain.SignalEvent
}

var synonyms = map[string]domain.SignalKind{
	"BUY":                 domain.SignalEntryLong,
	"LONG":                domain.SignalEntryLong,
	"ENTRY_LONG":          domain.SignalEntryLong,
	"ENTER_LONG":          domain.SignalEntryLong,
	"SELL":                domain.SignalEntryShort,
	"SHORT":               domain.SignalEntryShort,
	"ENTRY_SHORT":         domain.SignalEntryShort,
	"ENTER_SHORT":         domain.SignalEntryShort,
	"BUY_REVERSE":         domain.SignalEntryLongReverse,
	"LONG_REVERSE":        domain.SignalEntryLongReverse,
	"REVERSE_LONG":        domain.SignalEntryLongReverse,
	"ENTRY_LONG_REVERSE":  domain.SignalEntryLongReverse,
	"SELL_REVERSE":        domain.SignalEntryShortReverse,
	"SHORT_REVERSE":       domain.SignalEntryShortReverse,
	"REVERSE_SHORT":       domain.SignalEntryShortReverse,
	"ENTRY_SHORT_REVERSE": domain.SignalEntryShortReverse,
	"TP1":                 domain.SignalTP1Hit,
	"TP1_HIT":             domain.SignalTP1Hit,
	"TP2":                 domain.SignalTP2Hit,
	"TP2_HIT":             domain.SignalTP2Hit,
	"TP3":                 domain.SignalTP3Hit,
	"TP3_HIT":             domain.SignalTP3Hit,
	"SL":                  domain.SignalStopLossHit,
	"SL_HIT":              domain.SignalStopLossHit,
	"STOP_LOSS":           domain.SignalStopLossHit,
	"STOPLOSS":            domain.SignalStopLossHit,
	"STOP_LOSS_HIT":       domain.SignalStopLossHit,
	"CLOSE":               domain.SignalPositionClosed,
	"CLOSE_POSITION":      domain.SignalPositionClosed,
	"POSITION_CLOSED":     domain.SignalPositionClosed,
	"EXIT":                domain.SignalPositionClosed,
	"FLAT":                domain.SignalPositionClosed,
}

// sentinels ask for the kind to be detected from context.
var sentinels = map[string]bool{
	"":            true,
	"NULL":        true,
	"NONE":        true,
	"AUTO":        true,
	"AUTO_DETECT": true,
	"AUTODETECT":  true,
	"DETECT":      true,
	"N/A":         true,
	"UNKNOWN":     true,
}

// signalState classifies the raw signal field.
type signalState int

const (
	signalAbsent signalState = iota
	signalKnown
	signalUnrecognised
)

// Normalize resolves the kind and typed fields. It never fails: an
// unresolvable alert comes back as domain.SignalUnknown.
func Normalize(f extract.Fields) Result {
	price := number(f, "price")
	ev := domain.SignalEvent{
		EntryPrice: number(f, "entry_price"),
		TP1:        number(f, "tp1"),
		TP2:        number(f, "tp2"),
		TP3:        number(f, "tp3"),
		StopLoss:   number(f, "stop_loss"),
		Timestamp:  text(f, "time", "timestamp"),
		Timeframe:  text(f, "timeframe"),
	}
	ev.Symbol, _ = f.Symbol()
	for _, k := range []string{"observed_price", "current_price", "exit_price", "close"} {
		if p := number(f, k); p.Valid {
			ev.ObservedPrice = p
			break
		}
	}

	kind, state := parseSignal(f["signal"])
	inferred := false
	evidenceUsed := ""
	if state == signalAbsent {
		entry := ev.EntryPrice
		if !entry.Valid {
			entry = price
		}
		e := classify(entry, ev.TP1, ev.TP2, ev.TP3, ev.StopLoss)
		kind = inference[e]
		inferred = kind != domain.SignalUnknown
		evidenceUsed = e.String()
	}

	switch {
	case kind.IsEntry():
		if !ev.EntryPrice.Valid {
			ev.EntryPrice = price
		}
	case kind.IsExit():
		if !ev.ObservedPrice.Valid {
			ev.ObservedPrice = price
		}
	}

	ev.Kind = kind
	ev.SourceKind = kind
	ev.Inferred = inferred
	return Result{Kind: kind, Inferred: inferred, Evidence: evidenceUsed, Event: ev}
}

func parseSignal(v any) (domain.SignalKind, signalState) {
	if v == nil || extract.IsPlaceholder(v) {
		return domain.SignalUnknown, signalAbsent
	}

	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	default:
		return domain.SignalUnknown, signalUnrecognised
	}

	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	if sentinels[s] {
		return domain.SignalUnknown, signalAbsent
	}
	if k, ok := synonyms[s]; ok {
		return k, signalKnown
	}
	if d, err := decimal.NewFromString(s); err == nil && isSignalCode(d) {
		if k, ok := domain.KindFromCode(int(d.IntPart())); ok {
			return k, signalKnown
		}
	}
	return domain.SignalUnknown, signalUnrecognised
}

var (
	minSignalCode = decimal.NewFromInt(1)
	maxSignalCode = decimal.NewFromInt(8)
)

// isSignalCode bounds d before it is narrowed to an int.
func isSignalCode(d decimal.Decimal) bool {
	return d.IsInteger() && d.GreaterThanOrEqual(minSignalCode) && d.LessThanOrEqual(maxSignalCode)
}

// Number parses a price-like value. Placeholders, null, sentinels,
// unparsable and non-positive values are absent.
func Number(v any) decimal.NullDecimal {
	var d decimal.Decimal
	var err error
	switch t := v.(type) {
	case nil:
		return decimal.NullDecimal{}
	case json.Number:
		d, err = decimal.NewFromString(t.String())
	case string:
		if extract.IsPlaceholder(t) {
			return decimal.NullDecimal{}
		}
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
		if s == "" {
			return decimal.NullDecimal{}
		}
		d, err = decimal.NewFromString(s)
	case float64:
		d = decimal.NewFromFloat(t)
	case int:
		d = decimal.NewFromInt(int64(t))
	case int64:
		d = decimal.NewFromInt(t)
	case decimal.Decimal:
		d = t
	default:
		return decimal.NullDecimal{}
	}
	if err != nil || !d.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func number(f extract.Fields, key string) decimal.NullDecimal {
	return Number(f[key])
}

func text(f extract.Fields, keys ...string) string {
	for _, k := range keys {
		switch t := f[k].(type) {
		case string:
			s := strings.TrimSpace(t)
			if s != "" && !extract.IsPlaceholder(s) && !sentinels[strings.ToUpper(s)] {
				return s
			}
		case json.Number:
			return t.String()
		}
	}
	return ""
}
