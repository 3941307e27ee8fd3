package normalize

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalrelay/internal/domain"
)

// evidence is the directional hint carried by an alert's price levels.
type evidence int

const (
	evidenceNone evidence = iota
	evidenceTPAbove
	evidenceTPBelow
	evidenceSLBelow
	evidenceSLAbove
)

func (e evidence) String() string {
	switch e {
	case evidenceTPAbove:
		return "tp_above"
	case evidenceTPBelow:
		return "tp_below"
	case evidenceSLBelow:
		return "sl_below"
	case evidenceSLAbove:
		return "sl_above"
	}
	return "none"
}

// inference is the decision table for alerts without an explicit signal.
// No evidence stays unknown; the alert is not forwarded.
var inference = map[evidence]domain.SignalKind{
	evidenceNone:    domain.SignalUnknown,
	evidenceTPAbove: domain.SignalEntryLong,
	evidenceTPBelow: domain.SignalEntryShort,
	evidenceSLBelow: domain.SignalEntryLong,
	evidenceSLAbove: domain.SignalEntryShort,
}

// classify compares the first present take-profit with the entry, then the
// stop loss. Levels equal to the entry carry no direction.
func classify(entry, tp1, tp2, tp3, sl decimal.NullDecimal) evidence {
	if !entry.Valid {
		return evidenceNone
	}
	for _, tp := range []decimal.NullDecimal{tp1, tp2, tp3} {
		if !tp.Valid {
			continue
		}
		switch tp.Decimal.Cmp(entry.Decimal) {
		case 1:
			return evidenceTPAbove
		case -1:
			return evidenceTPBelow
		}
		break
	}
	if sl.Valid {
		switch sl.Decimal.Cmp(entry.Decimal) {
		case -1:
			return evidenceSLBelow
		case 1:
			return evidenceSLAbove
		}
	}
	return evidenceNone
}
