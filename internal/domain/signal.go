package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalKind is the canonical classification of an inbound alert.
type SignalKind string

const (
	SignalEntryLong         SignalKind = "ENTRY_LONG"
	SignalEntryShort        SignalKind = "ENTRY_SHORT"
	SignalEntryLongReverse  SignalKind = "ENTRY_LONG_REVERSE"
	SignalEntryShortReverse SignalKind = "ENTRY_SHORT_REVERSE"
	SignalTP1Hit            SignalKind = "TP1_HIT"
	SignalTP2Hit            SignalKind = "TP2_HIT"
	SignalTP3Hit            SignalKind = "TP3_HIT"
	SignalStopLossHit       SignalKind = "STOP_LOSS_HIT"
	SignalPositionClosed    SignalKind = "POSITION_CLOSED"
	SignalUnknown           SignalKind = "UNKNOWN"
)

// IsEntry reports whether the kind opens (or re-opens) a position.
func (k SignalKind) IsEntry() bool {
	switch k {
	case SignalEntryLong, SignalEntryShort, SignalEntryLongReverse, SignalEntryShortReverse:
		return true
	}
	return false
}

// IsReverse reports whether the kind is one of the *_REVERSE entries.
func (k SignalKind) IsReverse() bool {
	return k == SignalEntryLongReverse || k == SignalEntryShortReverse
}

// IsExit reports whether the kind is a take-profit, stop-loss or close event.
func (k SignalKind) IsExit() bool {
	switch k {
	case SignalTP1Hit, SignalTP2Hit, SignalTP3Hit, SignalStopLossHit, SignalPositionClosed:
		return true
	}
	return false
}

// ClosesPosition reports whether the kind removes the open position.
func (k SignalKind) ClosesPosition() bool {
	return k == SignalTP3Hit || k == SignalStopLossHit || k == SignalPositionClosed
}

// Side returns the direction of an entry kind, or SideNone for anything else.
func (k SignalKind) Side() Side {
	switch k {
	case SignalEntryLong, SignalEntryLongReverse:
		return SideLong
	case SignalEntryShort, SignalEntryShortReverse:
		return SideShort
	}
	return SideNone
}

// EntryKind returns the plain or reverse entry kind for a side.
func EntryKind(side Side, reverse bool) SignalKind {
	switch side {
	case SideLong:
		if reverse {
			return SignalEntryLongReverse
		}
		return SignalEntryLong
	case SideShort:
		if reverse {
			return SignalEntryShortReverse
		}
		return SignalEntryShort
	}
	return SignalUnknown
}

// signalCodes is the numeric code table emitted by the upstream indicator.
var signalCodes = map[int]SignalKind{
	1: SignalEntryLong,
	2: SignalEntryShort,
	3: SignalEntryLongReverse,
	4: SignalEntryShortReverse,
	5: SignalTP1Hit,
	6: SignalTP2Hit,
	7: SignalTP3Hit,
	8: SignalStopLossHit,
}

// KindFromCode maps a numeric signal code (1..8) to its kind.
func KindFromCode(code int) (SignalKind, bool) {
	k, ok := signalCodes[code]
	return k, ok
}

// Side is the direction of a tracked position.
type Side string

const (
	SideNone  Side = ""
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Opposite returns the other direction.
func (s Side) Opposite() Side {
	switch s {
	case SideLong:
		return SideShort
	case SideShort:
		return SideLong
	}
	return SideNone
}

// ContentKind is the declared or sniffed shape of a request body.
type ContentKind string

const (
	ContentStructured ContentKind = "structured"
	ContentForm       ContentKind = "form"
	ContentText       ContentKind = "text"
)

// RawPayload is the untouched request body plus its content type. It lives
// only for the duration of one request.
type RawPayload struct {
	Body        []byte
	ContentType string
}

// SignalEvent is the canonical unit produced by the relay pipeline.
type SignalEvent struct {
	ID            string              `json:"id"`
	Symbol        string              `json:"symbol"`
	Kind          SignalKind          `json:"kind"`
	SourceKind    SignalKind          `json:"source_kind"` // kind before ledger re-classification
	Inferred      bool                `json:"inferred"`    // kind derived from price levels, not the payload
	EntryPrice    decimal.NullDecimal `json:"entry_price"`
	TP1           decimal.NullDecimal `json:"tp1"`
	TP2           decimal.NullDecimal `json:"tp2"`
	TP3           decimal.NullDecimal `json:"tp3"`
	StopLoss      decimal.NullDecimal `json:"stop_loss"`
	ObservedPrice decimal.NullDecimal `json:"observed_price"`
	Timestamp     string              `json:"timestamp"`
	Timeframe     string              `json:"timeframe,omitempty"`
	Extractor     string              `json:"extractor"`
	ReceivedAt    time.Time           `json:"received_at"`
}

// HasLevels reports whether any take-profit or stop-loss level is present.
func (e SignalEvent) HasLevels() bool {
	return e.TP1.Valid || e.TP2.Valid || e.TP3.Valid || e.StopLoss.Valid
}
