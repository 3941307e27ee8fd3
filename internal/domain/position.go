package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionRecord is the relay's belief about the open position on a symbol.
// It is not reconciled with any exchange.
type PositionRecord struct {
	Symbol     string              `json:"symbol"`
	Side       Side                `json:"side"`
	EntryPrice decimal.NullDecimal `json:"entry_price"`
	TP1        decimal.NullDecimal `json:"tp1"`
	TP2        decimal.NullDecimal `json:"tp2"`
	TP3        decimal.NullDecimal `json:"tp3"`
	StopLoss   decimal.NullDecimal `json:"stop_loss"`
	OpenedAt   time.Time           `json:"opened_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// PositionState is the per-symbol ledger state.
type PositionState string

const (
	StateNoPosition PositionState = "NO_POSITION"
	StateLongOpen   PositionState = "LONG_OPEN"
	StateShortOpen  PositionState = "SHORT_OPEN"
)

// State maps a record (nil meaning none) to its ledger state.
func (p *PositionRecord) State() PositionState {
	if p == nil {
		return StateNoPosition
	}
	if p.Side == SideShort {
		return StateShortOpen
	}
	return StateLongOpen
}
