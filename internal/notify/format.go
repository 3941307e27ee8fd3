package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/alanyoungcy/signalrelay/internal/domain"
)

var printer = message.NewPrinter(language.English)

var (
	one   = decimal.NewFromInt(1)
	cent  = decimal.RequireFromString("0.01")
	naStr = "N/A"
)

// FormatPrice renders a price for humans: grouped with 2 decimals at or
// above 1, 4 decimals down to 0.01, and up to 8 significant decimals below.
func FormatPrice(p decimal.NullDecimal) string {
	if !p.Valid {
		return naStr
	}
	d := p.Decimal
	switch {
	case d.GreaterThanOrEqual(one):
		return printer.Sprintf("%.2f", d.Round(2).InexactFloat64())
	case d.GreaterThanOrEqual(cent):
		return d.StringFixed(4)
	default:
		s := strings.TrimRight(d.StringFixed(8), "0")
		return strings.TrimSuffix(s, ".")
	}
}

// FormatTimeframe renders a chart timeframe. Bare minute counts become
// m/h/d; anything else is shown as given.
func FormatTimeframe(tf string) string {
	tf = strings.TrimSpace(tf)
	if tf == "" || strings.EqualFold(tf, naStr) {
		return naStr
	}
	n, err := strconv.Atoi(tf)
	if err != nil || n <= 0 {
		return tf
	}
	switch {
	case n < 60:
		return fmt.Sprintf("%dm", n)
	case n < 1440:
		return fmt.Sprintf("%dh", n/60)
	default:
		return fmt.Sprintf("%dd", n/1440)
	}
}

var titles = map[domain.SignalKind]string{
	domain.SignalEntryLong:         "🟢 LONG entry",
	domain.SignalEntryShort:        "🔴 SHORT entry",
	domain.SignalEntryLongReverse:  "🔄 Reversal to LONG",
	domain.SignalEntryShortReverse: "🔄 Reversal to SHORT",
	domain.SignalTP1Hit:            "🎯 TP1 hit",
	domain.SignalTP2Hit:            "🎯 TP2 hit",
	domain.SignalTP3Hit:            "🏆 TP3 hit, position closed",
	domain.SignalStopLossHit:       "🛑 Stop loss hit",
	domain.SignalPositionClosed:    "⚪ Position closed",
}

// Render builds the title and plain-text body for a relayed signal.
func Render(ev domain.SignalEvent) (title, body string) {
	title, ok := titles[ev.Kind]
	if !ok {
		title = string(ev.Kind)
	}

	var b strings.Builder
	line := func(label, value string) {
		fmt.Fprintf(&b, "%s: %s\n", label, value)
	}
	level := func(label string, p decimal.NullDecimal) {
		if p.Valid {
			line(label, FormatPrice(p))
		}
	}

	line("Symbol", ev.Symbol)
	switch {
	case ev.Kind.IsEntry():
		line("Entry", FormatPrice(ev.EntryPrice))
		line("Timeframe", FormatTimeframe(ev.Timeframe))
		if ev.HasLevels() {
			b.WriteString("\n")
			level("TP1", ev.TP1)
			level("TP2", ev.TP2)
			level("TP3", ev.TP3)
			level("Stop loss", ev.StopLoss)
		} else if est, ok := EstimateLevels(ev.EntryPrice, ev.Kind.Side()); ok {
			b.WriteString("\nEstimated levels (not sent by the alert)\n")
			line("TP1 (est.)", FormatPrice(decimal.NewNullDecimal(est.TP1)))
			line("TP2 (est.)", FormatPrice(decimal.NewNullDecimal(est.TP2)))
			line("TP3 (est.)", FormatPrice(decimal.NewNullDecimal(est.TP3)))
			line("Stop loss (est.)", FormatPrice(decimal.NewNullDecimal(est.StopLoss)))
		}
		if ev.Kind.IsReverse() {
			line("Note", fmt.Sprintf("previous %s position closed", ev.Kind.Side().Opposite()))
		}
	case ev.Kind == domain.SignalPositionClosed:
		level("Entry", ev.EntryPrice)
		level("Exit", ev.ObservedPrice)
	default:
		level("Entry", ev.EntryPrice)
		level("Exit", ev.ObservedPrice)
		switch ev.Kind {
		case domain.SignalTP1Hit:
			level("TP1", ev.TP1)
		case domain.SignalTP2Hit:
			level("TP2", ev.TP2)
		case domain.SignalTP3Hit:
			level("TP3", ev.TP3)
		case domain.SignalStopLossHit:
			level("Stop loss", ev.StopLoss)
		}
	}
	if ev.Inferred {
		line("Direction", "inferred from price levels")
	}
	line("Time", orNA(ev.Timestamp))

	return title, strings.TrimRight(b.String(), "\n")
}

var (
	estimateFactor = decimal.RequireFromString("2.5")
	estimateHigh   = decimal.NewFromInt(1_000_000)
	estimateMid    = decimal.NewFromInt(10_000)
	rangeHigh      = decimal.RequireFromString("0.005")
	rangeMid       = decimal.RequireFromString("0.01")
	rangeLow       = decimal.RequireFromString("0.02")
)

// Estimated holds display-only targets derived from an entry price.
type Estimated struct {
	TP1, TP2, TP3, StopLoss decimal.Decimal
}

// EstimateLevels approximates targets for an entry that arrived without
// any. The average range is taken as a share of the entry price (0.5%
// above 1,000,000, 1% above 10,000, else 2%) and each step is 2.5 ranges.
// The result is for rendering only and is never stored.
func EstimateLevels(entry decimal.NullDecimal, side domain.Side) (Estimated, bool) {
	if !entry.Valid || !entry.Decimal.IsPositive() {
		return Estimated{}, false
	}
	if side != domain.SideLong && side != domain.SideShort {
		return Estimated{}, false
	}

	e := entry.Decimal
	share := rangeLow
	switch {
	case e.GreaterThan(estimateHigh):
		share = rangeHigh
	case e.GreaterThan(estimateMid):
		share = rangeMid
	}
	step := e.Mul(share).Mul(estimateFactor)
	if side == domain.SideShort {
		step = step.Neg()
	}
	return Estimated{
		TP1:      e.Add(step),
		TP2:      e.Add(step.Mul(decimal.NewFromInt(2))),
		TP3:      e.Add(step.Mul(decimal.NewFromInt(3))),
		StopLoss: e.Sub(step),
	}, true
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return naStr
	}
	return s
}
