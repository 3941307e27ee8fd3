package extract

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalrelay/internal/domain"
)

const nameNatural = "natural_language"

var (
	nlSide  = regexp.MustCompile(`(?i)\b(buy|sell|long|short)\b`)
	nlPrice = regexp.MustCompile(`@\s*([0-9]+(?:\.[0-9]+)?)`)
	// Strategy order templates name the symbol after "على" (Arabic "on").
	nlSymbolAfterAla = regexp.MustCompile(`على\s+((?:[A-Z0-9]+:)?[A-Z0-9][A-Z0-9.]*)`)
	nlSymbolAfterOn  = regexp.MustCompile(`(?i:\bon)\s+((?:[A-Z0-9]+:)?[A-Z][A-Z0-9.]*)`)
	nlSymbolAfterAt  = regexp.MustCompile(`@\s*[0-9.]+\s+((?:[A-Z0-9]+:)?[A-Z][A-Z0-9]{2,})`)
	nlTimeframe      = regexp.MustCompile(`(?i)\b(\d+[mhdw])\b`)
)

// NaturalLanguageStrategy reads strategy order sentences such as
// "order buy @ 25319.53 on ACEUSDT". It never synthesises take-profit or
// stop-loss levels.
type NaturalLanguageStrategy struct {
	MaxPrice decimal.Decimal
	Logger   *slog.Logger
}

func (NaturalLanguageStrategy) Name() string { return nameNatural }

func (s NaturalLanguageStrategy) Extract(raw domain.RawPayload) (Fields, bool) {
	text := string(raw.Body)
	side := nlSide.FindStringSubmatch(text)
	priceTok := nlPrice.FindStringSubmatch(text)
	if side == nil && priceTok == nil {
		return nil, false
	}
	fields := Fields{}
	if side != nil {
		fields["signal"] = strings.ToUpper(side[1])
	}

	if m := priceTok; m != nil {
		if p, err := decimal.NewFromString(m[1]); err == nil && p.IsPositive() {
			if s.plausible(p) {
				fields["price"] = p.String()
				fields["entry_price"] = p.String()
			} else if s.Logger != nil {
				s.Logger.Warn("implausible price dropped, likely a position size",
					slog.String("value", p.String()),
					slog.String("max", s.maxPrice().String()),
				)
			}
		}
	}

	for _, re := range []*regexp.Regexp{nlSymbolAfterAla, nlSymbolAfterOn, nlSymbolAfterAt} {
		if m := re.FindStringSubmatch(text); m != nil {
			fields["symbol"] = strings.TrimRight(m[1], ".")
			break
		}
	}

	if m := nlTimeframe.FindStringSubmatch(text); m != nil {
		fields["timeframe"] = strings.ToLower(m[1])
	}
	return fields, true
}

func (s NaturalLanguageStrategy) maxPrice() decimal.Decimal {
	if s.MaxPrice.IsPositive() {
		return s.MaxPrice
	}
	return DefaultMaxPlausiblePrice
}

func (s NaturalLanguageStrategy) plausible(p decimal.Decimal) bool {
	return p.LessThanOrEqual(s.maxPrice())
}
