// Package extract recovers a loosely-typed field map from inbound alert
// bodies. Alert payloads arrive as JSON, JSON buried in free text,
// pipe-delimited key/value text, form bodies or plain sentences, so a fixed
// chain of strategies is tried in order until one yields something usable.
package extract

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalrelay/internal/domain"
)

// Fields is the loosely-typed record produced by a strategy. Keys are
// lower-case canonical field names (signal, symbol, price, entry_price, tp1,
// tp2, tp3, stop_loss, time, timeframe, ...). Values are whatever the source
// format carried: strings, json.Number, bools, nil.
type Fields map[string]any

// Strategy is a single pure extraction attempt.
type Strategy interface {
	Name() string
	Extract(raw domain.RawPayload) (Fields, bool)
}

// Result is the outcome of a successful extraction.
type Result struct {
	Fields   Fields
	Strategy string
	Content  domain.ContentKind
}

// DefaultMaxPlausiblePrice bounds prices read from free text. Larger numbers
// are position sizes, not unit prices.
var DefaultMaxPlausiblePrice = decimal.NewFromInt(10_000_000)

// Extractor runs the strategy chain.
type Extractor struct {
	strategies []Strategy
	logger     *slog.Logger
}

// New builds the default strategy chain: structured, embedded object, pipe,
// form, natural language.
func New(maxPlausiblePrice decimal.Decimal, logger *slog.Logger) *Extractor {
	if !maxPlausiblePrice.IsPositive() {
		maxPlausiblePrice = DefaultMaxPlausiblePrice
	}
	l := logger.With(slog.String("component", "extractor"))
	return NewWithStrategies(l,
		StructuredStrategy{},
		EmbeddedObjectStrategy{},
		PipeStrategy{},
		FormStrategy{},
		NaturalLanguageStrategy{MaxPrice: maxPlausiblePrice, Logger: l},
	)
}

// NewWithStrategies builds an extractor over an explicit chain. The logger
// is used as given.
func NewWithStrategies(logger *slog.Logger, strategies ...Strategy) *Extractor {
	return &Extractor{strategies: strategies, logger: logger}
}

// Extract returns the first usable record. When the base record came from
// the embedded-object or pipe strategy, the other of the two fills keys the
// base left absent. Fails with domain.ErrPayloadUnparsable when no strategy
// recovers a symbol or a price.
func (e *Extractor) Extract(raw domain.RawPayload) (Result, error) {
	content := Sniff(raw)

	for i, s := range e.strategies {
		fields, ok := s.Extract(raw)
		if !ok || !usable(fields) {
			continue
		}

		if partner := e.partnerOf(s.Name(), i); partner != nil {
			if extra, ok := partner.Extract(raw); ok {
				fillMissing(fields, extra)
			}
		}

		cleanSymbol(fields)
		e.logger.Debug("payload extracted",
			slog.String("strategy", s.Name()),
			slog.String("content", string(content)),
			slog.Int("fields", len(fields)),
		)
		return Result{Fields: fields, Strategy: s.Name(), Content: content}, nil
	}

	return Result{}, fmt.Errorf("extract: %d strategies tried: %w", len(e.strategies), domain.ErrPayloadUnparsable)
}

// partnerOf returns the complementary strategy for a mixed pipe + object
// payload, if present in the chain.
func (e *Extractor) partnerOf(name string, idx int) Strategy {
	var want string
	switch name {
	case nameEmbedded:
		want = namePipe
	case namePipe:
		want = nameEmbedded
	default:
		return nil
	}
	for i, s := range e.strategies {
		if i != idx && s.Name() == want {
			return s
		}
	}
	return nil
}

// Sniff reports the declared content kind, falling back to the body shape.
func Sniff(raw domain.RawPayload) domain.ContentKind {
	ct := strings.ToLower(raw.ContentType)
	switch {
	case strings.Contains(ct, "json"):
		return domain.ContentStructured
	case strings.Contains(ct, "x-www-form-urlencoded"):
		return domain.ContentForm
	}
	body := strings.TrimSpace(string(raw.Body))
	switch {
	case strings.HasPrefix(body, "{"):
		return domain.ContentStructured
	case formBody.MatchString(body):
		return domain.ContentForm
	}
	return domain.ContentText
}

// IsPlaceholder reports whether v is an unresolved template token such as
// {{ticker}} or {{plot("TP1")}}.
func IsPlaceholder(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	s = strings.TrimSpace(s)
	return strings.Contains(s, "{{") && strings.Contains(s, "}}")
}

// present reports whether a field carries a real value.
func present(f Fields, key string) bool {
	v, ok := f[key]
	return ok && hasValue(v)
}

func hasValue(v any) bool {
	if v == nil || IsPlaceholder(v) {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

var priceKeys = []string{"price", "entry_price", "close", "observed_price", "current_price", "exit_price"}

func usable(f Fields) bool {
	if len(f) == 0 {
		return false
	}
	if present(f, "symbol") {
		return true
	}
	for _, k := range priceKeys {
		if present(f, k) {
			return true
		}
	}
	return false
}

func fillMissing(dst, src Fields) {
	for k, v := range src {
		if !present(dst, k) && v != nil && !IsPlaceholder(v) {
			dst[k] = v
		}
	}
}

// aliases maps source spellings onto canonical field names.
var aliases = map[string]string{
	"ticker":      "symbol",
	"pair":        "symbol",
	"sl":          "stop_loss",
	"stoploss":    "stop_loss",
	"stop":        "stop_loss",
	"tf":          "timeframe",
	"interval":    "timeframe",
	"signal_code": "signal",
	"entry":       "entry_price",
	"timenow":     "time",
}

func canonicalKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	if a, ok := aliases[k]; ok {
		return a
	}
	return k
}

// canonicalize lower-cases keys and resolves aliases. When several keys map
// to one field, a real value beats null or a placeholder, and among real
// values the explicit canonical key wins over an alias.
func canonicalize(in map[string]any) Fields {
	out := make(Fields, len(in))
	for k, v := range in {
		ck := canonicalKey(k)
		if _, exists := out[ck]; exists {
			explicit := ck == strings.ToLower(strings.TrimSpace(k))
			if !hasValue(v) || (present(out, ck) && !explicit) {
				continue
			}
		}
		out[ck] = v
	}
	return out
}

var absentSymbols = map[string]bool{"": true, "UNKNOWN": true, "N/A": true, "NULL": true, "NONE": true}

// cleanSymbol trims and upper-cases the symbol and strips an EXCHANGE:
// prefix. Sentinel values are removed.
func cleanSymbol(f Fields) {
	v, ok := f["symbol"]
	if !ok {
		return
	}
	s, isStr := v.(string)
	if !isStr || IsPlaceholder(s) {
		delete(f, "symbol")
		return
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	if absentSymbols[s] {
		delete(f, "symbol")
		return
	}
	f["symbol"] = s
}

// Symbol returns the cleaned symbol, if any.
func (f Fields) Symbol() (string, bool) {
	s, ok := f["symbol"].(string)
	return s, ok && s != ""
}
