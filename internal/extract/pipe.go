package extract

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/alanyoungcy/signalrelay/internal/domain"
)

const namePipe = "pipe"

// PipeStrategy parses KEY:VALUE segments joined by '|', e.g.
// SIGNAL_CODE:1|SYMBOL:BTCUSDT|PRICE:50000|TIME:2024-01-15 14:30|TF:15.
// Anything from the first '{' on is left to the embedded-object strategy.
type PipeStrategy struct{}

func (PipeStrategy) Name() string { return namePipe }

func (PipeStrategy) Extract(raw domain.RawPayload) (Fields, bool) {
	text := raw.Body
	if i := firstObjectBrace(text); i >= 0 {
		text = text[:i]
	}
	s := strings.TrimSpace(string(text))
	if !strings.Contains(s, "|") {
		return nil, false
	}

	fields := Fields{}
	recognised := 0
	for _, seg := range strings.Split(s, "|") {
		key, value, ok := strings.Cut(seg, ":")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "SIGNAL":
			recognised++
			if value != "" && !IsPlaceholder(value) {
				fields["signal"] = strings.ToUpper(value)
			}
		case "SIGNAL_CODE":
			recognised++
			if value == "" || IsPlaceholder(value) {
				continue
			}
			if n, err := strconv.Atoi(value); err == nil {
				if kind, ok := domain.KindFromCode(n); ok {
					fields["signal"] = string(kind)
					continue
				}
			}
			fields["signal"] = value
		case "SYMBOL":
			recognised++
			if value != "" && !IsPlaceholder(value) {
				fields["symbol"] = value
			}
		case "PRICE":
			recognised++
			if value != "" && !IsPlaceholder(value) {
				fields["price"] = value
				fields["entry_price"] = value
			}
		case "TIME":
			recognised++
			if value != "" && !IsPlaceholder(value) {
				fields["time"] = value
			}
		case "TF":
			recognised++
			if value != "" && !IsPlaceholder(value) {
				fields["timeframe"] = value
			}
		}
	}
	if recognised < 2 {
		return nil, false
	}
	return fields, true
}

// firstObjectBrace returns the index of the first '{' that does not open a
// {{...}} placeholder, or -1.
func firstObjectBrace(text []byte) int {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		if i+1 < len(text) && text[i+1] == '{' {
			end := bytes.Index(text[i:], []byte("}}"))
			if end < 0 {
				return -1
			}
			i += end + 1
			continue
		}
		return i
	}
	return -1
}
