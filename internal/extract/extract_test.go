package extract

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalrelay/internal/domain"
)

func newTestExtractor() *Extractor {
	return New(decimal.Zero, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func payload(body, contentType string) domain.RawPayload {
	return domain.RawPayload{Body: []byte(body), ContentType: contentType}
}

func TestExtract_Structured(t *testing.T) {
	res, err := newTestExtractor().Extract(payload(
		`{"signal":"BUY","ticker":"binance:btcusdt","price":50000,"tp1":51000,"SL":49000}`,
		"application/json",
	))
	require.NoError(t, err)

	assert.Equal(t, nameStructured, res.Strategy)
	assert.Equal(t, domain.ContentStructured, res.Content)
	assert.Equal(t, "BTCUSDT", res.Fields["symbol"])
	assert.Equal(t, json.Number("50000"), res.Fields["price"])
	assert.Equal(t, json.Number("49000"), res.Fields["stop_loss"])
}

func TestExtract_AliasFillsUnresolvedSignal(t *testing.T) {
	tests := []struct {
		name string
		body string
		want any
	}{
		{"placeholder signal", `{"signal":"{{strategy.order.action}}","signal_code":2,"symbol":"BTCUSDT","price":50000}`, json.Number("2")},
		{"null signal", `{"signal":null,"signal_code":3,"symbol":"BTCUSDT","price":50000}`, json.Number("3")},
		{"empty signal", `{"signal":" ","signal_code":"5","symbol":"BTCUSDT","price":50000}`, "5"},
		{"explicit signal wins", `{"signal_code":2,"signal":"BUY","symbol":"BTCUSDT","price":50000}`, "BUY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestExtractor().Extract(payload(tt.body, "application/json"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Fields["signal"])
		})
	}
}

func TestCanonicalize_PrefersRealValues(t *testing.T) {
	f := canonicalize(map[string]any{"Signal": nil, "SIGNAL_CODE": "1", "tf": "15", "timeframe": "{{interval}}"})
	assert.Equal(t, "1", f["signal"])
	assert.Equal(t, "15", f["timeframe"])
}

func TestExtract_EmbeddedObjectWithPlaceholders(t *testing.T) {
	body := `Alert fired: {"signal":"SELL","symbol":"ETHUSDT","tp1":{{plot("TP1")}},"price":"{{close}}","entry_price":2000} trailing text`
	res, err := newTestExtractor().Extract(payload(body, "text/plain"))
	require.NoError(t, err)

	assert.Equal(t, nameEmbedded, res.Strategy)
	assert.Equal(t, "SELL", res.Fields["signal"])
	assert.Equal(t, json.Number("2000"), res.Fields["entry_price"])
	assert.Nil(t, res.Fields["tp1"])
	assert.Nil(t, res.Fields["price"])
}

func TestExtract_EmbeddedBracesInsideStrings(t *testing.T) {
	body := `prefix {"note":"}{","symbol":"XRPUSDT","nested":{"a":1}} suffix`
	res, err := newTestExtractor().Extract(payload(body, ""))
	require.NoError(t, err)

	assert.Equal(t, nameEmbedded, res.Strategy)
	assert.Equal(t, "}{", res.Fields["note"])
	assert.Equal(t, "XRPUSDT", res.Fields["symbol"])
}

func TestExtract_PipeAndObjectMerge(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantSignal string
	}{
		{
			name:       "object signal beats placeholder code",
			body:       `SIGNAL_CODE:{{plot("code")}}|SYMBOL:BTCUSDT|PRICE:50000|TIME:2024-01-15 14:30|TF:15 {"signal":"BUY","symbol":"BTCUSDT","tp1":51000,"stop_loss":49000}`,
			wantSignal: "BUY",
		},
		{
			name:       "pipe code fills placeholder object signal",
			body:       `SIGNAL_CODE:2|SYMBOL:BTCUSDT|PRICE:50000 {"signal":"{{strategy.order.action}}","symbol":"BTCUSDT","tp1":49000}`,
			wantSignal: "ENTRY_SHORT",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestExtractor().Extract(payload(tt.body, "text/plain"))
			require.NoError(t, err)

			assert.Equal(t, nameEmbedded, res.Strategy)
			assert.Equal(t, tt.wantSignal, res.Fields["signal"])
			assert.Equal(t, "50000", res.Fields["price"])
			assert.Equal(t, "50000", res.Fields["entry_price"])
			assert.Equal(t, "BTCUSDT", res.Fields["symbol"])
		})
	}
}

func TestExtract_Pipe(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantSignal any
		hasSignal  bool
	}{
		{"numeric code", "SIGNAL_CODE:3|SYMBOL:SOLUSDT|PRICE:150.5|TF:15", "ENTRY_LONG_REVERSE", true},
		{"named signal", "SIGNAL:sell|SYMBOL:SOLUSDT|PRICE:150.5", "SELL", true},
		{"placeholder code left unset", `SIGNAL_CODE:{{plot("code")}}|SYMBOL:SOLUSDT|PRICE:150.5`, nil, false},
		{"out of range code kept raw", "SIGNAL_CODE:9|SYMBOL:SOLUSDT|PRICE:150.5", "9", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestExtractor().Extract(payload(tt.body, "text/plain"))
			require.NoError(t, err)

			assert.Equal(t, namePipe, res.Strategy)
			assert.Equal(t, "SOLUSDT", res.Fields["symbol"])
			assert.Equal(t, "150.5", res.Fields["entry_price"])
			v, ok := res.Fields["signal"]
			assert.Equal(t, tt.hasSignal, ok)
			if tt.hasSignal {
				assert.Equal(t, tt.wantSignal, v)
			}
		})
	}
}

func TestExtract_Form(t *testing.T) {
	res, err := newTestExtractor().Extract(payload("signal=buy&symbol=btcusdt&price=100&junk=1", "application/x-www-form-urlencoded"))
	require.NoError(t, err)

	assert.Equal(t, nameForm, res.Strategy)
	assert.Equal(t, domain.ContentForm, res.Content)
	assert.Equal(t, "buy", res.Fields["signal"])
	assert.Equal(t, "BTCUSDT", res.Fields["symbol"])
	assert.NotContains(t, res.Fields, "junk")
}

func TestExtract_NaturalLanguage(t *testing.T) {
	body := "nagdat (Trailing, 7, 45): تم تنفيذ الأمر buy @ 25319.53 على ACEUSDT. المركز الجديدة للإستراتيجية هو 0"
	res, err := newTestExtractor().Extract(payload(body, "text/plain"))
	require.NoError(t, err)

	assert.Equal(t, nameNatural, res.Strategy)
	assert.Equal(t, "BUY", res.Fields["signal"])
	assert.Equal(t, "25319.53", res.Fields["entry_price"])
	assert.Equal(t, "ACEUSDT", res.Fields["symbol"])
}

func TestExtract_NaturalLanguageEnglish(t *testing.T) {
	res, err := newTestExtractor().Extract(payload("Strategy order sell @ 1.2345 on BINANCE:XRPUSDT 4h", ""))
	require.NoError(t, err)

	assert.Equal(t, "SELL", res.Fields["signal"])
	assert.Equal(t, "XRPUSDT", res.Fields["symbol"])
	assert.Equal(t, "1.2345", res.Fields["price"])
	assert.Equal(t, "4h", res.Fields["timeframe"])
}

func TestExtract_ImplausiblePriceDropped(t *testing.T) {
	res, err := newTestExtractor().Extract(payload("order buy @123456789 BTCUSDT", "text/plain"))
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", res.Fields["symbol"])
	for _, k := range []string{"price", "entry_price", "tp1", "tp2", "tp3", "stop_loss"} {
		assert.NotContains(t, res.Fields, k)
	}
}

func TestExtract_PlausiblePriceCap(t *testing.T) {
	body := payload("buy @ 500000 on BTCUSDT", "text/plain")

	res, err := newTestExtractor().Extract(body)
	require.NoError(t, err)
	assert.Equal(t, "500000", res.Fields["entry_price"])

	strict := New(decimal.NewFromInt(100_000), slog.New(slog.NewTextHandler(io.Discard, nil)))
	res, err = strict.Extract(body)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", res.Fields["symbol"])
	assert.NotContains(t, res.Fields, "entry_price")
}

func TestExtract_Unparsable(t *testing.T) {
	for _, body := range []string{"", "hello world", `{"foo":"bar"}`, "{not json"} {
		_, err := newTestExtractor().Extract(payload(body, ""))
		assert.ErrorIs(t, err, domain.ErrPayloadUnparsable, "body %q", body)
	}
}

func TestExtract_SentinelSymbolRemoved(t *testing.T) {
	res, err := newTestExtractor().Extract(payload(`{"symbol":"N/A","price":10}`, ""))
	require.NoError(t, err)

	_, ok := res.Fields.Symbol()
	assert.False(t, ok)
	assert.NotContains(t, res.Fields, "symbol")
}

func TestSniff(t *testing.T) {
	assert.Equal(t, domain.ContentStructured, Sniff(payload("x", "application/json; charset=utf-8")))
	assert.Equal(t, domain.ContentForm, Sniff(payload("x", "application/x-www-form-urlencoded")))
	assert.Equal(t, domain.ContentStructured, Sniff(payload(` {"a":1}`, "")))
	assert.Equal(t, domain.ContentForm, Sniff(payload("a=1&b=2", "")))
	assert.Equal(t, domain.ContentText, Sniff(payload("buy @ 1 on X", "")))
}

func TestIsPlaceholder(t *testing.T) {
	assert.True(t, IsPlaceholder(`{{plot("TP1")}}`))
	assert.True(t, IsPlaceholder(" {{ticker}} "))
	assert.False(t, IsPlaceholder("BTCUSDT"))
	assert.False(t, IsPlaceholder(42))
}
