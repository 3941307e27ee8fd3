package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/alanyoungcy/signalrelay/internal/domain"
)

const nameForm = "form"

var formBody = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*=[^&\s]*(&[A-Za-z_][A-Za-z0-9_.\-]*=[^&\s]*)*$`)

var formKeys = map[string]bool{
	"signal": true, "symbol": true, "price": true, "entry_price": true,
	"tp1": true, "tp2": true, "tp3": true, "stop_loss": true,
	"time": true, "timeframe": true, "close": true, "observed_price": true,
	"current_price": true, "exit_price": true,
}

// FormStrategy decodes application/x-www-form-urlencoded bodies, or text that
// has the same k=v&k=v shape.
type FormStrategy struct{}

func (FormStrategy) Name() string { return nameForm }

func (FormStrategy) Extract(raw domain.RawPayload) (Fields, bool) {
	body := strings.TrimSpace(string(raw.Body))
	if body == "" {
		return nil, false
	}
	declared := strings.Contains(strings.ToLower(raw.ContentType), "x-www-form-urlencoded")
	if !declared && !formBody.MatchString(body) {
		return nil, false
	}
	values, err := url.ParseQuery(body)
	if err != nil {
		return nil, false
	}

	fields := Fields{}
	for k, vs := range values {
		ck := canonicalKey(k)
		if !formKeys[ck] || len(vs) == 0 {
			continue
		}
		fields[ck] = vs[0]
	}
	if len(fields) == 0 {
		return nil, false
	}
	return fields, true
}
