package notify

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const redacted = "<redacted>"

// scrubURL drops the request URL that net/http attaches to transport errors,
// since sender URLs carry credentials. Any remaining occurrence of secret is
// masked.
func scrubURL(err error, secret string) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		err = fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	if secret != "" && strings.Contains(err.Error(), secret) {
		return errors.New(strings.ReplaceAll(err.Error(), secret, redacted))
	}
	return err
}
