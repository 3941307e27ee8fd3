package middleware

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/signalrelay/internal/crypto"
)

// WebhookSignature returns middleware that requires a valid HMAC signature
// on POST bodies. The body is read up to maxBody bytes and replaced so the
// next handler can read it again. A nil verifier disables the check.
func WebhookSignature(v *crypto.Verifier, maxBody int64, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					w.Header().Set("Content-Type", "application/json; charset=utf-8")
					w.WriteHeader(http.StatusRequestEntityTooLarge)
					w.Write([]byte(`{"error":"payload too large"}`))
					return
				}
				writeUnauthorized(w, "unreadable body")
				return
			}

			err = v.Verify(r.Header.Get(crypto.HeaderTimestamp), r.Header.Get(crypto.HeaderSignature), body)
			if err != nil {
				logger.WarnContext(r.Context(), "webhook signature rejected",
					slog.String("remote_addr", extractClientIP(r)),
					slog.String("error", err.Error()),
				)
				switch {
				case errors.Is(err, crypto.ErrSignatureMissing):
					writeUnauthorized(w, "missing signature")
				case errors.Is(err, crypto.ErrSignatureStale):
					writeUnauthorized(w, "stale signature")
				default:
					writeUnauthorized(w, "invalid signature")
				}
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
