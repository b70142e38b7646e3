package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/MrEthical07/authgate/internal/rate"
)

// Limiter counts one hit for key and reports how long the caller must wait
// once over budget. *rate.Limiter satisfies it.
type Limiter interface {
	Allow(ctx context.Context, key string) (time.Duration, error)
}

// Throttle limits requests per client address. A limiter failure lets the
// request through and is logged; per-account lockout still applies in the
// engine.
func Throttle(l Limiter, scope string, logger log.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":" + remoteIP(r.RemoteAddr)
			retry, err := l.Allow(r.Context(), key)
			switch {
			case err == nil:
			case errors.Is(err, rate.ErrRateLimited):
				secs := int(retry.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				WriteJSON(w, http.StatusTooManyRequests, ErrorBody{Code: "rate_limited", Message: "too many requests"})
				return
			default:
				if logger != nil {
					logger.WithError(err).WithField("scope", scope).Warn("authgate: throttle unavailable")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
