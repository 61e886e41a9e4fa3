package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dunamismax/mediaflow/internal/domain"
	"github.com/dunamismax/mediaflow/internal/ratelimit"
)

type RateLimiter interface {
	Allow(ctx context.Context, clientID, pipeline string) (ratelimit.Decision, error)
}

// withRateLimit charges one pipeline conversion to the client's bucket.
// Limiter errors fail open.
func (s *Server) withRateLimit(pipeline string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if s.rateLimiter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := clientIP(r)

			decision, err := s.rateLimiter.Allow(r.Context(), clientID, pipeline)
			if err != nil {
				s.logger.Warn().Err(err).Str("client", clientID).Str("pipeline", pipeline).Msg("rate limiter check failed")
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.Itoa(ceilSeconds(decision.ResetAfter)))
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Retry-After", strconv.Itoa(max(1, ceilSeconds(decision.RetryAfter))))
			s.metrics.rateLimitRejected.WithLabelValues(pipeline).Inc()
			s.logger.Info().
				Str("client", clientID).
				Str("pipeline", pipeline).
				Int("cost", decision.Cost).
				Int64("remaining", decision.Remaining).
				Msg("conversion rate limited")
			writeError(w, http.StatusTooManyRequests, domain.KindInvalidParameter, "rate limit exceeded")
		})
	}
}

func ceilSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

// clientIP strips the port from RemoteAddr, which middleware.RealIP has
// already replaced with the forwarded address when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
