package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/Bharath-code/deckslayer/internal/auth"
	"github.com/Bharath-code/deckslayer/internal/ratelimit"
)

// rateLimit counts the request against policy in the bucket
// "<name>:<caller>", where caller is the user id, else X-Forwarded-For.
func rateLimit(deps Deps, name string, p ratelimit.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if deps.Limiter == nil || p.MaxRequests <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, _ := auth.FromContext(r.Context())
			id := name + ":" + ratelimit.Identifier(u.ID, r.Header.Get("X-Forwarded-For"))

			res := deps.Limiter.Check(id, p)
			if !res.Allowed {
				if deps.Metrics != nil {
					deps.Metrics.RateLimited.WithLabelValues(name).Inc()
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(res.ResetIn.Seconds()))))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"message": "Rate limit exceeded. Please wait before trying again.",
						"type":    "rate_limit_error",
					},
					"reset_in_ms": res.ResetIn.Milliseconds(),
				})
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}
