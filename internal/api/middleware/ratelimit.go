package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/contentpilot-ai/contentpilot/internal/api/dto"
	pkgredis "github.com/contentpilot-ai/contentpilot/internal/pkg/redis"
)

type RateLimiter struct {
	redis *pkgredis.Client
}

func NewRateLimiter(redis *pkgredis.Client) *RateLimiter {
	return &RateLimiter{redis: redis}
}

func (rl *RateLimiter) Limit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rl.key(r)

			allowed, remaining, err := rl.redis.RateLimit(r.Context(), key, limit, window)
			if err != nil {
				// Redis being down must not take the API with it.
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(window).Unix()))

			if !allowed {
				dto.TooManyRequests(w, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) key(r *http.Request) string {
	if ownerID, ok := OwnerFromContext(r.Context()); ok {
		return "ratelimit:owner:" + ownerID.String()
	}
	return "ratelimit:ip:" + r.RemoteAddr
}
