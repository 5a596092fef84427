package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/VaibhavPrasad23/PayRs/internal/util"
)

const (
	// Callers this far past the limit within one window get locked out
	// for lockDuration instead of riding the window edge.
	lockAfterFactor = 5
	lockDuration    = 15 * time.Minute
)

// Counter is the fixed-window counter backing the limiter.
type Counter interface {
	IncrementCounter(key string, window time.Duration) (int64, error)
	SetTemporaryLock(key string, duration time.Duration) error
	IsLocked(key string) (bool, error)
}

// RateLimiter applies per-route, per-address fixed windows. A counter
// failure lets the request through: the store being down should not
// take auth down with it.
type RateLimiter struct {
	counter Counter
}

func NewRateLimiter(counter Counter) *RateLimiter {
	return &RateLimiter{counter: counter}
}

// Limit allows at most limit requests per window for each caller
// address on the wrapped route. Sustained hammering well past the
// limit escalates to a temporary lock.
func (l *RateLimiter) Limit(route string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := fmt.Sprintf("%s:%s", route, ClientIP(r))

			locked, err := l.counter.IsLocked(key)
			if err != nil {
				util.Warn("Rate limit lock check unavailable", zap.String("route", route), zap.Error(err))
			} else if locked {
				l.reject(w, lockDuration)
				return
			}

			count, err := l.counter.IncrementCounter(key, window)
			if err != nil {
				util.Warn("Rate limit counter unavailable", zap.String("route", route), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if count > int64(limit) {
				if count > int64(limit)*lockAfterFactor {
					if err := l.counter.SetTemporaryLock(key, lockDuration); err != nil {
						util.Warn("Failed to set rate limit lock", zap.String("route", route), zap.Error(err))
					}
					l.reject(w, lockDuration)
					return
				}
				l.reject(w, window)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *RateLimiter) reject(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   "too many requests",
	})
}
