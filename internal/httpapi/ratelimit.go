package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	gocache "github.com/patrickmn/go-cache"

	"tidewatch.in/hazard/internal/observability"
)

// FixedWindowLimiter counts requests per key inside a fixed window. The
// window starts at a key's first request and expires as a whole, which is the
// behavior the submit endpoint has always had upstream of the report logic.
type FixedWindowLimiter struct {
	mu     sync.Mutex
	counts *gocache.Cache
	window time.Duration
	max    int
}

func NewFixedWindowLimiter(window time.Duration, maxCount int) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		counts: gocache.New(window, 2*window),
		window: window,
		max:    maxCount,
	}
}

// Allow records one request for the key and reports whether it fits in the
// current window.
func (l *FixedWindowLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Add only succeeds for a fresh window; Increment preserves the window's
	// original expiry.
	if err := l.counts.Add(key, 1, l.window); err == nil {
		return l.max >= 1
	}
	count, err := l.counts.IncrementInt(key, 1)
	if err != nil {
		return true
	}
	return count <= l.max
}

func (s *Server) submitRateLimit(limiter *FixedWindowLimiter, metrics *observability.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if limiter != nil && !limiter.Allow(c.RealIP()) {
				metrics.CountRateLimited()
				return c.JSON(http.StatusTooManyRequests, messageResponse{
					Message: "Too many reports from this user, try later.",
				})
			}
			return next(c)
		}
	}
}
