package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// maxTrackedClients bounds the counter map; expired windows are pruned first.
const maxTrackedClients = 50_000

type window struct {
	start time.Time
	count int
}

// limiterCache counts requests per key in fixed windows: at most limit
// requests are allowed between start and start+period.
type limiterCache[K comparable] struct {
	mu      sync.Mutex
	windows map[K]*window
	limit   int
	period  time.Duration
	now     func() time.Time
}

func newLimiterCache[K comparable](limit int, period time.Duration, now func() time.Time) *limiterCache[K] {
	return &limiterCache[K]{
		windows: make(map[K]*window),
		limit:   limit,
		period:  period,
		now:     now,
	}
}

// allow records one request for key and reports whether it fits the current
// window. The second result is the time left until the window resets.
func (lc *limiterCache[K]) allow(key K) (bool, time.Duration) {
	now := lc.now()

	lc.mu.Lock()
	defer lc.mu.Unlock()

	w, ok := lc.windows[key]
	if !ok || now.Sub(w.start) >= lc.period {
		if !ok && len(lc.windows) >= maxTrackedClients {
			lc.prune(now)
		}
		w = &window{start: now}
		lc.windows[key] = w
	}

	remaining := lc.period - now.Sub(w.start)
	if w.count >= lc.limit {
		return false, remaining
	}
	w.count++
	return true, remaining
}

func (lc *limiterCache[K]) prune(now time.Time) {
	for k, w := range lc.windows {
		if now.Sub(w.start) >= lc.period {
			delete(lc.windows, k)
		}
	}
	if len(lc.windows) >= maxTrackedClients {
		lc.windows = make(map[K]*window)
	}
}

// RateLimitByIP allows at most limit requests per window for each client IP.
// Rejected requests get 429 and never reach the handler.
func RateLimitByIP(limit int, period time.Duration) gin.HandlerFunc {
	return rateLimitByIP(limit, period, time.Now)
}

func rateLimitByIP(limit int, period time.Duration, now func() time.Time) gin.HandlerFunc {
	cache := newLimiterCache[string](limit, period, now)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		ok, reset := cache.allow(ip)
		if !ok {
			log.Warn().Str("ip", ip).Str("path", c.Request.URL.Path).Msg("rate limit exceeded")
			c.Header("Retry-After", strconv.Itoa(max(1, int((reset+time.Second-1)/time.Second))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "Too many requests",
			})
			return
		}
		c.Next()
	}
}
