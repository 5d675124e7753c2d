package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// rateEntry tracks request counts per key within a fixed window.
type rateEntry struct {
	count     int
	windowEnd time.Time
	mu        sync.Mutex
}

// RateLimiter is a per-client fixed-window limiter. Authenticated requests
// are keyed by tenant and operator, anonymous ones by client IP.
type RateLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	entries map[string]*rateEntry
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{limit: limit, window: window, entries: make(map[string]*rateEntry)}
}

// Handler returns the gin middleware. Mount it after JWTAuth to key by
// operator instead of IP.
func (l *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if v, ok := c.Get(ClaimsKey); ok {
			if claims, ok := v.(*JWTClaims); ok {
				key = "op:" + claims.TenantID + ":" + claims.OperatorID
			}
		}

		l.mu.Lock()
		entry, exists := l.entries[key]
		if !exists {
			entry = &rateEntry{}
			l.entries[key] = entry
		}
		l.mu.Unlock()

		entry.mu.Lock()
		defer entry.mu.Unlock()

		now := time.Now()
		if now.After(entry.windowEnd) {
			entry.count = 0
			entry.windowEnd = now.Add(l.window)
		}

		entry.count++
		if entry.count > l.limit {
			retry := int(time.Until(entry.windowEnd).Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.NewRetryable("too many requests"))
			return
		}
		c.Next()
	}
}

// RunPurge removes expired entries every interval until ctx is done, so keys
// that never return do not accumulate.
func (l *RateLimiter) RunPurge(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.purge(time.Now())
		}
	}
}

func (l *RateLimiter) purge(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	purged := 0
	for key, entry := range l.entries {
		entry.mu.Lock()
		if now.After(entry.windowEnd) {
			delete(l.entries, key)
			purged++
		}
		entry.mu.Unlock()
	}
	if purged > 0 {
		log.Debug().
			Int("purged", purged).
			Int("remaining", len(l.entries)).
			Msg("rate limiter entries purged")
	}
}
