package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/serverhost/internal/config"
)

// idleBucketTTL drops buckets of clients that went quiet.
const idleBucketTTL = 10 * time.Minute

// RateLimit gives every client IP a bucket of cfg.RequestsPerMinute tokens
// that refills continuously. Health checks are free.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	limiter := newRateLimiter(cfg.Enabled, cfg.RequestsPerMinute)

	return func(c *gin.Context) {
		if !limiter.enabled || c.Request.URL.Path == "/health" {
			c.Next()
			return
		}

		if wait, ok := limiter.allow(c.ClientIP()); !ok {
			c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}

type rateLimiter struct {
	enabled  bool
	capacity float64
	perSec   float64
	now      func() time.Time

	mu          sync.Mutex
	buckets     map[string]*bucket
	lastCleanup time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

func newRateLimiter(enabled bool, requestsPerMinute int) *rateLimiter {
	return &rateLimiter{
		enabled:     enabled && requestsPerMinute > 0,
		capacity:    float64(requestsPerMinute),
		perSec:      float64(requestsPerMinute) / 60,
		now:         time.Now,
		buckets:     make(map[string]*bucket),
		lastCleanup: time.Now(),
	}
}

// allow takes a token from key's bucket. When the bucket is empty it reports
// how long until the next token.
func (rl *rateLimiter) allow(key string) (time.Duration, bool) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastCleanup) > idleBucketTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.seen) > idleBucketTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastCleanup = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.capacity, seen: now}
		rl.buckets[key] = b
	}
	b.tokens = min(rl.capacity, b.tokens+now.Sub(b.seen).Seconds()*rl.perSec)
	b.seen = now

	if b.tokens < 1 {
		return time.Duration((1 - b.tokens) / rl.perSec * float64(time.Second)), false
	}
	b.tokens--
	return 0, true
}
