// internal/middleware/rate_limit.go
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/javajoker/creatorshield-backend/internal/utils"
)

const visitorIdleTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller. Authenticated callers are
// keyed by actor ID, anonymous ones by client IP.
type RateLimiter struct {
	mtx      sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
}

func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    b,
	}

	go rl.evictIdle(time.Minute)

	return rl
}

func (rl *RateLimiter) evictIdle(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for now := range ticker.C {
		rl.mtx.Lock()
		for key, v := range rl.visitors {
			if now.Sub(v.lastSeen) > visitorIdleTTL {
				delete(rl.visitors, key)
			}
		}
		rl.mtx.Unlock()
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mtx.Lock()
	defer rl.mtx.Unlock()

	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *RateLimiter) retryAfter() string {
	if rl.rate <= 0 {
		return "60"
	}
	return strconv.Itoa(int(math.Ceil(1/float64(rl.rate) - 1e-9)))
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if actor, ok := ActorFrom(c); ok {
			key = actor.ID.String()
		}

		if !rl.limiterFor(key).Allow() {
			c.Header("Retry-After", rl.retryAfter())
			utils.ErrorResponse(c, http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded. Please try again later.", nil)
			c.Abort()
			return
		}

		c.Next()
	}
}

// Evidence uploads get their own, stricter budget.
var uploadLimiter = NewRateLimiter(rate.Every(6*time.Second), 10)

// GeneralRateLimit applies the per-second budget from server config.
func GeneralRateLimit(perSecond float64, burst int) gin.HandlerFunc {
	if perSecond <= 0 {
		perSecond = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return NewRateLimiter(rate.Limit(perSecond), burst).Middleware()
}

func UploadRateLimit() gin.HandlerFunc {
	return uploadLimiter.Middleware()
}
