package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avtenantd/internal/config"
)

// limiterIdleAge is how long an idle client bucket survives before the sweep
// drops it.
const limiterIdleAge = 10 * time.Minute

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// loginLimiter applies a per-client token bucket to the login endpoint so
// credential stuffing cannot hammer bcrypt verification.
type loginLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	rate    rate.Limit
	burst   int

	lastSweep time.Time
}

func newLoginLimiter(cfg config.RateLimitConfig) *loginLimiter {
	return &loginLimiter{
		clients:   make(map[string]*clientBucket),
		rate:      rate.Limit(cfg.Rate),
		burst:     cfg.Burst,
		lastSweep: time.Now(),
	}
}

func (l *loginLimiter) allow(clientKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > limiterIdleAge {
		for key, bucket := range l.clients {
			if now.Sub(bucket.lastSeen) > limiterIdleAge {
				delete(l.clients, key)
			}
		}
		l.lastSweep = now
	}

	bucket, ok := l.clients[clientKey]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[clientKey] = bucket
	}
	bucket.lastSeen = now

	return bucket.limiter.Allow()
}

func (l *loginLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts"})
			return
		}
		c.Next()
	}
}
