package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterIdle = 10 * time.Minute

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 按客户端 IP 限流
type RateLimiter struct {
	rps   rate.Limit
	burst int

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

// Allow reports whether key may make a request now.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastSweep) > limiterIdle {
		for k, cl := range l.clients {
			if now.Sub(cl.lastSeen) > limiterIdle {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}
	cl, ok := l.clients[key]
	if !ok {
		cl = &clientLimiter{lim: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.lim.AllowN(now, 1)
}

// Middleware answers 429 once a client exhausts its bucket. rps <= 0
// disables limiting.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.rps <= 0 {
			c.Next()
			return
		}
		if !l.Allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": gin.H{"code": http.StatusTooManyRequests, "msg": "Too many requests"}})
			c.Abort()
			return
		}
		c.Next()
	}
}
