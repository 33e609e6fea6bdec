package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	rateLimitClients = 10000
	rateLimitIdle    = 10 * time.Minute
)

// RateLimitMiddleware allows rps requests per second per client IP, with a
// burst of rps. Clients idle for rateLimitIdle start over with a full bucket.
func RateLimitMiddleware(rps int) gin.HandlerFunc {
	limiters := expirable.NewLRU[string, *rate.Limiter](rateLimitClients, nil, rateLimitIdle)
	var mu sync.Mutex

	limiterFor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		limiter, ok := limiters.Get(ip)
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(rps), rps)
			limiters.Add(ip, limiter)
		}
		return limiter
	}

	return func(c *gin.Context) {
		if !limiterFor(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
