package middleware

import (
	"net/http"
	"sync"
	"time"

	"dinq_federation/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit 按 IP 的令牌桶限流，r 为每秒请求数，b 为突发量
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*ipLimiter)
	lastSweep := time.Now()

	allow := func(ip string) bool {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		// 顺带清理 10 分钟未出现的 IP
		if now.Sub(lastSweep) > 5*time.Minute {
			for k, v := range limiters {
				if now.Sub(v.lastSeen) > 10*time.Minute {
					delete(limiters, k)
				}
			}
			lastSweep = now
		}

		l, ok := limiters[ip]
		if !ok {
			l = &ipLimiter{limiter: rate.NewLimiter(r, b)}
			limiters[ip] = l
		}
		l.lastSeen = now
		return l.limiter.Allow()
	}

	return func(c *gin.Context) {
		if !allow(c.ClientIP()) {
			utils.ErrorResponse(c, http.StatusTooManyRequests, "rate limited", "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
