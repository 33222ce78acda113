package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type windowEntry struct {
	count int
	start time.Time
}

// RateLimiter allows maxRequests per client IP in each one-minute window.
// A non-positive maxRequests disables limiting.
func RateLimiter(maxRequests int) gin.HandlerFunc {
	if maxRequests <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return newRateLimiter(maxRequests, time.Minute, time.Now)
}

func newRateLimiter(maxRequests int, window time.Duration, now func() time.Time) gin.HandlerFunc {
	var mu sync.Mutex
	clients := make(map[string]*windowEntry)
	lastSweep := now()

	return func(c *gin.Context) {
		ip := c.ClientIP()
		t := now()

		mu.Lock()
		if t.Sub(lastSweep) > 2*window {
			for k, e := range clients {
				if t.Sub(e.start) > window {
					delete(clients, k)
				}
			}
			lastSweep = t
		}

		entry, ok := clients[ip]
		if !ok || t.Sub(entry.start) > window {
			clients[ip] = &windowEntry{count: 1, start: t}
			mu.Unlock()
			c.Next()
			return
		}

		if entry.count >= maxRequests {
			retry := entry.start.Add(window).Sub(t)
			mu.Unlock()
			c.Header("Retry-After", fmt.Sprintf("%d", int(retry.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("Rate limit exceeded. Maximum %d requests per minute.", maxRequests),
			})
			return
		}

		entry.count++
		mu.Unlock()
		c.Next()
	}
}
