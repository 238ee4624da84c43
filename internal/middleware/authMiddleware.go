package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"tradedaemon/internal/auth"
)

// AuthMiddleware validates the bearer token on Marketplace requests and
// sets the owner principal it carries in the request context.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := auth.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("principal", claims.Principal)
		c.Next()
	}
}

// RateLimiter is a simple in-memory per-client-IP limiter. cmd/daemon
// installs it on the whole router, so it covers every Marketplace
// endpoint, the authenticated ones included.
func RateLimiter(requests int, window time.Duration) gin.HandlerFunc {
	type client struct {
		count   int
		resetAt time.Time
	}

	clients := make(map[string]*client)
	var mu sync.Mutex

	return func(c *gin.Context) {
		mu.Lock()
		defer mu.Unlock()

		ip := c.ClientIP()
		now := time.Now()

		cl, exists := clients[ip]
		switch {
		case !exists:
			clients[ip] = &client{count: 1, resetAt: now.Add(window)}
		case now.After(cl.resetAt):
			cl.count = 1
			cl.resetAt = now.Add(window)
		case cl.count >= requests:
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		default:
			cl.count++
		}

		c.Next()
	}
}
