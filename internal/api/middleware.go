package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emberhost/ember/internal/config"
	"github.com/emberhost/ember/internal/logging"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// loggingMiddleware provides request logging
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		// Log using our custom logger
		logging.Info("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
		return ""
	})
}

// corsMiddleware provides CORS headers
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")
		c.Header("Access-Control-Expose-Headers", "Link")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "300")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// authMiddleware verifies the bearer token on user-facing routes and
// stores the resolved user ID in the request context for handlers.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			c.Abort()
			return
		}

		identity, err := s.verifier.Verify(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			c.Abort()
			return
		}

		c.Set("userID", identity.UserID)
		c.Next()
	}
}

// adminMiddleware guards the administrative surface with the static
// operator credential. Failures are deliberately terse.
func (s *Server) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if bearerToken(c.GetHeader("Authorization")) != s.adminToken {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// bearerToken extracts the credential from an Authorization header,
// accepting both "Bearer <token>" and a bare token value.
func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}

// identityLimiter tracks per-user token buckets for one rate-limited
// operation class. Buckets are created lazily on first use and never
// expire: the identity space is small enough that eviction is not
// worth the complexity.
type identityLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newIdentityLimiter(limit rate.Limit, burst int) *identityLimiter {
	return &identityLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// allow reports whether the given identity may proceed, consuming one
// token from its bucket if so.
func (l *identityLimiter) allow(userID string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}

// newCreateLimiter allows config.CreateRatePerHour server creations
// per user per hour.
func newCreateLimiter() *identityLimiter {
	return newIdentityLimiter(
		rate.Every(time.Hour/time.Duration(config.CreateRatePerHour)),
		config.CreateRatePerHour)
}

// newPowerLimiter allows config.PowerRatePerMinute power actions per
// user per minute.
func newPowerLimiter() *identityLimiter {
	return newIdentityLimiter(
		rate.Every(time.Minute/time.Duration(config.PowerRatePerMinute)),
		config.PowerRatePerMinute)
}

// rateLimitMiddleware rejects requests that exceed the per-user budget
// for the guarded operation class. Runs after authMiddleware so the
// user ID is already resolved.
func (s *Server) rateLimitMiddleware(limiter *identityLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID != "" && !limiter.allow(userID) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":  "Rate limit exceeded",
				"reason": "rate_limited",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
