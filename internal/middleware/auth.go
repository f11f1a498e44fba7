package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"webmaster-monitor/internal/auth"
	"webmaster-monitor/internal/messages"
	"webmaster-monitor/internal/metrics"
)

const (
	APIKeyHeader = "X-WM-API-Key"
	APIKeyQuery  = "api_key"
)

type Verifier interface {
	Verify(ctx context.Context, candidate string) error
}

type APIKeyOptions struct {
	Verifier Verifier
	Locale   string
	// Failures, when set, counts rejected attempts per client IP and blocks
	// the client once the limit is reached.
	Failures *RateLimiter
	Metrics  *metrics.Metrics
}

// ErrorBody renders an API error in the {code, message, data:{status}} shape.
func ErrorBody(code, message string, status int) gin.H {
	return gin.H{"code": code, "message": message, "data": gin.H{"status": status}}
}

// RequireAPIKey admits a request only when the X-WM-API-Key header, or the
// api_key query parameter when the header is empty, matches the stored
// credential.
func RequireAPIKey(opts APIKeyOptions) gin.HandlerFunc {
	reject := func(c *gin.Context, status int, code string) {
		opts.Metrics.AuthFailure(code)
		c.JSON(status, ErrorBody(code, messages.Get(opts.Locale, code), status))
		c.Abort()
	}

	return func(c *gin.Context) {
		ip := c.ClientIP()
		if opts.Failures != nil && opts.Failures.Exceeded(ip) {
			reject(c, http.StatusTooManyRequests, messages.RateLimited)
			return
		}

		candidate := c.GetHeader(APIKeyHeader)
		if candidate == "" {
			candidate = c.Query(APIKeyQuery)
		}

		err := opts.Verifier.Verify(c.Request.Context(), candidate)
		switch {
		case err == nil:
			c.Next()
			return
		case errors.Is(err, auth.ErrMissingCredential):
			reject(c, http.StatusUnauthorized, messages.MissingAPIKey)
		default:
			reject(c, http.StatusForbidden, messages.InvalidAPIKey)
		}
		if opts.Failures != nil {
			opts.Failures.Allow(ip)
		}
	}
}
