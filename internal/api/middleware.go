package api

import (
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-todo/internal/token"
)

// identityKey is the gin context key holding the caller's token.Assertion.
const identityKey = "identity"

// Auth requires a valid "Authorization: Bearer <token>" header and stores the
// verified assertion on the context.
func Auth(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			respond(c, http.StatusUnauthorized, "authentication token required", nil)
			return
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			respond(c, http.StatusUnauthorized, "invalid token format, use: Bearer <token>", nil)
			return
		}

		a, err := v.Verify(parts[1])
		switch {
		case errors.Is(err, token.ErrExpired):
			respond(c, http.StatusUnauthorized, "token expired", nil)
			return
		case err != nil:
			respond(c, http.StatusUnauthorized, "invalid token", nil)
			return
		}

		c.Set(identityKey, a)
		c.Next()
	}
}

// Identity returns the assertion stored by Auth.
func Identity(c *gin.Context) (token.Assertion, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return token.Assertion{}, false
	}
	a, ok := v.(token.Assertion)
	return a, ok
}

// MustIdentity is Identity for handlers mounted behind Auth.
func MustIdentity(c *gin.Context) token.Assertion {
	a, ok := Identity(c)
	if !ok {
		panic("api: handler mounted without Auth middleware")
	}
	return a
}

// CORS allows the given origins, with credentials. "*" allows any origin.
func CORS(origins []string) gin.HandlerFunc {
	wildcard := slices.Contains(origins, "*")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (wildcard || slices.Contains(origins, origin)) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization")
			h.Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// SecurityHeaders sets conservative browser security headers.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start),
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

// Recovery turns panics into a 500 response.
func Recovery(logger *log.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		logger.Error("panic", "path", c.Request.URL.Path, "err", recovered)
		respond(c, http.StatusInternalServerError, "internal error", nil)
	})
}
