// Package middleware holds the gin middleware shared by every route: request info, access logging,
// panic recovery, per-IP throttling and the session gate.
package middleware

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"workforce-auth/internal/platform/httpx"
	"workforce-auth/internal/throttle"
)

// RequestIDHeader is echoed back on every response.
const RequestIDHeader = "X-Request-ID"

// RequestInfo resolves the client IP and request id and stores them in the request context.
func RequestInfo() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(WithRequestInfo(c.Request.Context(), clientIP(c), id))
		c.Next()
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the peer address.
func clientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		if i := strings.Index(xff, ","); i >= 0 {
			xff = xff[:i]
		}
		if s := strings.TrimSpace(xff); s != "" {
			return s
		}
	}
	if s := strings.TrimSpace(c.GetHeader("X-Real-IP")); s != "" {
		return s
	}
	if host, _, err := net.SplitHostPort(c.Request.RemoteAddr); err == nil {
		return host
	}
	return c.Request.RemoteAddr
}

// AccessLog writes one line per request. Query strings are not logged since they may carry link tokens.
func AccessLog(logger *zap.Logger, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if skip[c.Request.URL.Path] {
			return
		}
		id, _ := RequestID(c.Request.Context())
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", ClientIP(c.Request.Context())),
			zap.String("request_id", id),
		}
		switch {
		case c.Writer.Status() >= 500:
			logger.Error("http request", fields...)
		case c.Writer.Status() >= 400:
			logger.Warn("http request", fields...)
		default:
			logger.Info("http request", fields...)
		}
	}
}

// Recovery turns a panic into the internal error envelope.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in handler", zap.Any("panic", r), zap.String("route", c.FullPath()), zap.Stack("stack"))
				httpx.Abort(c, nil, fmt.Errorf("panic: %v", r))
			}
		}()
		c.Next()
	}
}

// Throttle limits requests per client IP. A nil limiter lets everything through.
func Throttle(limiter *throttle.Limiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		ip := ClientIP(c.Request.Context())
		if err := limiter.Check("ip:" + ip); err != nil {
			logger.Warn("rate limit exceeded", zap.String("client_ip", ip))
			httpx.Abort(c, nil, err)
			return
		}
		c.Next()
	}
}
