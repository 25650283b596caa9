package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"workforce-auth/internal/platform/httpx"
	sessiondomain "workforce-auth/internal/session/domain"
)

// sessionKey is the gin context key holding the caller's *AuthSession.
const sessionKey = "auth_session"

// SessionLoader reads the AuthSession for the current request. session.Persister satisfies it.
type SessionLoader interface {
	Load(ctx context.Context) (*sessiondomain.AuthSession, error)
}

// LoadSession attaches the caller's AuthSession, if any, to the gin context. A session that cannot be
// read is treated as absent.
func LoadSession(loader SessionLoader, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		s, err := loader.Load(c.Request.Context())
		if err != nil {
			logger.Warn("unreadable auth session", zap.Error(err))
		}
		if s != nil {
			c.Set(sessionKey, s)
		}
		c.Next()
	}
}

// RequireSession rejects requests without an AuthSession. It must run after LoadSession.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := Session(c); !ok {
			httpx.Unauthenticated(c)
			return
		}
		c.Next()
	}
}

// Session returns the AuthSession attached by LoadSession.
func Session(c *gin.Context) (*sessiondomain.AuthSession, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(*sessiondomain.AuthSession)
	return s, ok && s != nil
}
