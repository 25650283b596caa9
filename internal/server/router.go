// Package server wires the HTTP router and the gRPC health server.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	channelhandler "workforce-auth/internal/channel/handler"
	devotphandler "workforce-auth/internal/devotp/handler"
	healthhandler "workforce-auth/internal/health/handler"
	qrhandler "workforce-auth/internal/qr/handler"
	"workforce-auth/internal/server/middleware"
	sessionhandler "workforce-auth/internal/session/handler"
	"workforce-auth/internal/throttle"
	verificationhandler "workforce-auth/internal/verification/handler"
)

// Handlers are the feature handlers mounted by NewRouter.
type Handlers struct {
	Channels     *channelhandler.Handler
	Verification *verificationhandler.Handler
	QR           *qrhandler.Handler
	Session      *sessionhandler.Handler
	Health       *healthhandler.Server
	// DevOTP is mounted under /dev only when set. Set only when dev OTP is enabled and not production.
	DevOTP *devotphandler.Handler
}

// RouterConfig holds the cross-cutting router settings.
type RouterConfig struct {
	// AllowedOrigins enables CORS with credentials for these origins. Empty disables CORS.
	AllowedOrigins []string
	// IPLimiter throttles /v1/auth per client IP. Nil disables it.
	IPLimiter *throttle.Limiter
	// Sessions loads the caller's AuthSession for the approve route.
	Sessions middleware.SessionLoader
	Logger   *zap.Logger
}

// NewRouter builds the gin engine. The caller wraps it with the session manager's LoadAndSave.
func NewRouter(h Handlers, cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(
		middleware.RequestInfo(),
		middleware.AccessLog(logger, "/healthz", "/readyz"),
		middleware.Recovery(logger),
	)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", middleware.RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	h.Health.Register(r)

	auth := r.Group("/v1/auth", middleware.Throttle(cfg.IPLimiter, logger))
	if cfg.Sessions != nil {
		auth.Use(middleware.LoadSession(cfg.Sessions, logger))
	}
	h.Channels.Register(auth)
	h.Verification.Register(auth)
	h.QR.Register(auth)
	h.Session.Register(auth)

	if h.DevOTP != nil {
		h.DevOTP.Register(r.Group("/dev"))
		logger.Warn("dev OTP endpoint enabled at GET /dev/otp")
	}
	return r
}
