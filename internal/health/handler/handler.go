// Package handler serves liveness and readiness over HTTP and the standard gRPC health service.
package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// checkTimeout bounds each dependency check.
const checkTimeout = 2 * time.Second

// Pinger is implemented by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is implemented by the OPA evaluator.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Check is one named readiness dependency.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Database checks db.
func Database(db Pinger) Check {
	return Check{Name: "database", Fn: db.PingContext}
}

// Redis checks the shared store.
func Redis(client redis.UniversalClient) Check {
	return Check{Name: "redis", Fn: func(ctx context.Context) error { return client.Ping(ctx).Err() }}
}

// Policy checks the policy engine.
func Policy(p PolicyChecker) Check {
	return Check{Name: "policy", Fn: p.HealthCheck}
}

// Server aggregates readiness checks. The gRPC health status follows the last Refresh.
type Server struct {
	checks []Check
	grpc   *health.Server
	logger *zap.Logger
}

// NewServer returns a Server over checks. With no checks the service is always ready.
func NewServer(logger *zap.Logger, checks ...Check) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{checks: checks, grpc: health.NewServer(), logger: logger}
}

// GRPC returns the grpc.health.v1 implementation to register on a gRPC server.
func (s *Server) GRPC() *health.Server {
	return s.grpc
}

// Ready runs every check concurrently and reports per-check results ("ok" or the error).
func (s *Server) Ready(ctx context.Context) (map[string]string, bool) {
	results := make(map[string]string, len(s.checks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	ok := true
	for _, c := range s.checks {
		wg.Add(1)
		go func(c Check) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			err := c.Fn(cctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				ok = false
				results[c.Name] = err.Error()
				return
			}
			results[c.Name] = "ok"
		}(c)
	}
	wg.Wait()
	return results, ok
}

// Refresh runs the checks once and publishes the result to the gRPC health service.
func (s *Server) Refresh(ctx context.Context) bool {
	results, ok := s.Ready(ctx)
	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn("not ready", zap.Any("checks", results))
	}
	s.grpc.SetServingStatus("", status)
	return ok
}

// Watch refreshes every interval until ctx is done, then marks the service as shutting down.
func (s *Server) Watch(ctx context.Context, clock clockwork.Clock, interval time.Duration) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	s.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			s.grpc.Shutdown()
			return
		case <-ticker.Chan():
			s.Refresh(ctx)
		}
	}
}

func (s *Server) Register(r gin.IRoutes) {
	r.GET("/healthz", s.Healthz)
	r.GET("/readyz", s.Readyz)
}

// Healthz reports liveness only.
func (s *Server) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz reports 200 when every dependency answers, 503 otherwise.
func (s *Server) Readyz(c *gin.Context) {
	results, ok := s.Ready(c.Request.Context())
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": results})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": results})
}
