package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

// mockPolicyChecker implements PolicyChecker for tests.
type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func grpcStatus(t *testing.T, s *Server) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.GRPC().Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	return resp.GetStatus()
}

func TestReady_NoChecks(t *testing.T) {
	s := NewServer(nil)
	if _, ok := s.Ready(context.Background()); !ok {
		t.Error("no checks must be ready")
	}
}

func TestRefresh(t *testing.T) {
	tests := []struct {
		name   string
		db     error
		policy error
		want   healthpb.HealthCheckResponse_ServingStatus
	}{
		{"all up", nil, nil, healthpb.HealthCheckResponse_SERVING},
		{"db down", errors.New("connection refused"), nil, healthpb.HealthCheckResponse_NOT_SERVING},
		{"policy down", nil, errors.New("rego compile failed"), healthpb.HealthCheckResponse_NOT_SERVING},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(nil, Database(&mockPinger{pingErr: tt.db}), Policy(&mockPolicyChecker{healthErr: tt.policy}))
			s.Refresh(context.Background())
			if got := grpcStatus(t, s); got != tt.want {
				t.Errorf("status = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadyz(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	db := &mockPinger{}
	s := NewServer(nil, Database(db), Redis(client))
	r := gin.New()
	s.Register(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"redis":"ok"`) {
		t.Fatalf("readyz = %d %s", w.Code, w.Body.String())
	}

	db.pingErr = errors.New("connection refused")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "connection refused") {
		t.Errorf("readyz = %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("healthz = %d", w.Code)
	}
}

func TestWatch_ShutsDownOnCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewServer(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Watch(ctx, clock, time.Second)
		close(done)
	}()
	clock.BlockUntil(1)
	if got := grpcStatus(t, s); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v", got)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return")
	}
	if got := grpcStatus(t, s); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("after shutdown status = %v", got)
	}
}
