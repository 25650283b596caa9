package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"workforce-auth/internal/audit/domain"
)

// mockAuditRepo implements the audit repository interface for tests.
type mockAuditRepo struct {
	mu        sync.Mutex
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) ListByEmployee(ctx context.Context, employeeID string, limit int) ([]*domain.AuditLog, error) {
	return nil, nil
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, func(ctx context.Context) string { return "192.168.1.1" }, nil)

	logger.LogEvent(context.Background(), "o1", "e1", ActionSignIn, "sms", `{"fallback":false}`)

	if len(repo.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(repo.entries))
	}
	e := repo.entries[0]
	if e.ID == "" || e.OrgID != "o1" || e.EmployeeID != "e1" || e.Action != ActionSignIn || e.Channel != "sms" || e.IP != "192.168.1.1" {
		t.Errorf("entry = %+v", e)
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestLogger_LogEvent_UnknownIP(t *testing.T) {
	repo := &mockAuditRepo{}
	NewLogger(repo, nil, nil).LogEvent(context.Background(), "o1", "e1", ActionSignOut, "", "")
	if repo.entries[0].IP != "unknown" {
		t.Errorf("IP = %q, want unknown", repo.entries[0].IP)
	}
}

func TestLogger_LogEvent_RepoErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	repo := &mockAuditRepo{createErr: errors.New("db down")}
	NewLogger(repo, nil, zap.New(core)).LogEvent(context.Background(), "o1", "e1", ActionSignIn, "sms", "")
	if logs.Len() != 1 {
		t.Errorf("logged %d entries, want 1", logs.Len())
	}
}

func TestLogger_NilSafe(t *testing.T) {
	var l *Logger
	l.LogEvent(context.Background(), "o1", "e1", ActionSignIn, "sms", "")
	NewLogger(nil, nil, nil).LogEvent(context.Background(), "o1", "e1", ActionSignIn, "sms", "")
}
