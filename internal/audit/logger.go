package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"workforce-auth/internal/audit/domain"
	auditrepo "workforce-auth/internal/audit/repository"
)

// Audited actions.
const (
	ActionSignIn     = "sign_in"
	ActionSignOut    = "sign_out"
	ActionQRApprove  = "qr_approve"
	ActionFallback   = "channel_fallback"
	ActionCodeLocked = "code_exhausted"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event. LogEvent is best-effort: failures are logged and do not
// affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, orgID, employeeID, action, channel, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	logger      *zap.Logger
	clock       clockwork.Clock
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown". logger may be nil.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, logger: logger, clock: clockwork.NewRealClock()}
}

// LogEvent writes one audit log entry. Errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, orgID, employeeID, action, channel, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	entry := &domain.AuditLog{
		ID:         uuid.NewString(),
		OrgID:      orgID,
		EmployeeID: employeeID,
		Action:     action,
		Channel:    channel,
		IP:         ip,
		Metadata:   metadata,
		CreatedAt:  l.clock.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.logger.Warn("audit: failed to log event", zap.String("action", action), zap.String("employee_id", employeeID), zap.Error(err))
	}
}
