package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"workforce-auth/internal/audit"
	employeedomain "workforce-auth/internal/employee/domain"
	"workforce-auth/internal/jobs"
	"workforce-auth/internal/session/domain"
	"workforce-auth/internal/telemetry"
	telemetrydomain "workforce-auth/internal/telemetry/domain"
	"workforce-auth/internal/verification"
)

// ErrTeardownFailed means the provider session opened during verification could not be signed out.
// The sign-in is abandoned so the provider session is never mistaken for the application session.
var ErrTeardownFailed = errors.New("session: could not discard provider session")

// Verified is an identity ready to become an AuthSession.
type Verified struct {
	Employee employeedomain.Snapshot
	Method   domain.AuthMethod
	// ProviderSessionID is the transient provider session to tear down, if any.
	ProviderSessionID string
}

// FromResult adapts a verification result.
func FromResult(r *verification.Result) Verified {
	v := Verified{Employee: r.Employee.Snapshot(), Method: r.Method}
	if r.ProviderSession != nil {
		v.ProviderSessionID = r.ProviderSession.ID
	}
	return v
}

// ProviderSignOut tears down provider sessions. idp.Provider satisfies it.
type ProviderSignOut interface {
	SignOut(ctx context.Context, sessionID string) error
}

// AlertEnqueuer schedules the sign-in push notification. *jobs.Enqueuer satisfies it.
type AlertEnqueuer interface {
	EnqueueSignInAlert(ctx context.Context, p jobs.SignInAlert) error
}

// Completer finishes every sign-in the same way: unify, tear down the provider session, persist,
// then emit the event, audit entry and alert. Only the first three steps can fail the sign-in.
type Completer struct {
	provider  ProviderSignOut
	persister Persister
	recorder  *telemetry.Recorder
	audit     audit.AuditLogger
	alerts    AlertEnqueuer
	clientIP  audit.IPExtractor
	clock     clockwork.Clock
	logger    *zap.Logger
}

// NewCompleter returns a Completer. recorder, auditLogger, alerts, clientIP and logger may be nil.
func NewCompleter(
	provider ProviderSignOut,
	persister Persister,
	recorder *telemetry.Recorder,
	auditLogger audit.AuditLogger,
	alerts AlertEnqueuer,
	clientIP audit.IPExtractor,
	logger *zap.Logger,
) *Completer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Completer{
		provider:  provider,
		persister: persister,
		recorder:  recorder,
		audit:     auditLogger,
		alerts:    alerts,
		clientIP:  clientIP,
		clock:     clockwork.NewRealClock(),
		logger:    logger,
	}
}

// WithClock replaces the clock used for AuthenticatedAt.
func (c *Completer) WithClock(clock clockwork.Clock) *Completer {
	c.clock = clock
	return c
}

// Complete builds and stores the AuthSession for v.
func (c *Completer) Complete(ctx context.Context, v Verified) (*domain.AuthSession, error) {
	s := Unify(v.Employee, v.Method, c.clock.Now())

	if v.ProviderSessionID != "" && c.provider != nil {
		if err := c.provider.SignOut(ctx, v.ProviderSessionID); err != nil {
			c.logger.Error("session: provider sign-out failed", zap.String("employee_id", v.Employee.ID), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrTeardownFailed, err)
		}
	}
	if err := c.persister.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("session: persist: %w", err)
	}

	c.recorder.Record(ctx, telemetrydomain.AuthEvent{
		Type:       telemetrydomain.EventSignedIn,
		OrgID:      v.Employee.OrganizationID,
		EmployeeID: v.Employee.ID,
		Channel:    string(v.Method),
		Outcome:    "ok",
	})
	if c.audit != nil {
		c.audit.LogEvent(ctx, v.Employee.OrganizationID, v.Employee.ID, audit.ActionSignIn, string(v.Method), "")
	}
	alert := jobs.SignInAlert{EmployeeID: v.Employee.ID, Method: string(v.Method), AuthenticatedAt: s.AuthenticatedAt}
	if c.clientIP != nil {
		alert.IP = c.clientIP(ctx)
	}
	if c.alerts != nil {
		if err := c.alerts.EnqueueSignInAlert(ctx, alert); err != nil {
			c.logger.Warn("session: sign-in alert not enqueued", zap.String("employee_id", v.Employee.ID), zap.Error(err))
		}
	}
	c.logger.Info("session: signed in", zap.String("employee_id", v.Employee.ID), zap.String("method", string(v.Method)))
	return &s, nil
}

// Current returns the stored AuthSession or nil.
func (c *Completer) Current(ctx context.Context) (*domain.AuthSession, error) {
	return c.persister.Load(ctx)
}

// SignOut removes the stored AuthSession. Signing out without a session is not an error.
func (c *Completer) SignOut(ctx context.Context) error {
	s, err := c.persister.Load(ctx)
	if err != nil {
		c.logger.Warn("session: unreadable session on sign-out", zap.Error(err))
	}
	if err := c.persister.Clear(ctx); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	if s == nil {
		return nil
	}
	c.recorder.Record(ctx, telemetrydomain.AuthEvent{
		Type:       telemetrydomain.EventSignedOut,
		OrgID:      s.Employee.OrganizationID,
		EmployeeID: s.Employee.ID,
		Channel:    string(s.AuthMethod),
		Outcome:    "ok",
	})
	if c.audit != nil {
		c.audit.LogEvent(ctx, s.Employee.OrganizationID, s.Employee.ID, audit.ActionSignOut, string(s.AuthMethod), "")
	}
	return nil
}
