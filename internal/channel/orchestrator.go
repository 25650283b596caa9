package channel

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"workforce-auth/internal/audit"
	"workforce-auth/internal/notify"
	telemetrydomain "workforce-auth/internal/telemetry/domain"
)

// Orchestrator sends SMS codes and, when SMS delivery fails, makes exactly one magic-link attempt to the
// employee's email. Validation, lookup, policy and throttle failures never fall back.
type Orchestrator struct {
	sms    *SMSSender
	links  *MagicLinkSender
	audit  audit.AuditLogger
	logger *zap.Logger
}

// NewOrchestrator returns an Orchestrator. auditLogger and logger may be nil.
func NewOrchestrator(sms *SMSSender, links *MagicLinkSender, auditLogger audit.AuditLogger, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{sms: sms, links: links, audit: auditLogger, logger: logger}
}

// isTransportError reports whether err came from the delivery step.
func isTransportError(err error) bool {
	return errors.Is(err, notify.ErrNoProvider) || errors.Is(err, notify.ErrDeliveryFailed)
}

// SendSMS sends a code to rawPhone. On a transport failure for an employee with an email it returns the
// magic-link outcome instead, with FallbackFrom set. If the fallback is impossible or fails too, the SMS
// error is returned unchanged.
func (o *Orchestrator) SendSMS(ctx context.Context, rawPhone, redirectTo string) (*Outcome, error) {
	out, employee, smsErr := o.sms.dispatch(ctx, rawPhone)
	if smsErr == nil {
		return out, nil
	}
	if !isTransportError(smsErr) || employee == nil || employee.Email == "" || o.links == nil {
		return nil, smsErr
	}

	out, err := o.links.sendTo(ctx, employee, employee.Email, redirectTo)
	if err != nil {
		o.logger.Warn("channel: magic link fallback failed", zap.String("employee_id", employee.ID), zap.Error(err))
		return nil, smsErr
	}
	out.FallbackFrom = SMS
	out.Message = "We couldn't text you, so we emailed a sign-in link to " + out.Destination + " instead."
	o.logger.Info("channel: sms failed, magic link sent instead", zap.String("employee_id", employee.ID))
	o.sms.deps.Recorder.Record(ctx, telemetrydomain.AuthEvent{
		Type:       telemetrydomain.EventFallbackUsed,
		OrgID:      employee.OrganizationID,
		EmployeeID: employee.ID,
		Channel:    MagicLink,
		Provider:   out.Provider,
		Outcome:    "sent",
		Address:    out.Destination,
		Metadata:   map[string]string{"from": SMS},
	})
	if o.audit != nil {
		o.audit.LogEvent(ctx, employee.OrganizationID, employee.ID, audit.ActionFallback, MagicLink, `{"from":"sms"}`)
	}
	return out, nil
}
