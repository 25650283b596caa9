// Package channel dispatches one-time codes over SMS and WhatsApp and magic links over email.
// Every send normalizes the address, resolves it to an active employee, checks the organization's channel
// policy and the per-address throttle, and only then invokes a transport.
package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"workforce-auth/internal/contact"
	"workforce-auth/internal/devotp"
	"workforce-auth/internal/employee/domain"
	"workforce-auth/internal/idp"
	mfadomain "workforce-auth/internal/mfa/domain"
	"workforce-auth/internal/telemetry"
	telemetrydomain "workforce-auth/internal/telemetry/domain"
	"workforce-auth/internal/throttle"
)

// Channel names as they appear in outcomes, policies and throttle keys.
const (
	SMS       = "sms"
	WhatsApp  = "whatsapp"
	MagicLink = "magic_link"
)

// DevProvider is reported as the provider when codes are kept for the dev peek endpoint instead of sent.
const DevProvider = "dev"

// ErrChannelDisabled is returned when the employee's organization does not allow the channel.
var ErrChannelDisabled = errors.New("channel is disabled for this organization")

// Outcome describes a successful dispatch. Destination is masked.
type Outcome struct {
	Channel      string           `json:"channel"`
	Provider     string           `json:"provider"`
	Destination  string           `json:"destination"`
	Message      string           `json:"message"`
	ExpiresAt    time.Time        `json:"expires_at"`
	FallbackFrom string           `json:"fallback_from,omitempty"`
	Employee     *domain.Employee `json:"-"`
}

// Resolver gates every send on an active employee.
type Resolver interface {
	ResolvePhone(ctx context.Context, phone string) (*domain.Employee, error)
	ResolveEmail(ctx context.Context, email string) (*domain.Employee, error)
}

// Policy reports whether an employee may use a channel. engine.Evaluator satisfies it.
type Policy interface {
	Allowed(ctx context.Context, employee *domain.Employee, channel string) (bool, error)
}

// Issuer is the part of idp.Provider that creates codes and links.
type Issuer interface {
	IssuePhoneOTP(ctx context.Context, channel mfadomain.Channel, phone string) (string, *mfadomain.Challenge, error)
	RevokePhoneOTP(ctx context.Context, channel mfadomain.Channel, phone string) error
	SendMagicLink(ctx context.Context, email, redirectTo string) (*idp.MagicLink, error)
}

// Transport delivers a text message and returns the name of the provider that accepted it.
// notify.Chain satisfies it.
type Transport interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// Deps are the collaborators shared by every sender. Policy, Throttle, DevOTP, Recorder and Logger may be nil.
type Deps struct {
	Resolver Resolver
	Policy   Policy
	Issuer   Issuer
	Throttle *throttle.Limiter
	// DevOTP, when set, receives issued codes and no phone transport is invoked.
	DevOTP             devotp.Store
	DefaultCountryCode string
	Recorder           *telemetry.Recorder
	Logger             *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d Deps) allow(ctx context.Context, e *domain.Employee, channel, address string) error {
	if d.Policy != nil {
		ok, err := d.Policy.Allowed(ctx, e, channel)
		if err != nil {
			d.logger().Warn("channel: policy check failed, allowing", zap.String("channel", channel), zap.Error(err))
		} else if !ok {
			return ErrChannelDisabled
		}
	}
	if d.Throttle != nil {
		if err := d.Throttle.Check(channel + ":" + address); err != nil {
			d.logger().Info("channel: send throttled", zap.String("channel", channel), zap.String("employee_id", e.ID))
			return err
		}
	}
	return nil
}

// phoneSender is the shared SMS/WhatsApp flow.
type phoneSender struct {
	deps      Deps
	channel   mfadomain.Channel
	transport Transport
	format    func(code string, ttl time.Duration) string
}

// dispatch returns the resolved employee even when delivery fails so the orchestrator can fall back.
func (s *phoneSender) dispatch(ctx context.Context, rawPhone string) (*Outcome, *domain.Employee, error) {
	name := string(s.channel)
	phone, err := contact.NormalizePhone(rawPhone, s.deps.DefaultCountryCode)
	if err != nil {
		return nil, nil, err
	}
	employee, err := s.deps.Resolver.ResolvePhone(ctx, phone)
	if err != nil {
		return nil, nil, err
	}
	if err := s.deps.allow(ctx, employee, name, phone); err != nil {
		return nil, employee, err
	}
	code, ch, err := s.deps.Issuer.IssuePhoneOTP(ctx, s.channel, phone)
	if err != nil {
		return nil, employee, fmt.Errorf("channel: issue %s code: %w", name, err)
	}

	var provider string
	if s.deps.DevOTP != nil {
		s.deps.DevOTP.Put(ctx, name, phone, code, ch.ExpiresAt)
		provider = DevProvider
	} else {
		provider, err = s.transport.Send(ctx, phone, s.format(code, ch.ExpiresAt.Sub(ch.CreatedAt)))
		if err != nil {
			s.deps.logger().Warn("channel: code delivery failed",
				zap.String("channel", name), zap.String("phone", contact.MaskPhone(phone)), zap.Error(err))
			// An undelivered code must not stay verifiable.
			if rerr := s.deps.Issuer.RevokePhoneOTP(ctx, s.channel, phone); rerr != nil {
				s.deps.logger().Error("channel: revoke undelivered code",
					zap.String("channel", name), zap.String("phone", contact.MaskPhone(phone)), zap.Error(rerr))
			}
			return nil, employee, err
		}
	}

	masked := contact.MaskPhone(phone)
	s.deps.Recorder.Record(ctx, telemetrydomain.AuthEvent{
		Type:       telemetrydomain.EventCodeSent,
		OrgID:      employee.OrganizationID,
		EmployeeID: employee.ID,
		Channel:    name,
		Provider:   provider,
		Outcome:    "sent",
		Address:    masked,
	})
	return &Outcome{
		Channel:     name,
		Provider:    provider,
		Destination: masked,
		Message:     fmt.Sprintf("We sent a 6-digit code to %s by %s.", masked, label(name)),
		ExpiresAt:   ch.ExpiresAt,
		Employee:    employee,
	}, employee, nil
}

// SMSSender sends codes by text message.
type SMSSender struct {
	phoneSender
}

// NewSMSSender returns an SMSSender delivering through transport.
func NewSMSSender(deps Deps, transport Transport) *SMSSender {
	return &SMSSender{phoneSender{deps: deps, channel: mfadomain.ChannelSMS, transport: transport, format: smsBody}}
}

// Send delivers a code to rawPhone.
func (s *SMSSender) Send(ctx context.Context, rawPhone string) (*Outcome, error) {
	o, _, err := s.dispatch(ctx, rawPhone)
	return o, err
}

// WhatsAppSender sends codes by WhatsApp message over an ordered provider chain.
type WhatsAppSender struct {
	phoneSender
}

// NewWhatsAppSender returns a WhatsAppSender delivering through transport.
func NewWhatsAppSender(deps Deps, transport Transport) *WhatsAppSender {
	return &WhatsAppSender{phoneSender{deps: deps, channel: mfadomain.ChannelWhatsApp, transport: transport, format: whatsAppBody}}
}

// Send delivers a code to rawPhone.
func (s *WhatsAppSender) Send(ctx context.Context, rawPhone string) (*Outcome, error) {
	o, _, err := s.dispatch(ctx, rawPhone)
	return o, err
}

// MagicLinkSender emails single-use sign-in links.
type MagicLinkSender struct {
	deps Deps
}

func NewMagicLinkSender(deps Deps) *MagicLinkSender {
	return &MagicLinkSender{deps: deps}
}

// Send emails a link to rawEmail. redirectTo must already be validated by the caller.
func (s *MagicLinkSender) Send(ctx context.Context, rawEmail, redirectTo string) (*Outcome, error) {
	addr, err := contact.NormalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	employee, err := s.deps.Resolver.ResolveEmail(ctx, addr)
	if err != nil {
		return nil, err
	}
	return s.sendTo(ctx, employee, addr, redirectTo)
}

// sendTo skips resolution; the orchestrator already holds the employee.
func (s *MagicLinkSender) sendTo(ctx context.Context, employee *domain.Employee, addr, redirectTo string) (*Outcome, error) {
	if err := s.deps.allow(ctx, employee, MagicLink, addr); err != nil {
		return nil, err
	}
	link, err := s.deps.Issuer.SendMagicLink(ctx, addr, redirectTo)
	if err != nil {
		return nil, err
	}
	masked := contact.MaskEmail(addr)
	s.deps.Recorder.Record(ctx, telemetrydomain.AuthEvent{
		Type:       telemetrydomain.EventMagicLinkSent,
		OrgID:      employee.OrganizationID,
		EmployeeID: employee.ID,
		Channel:    MagicLink,
		Provider:   link.Provider,
		Outcome:    "sent",
		Address:    masked,
	})
	return &Outcome{
		Channel:     MagicLink,
		Provider:    link.Provider,
		Destination: masked,
		Message:     fmt.Sprintf("We emailed a sign-in link to %s.", masked),
		ExpiresAt:   link.ExpiresAt,
		Employee:    employee,
	}, nil
}

func smsBody(code string, ttl time.Duration) string {
	return fmt.Sprintf("%s is your sign-in code. It expires in %d minutes. Do not share it.", code, int(ttl.Minutes()))
}

func whatsAppBody(code string, ttl time.Duration) string {
	return fmt.Sprintf("Your sign-in code is *%s*. It expires in %d minutes. Do not share it with anyone.", code, int(ttl.Minutes()))
}

func label(channel string) string {
	switch channel {
	case SMS:
		return "SMS"
	case WhatsApp:
		return "WhatsApp"
	}
	return "email"
}
