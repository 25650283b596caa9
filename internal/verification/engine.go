// Package verification checks a submitted code, magic link or password and turns a successful check into
// the employee it proves. It never builds the application session itself.
package verification

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"workforce-auth/internal/contact"
	"workforce-auth/internal/employee/domain"
	"workforce-auth/internal/idp"
	"workforce-auth/internal/mfa"
	mfadomain "workforce-auth/internal/mfa/domain"
	"workforce-auth/internal/security"
	sessiondomain "workforce-auth/internal/session/domain"
	"workforce-auth/internal/telemetry"
	telemetrydomain "workforce-auth/internal/telemetry/domain"
)

var (
	// ErrInvalidCodeFormat is returned for anything but six digits. No attempt is consumed.
	ErrInvalidCodeFormat = errors.New("code must be 6 digits")
	// ErrCodeExpired means the code outlived its window; a new one must be requested.
	ErrCodeExpired = errors.New("code has expired")
	// ErrCodeExhausted means every attempt was used; a new code must be requested.
	ErrCodeExhausted = errors.New("too many incorrect attempts")
	// ErrCodeNotRequested means no code is outstanding for the address.
	ErrCodeNotRequested = errors.New("no code was requested for this number")
	// ErrUnsupportedMethod is returned when VerifyCode is called for a channel without codes.
	ErrUnsupportedMethod = errors.New("method does not use one-time codes")
	// ErrPendingMismatch means the link was opened for another employee than the one who requested it.
	ErrPendingMismatch = errors.New("sign-in link does not match the pending sign-in")
)

// InvalidCodeError is a mismatched code. The challenge is kept with AttemptsLeft attempts remaining.
type InvalidCodeError struct {
	AttemptsLeft int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("incorrect code, %d attempts left", e.AttemptsLeft)
}

// Resolver is the identity lookup the engine needs.
type Resolver interface {
	ResolvePhone(ctx context.Context, phone string) (*domain.Employee, error)
	ResolveEmail(ctx context.Context, email string) (*domain.Employee, error)
}

// Substrate is the part of idp.Provider used for verification.
type Substrate interface {
	VerifyPhoneOTP(ctx context.Context, channel mfadomain.Channel, phone, code string) (mfadomain.Result, *idp.Session, error)
	VerifyMagicLink(ctx context.Context, token string) (*idp.Session, *security.MagicLinkClaims, error)
	SignInWithPassword(ctx context.Context, username, password string) (*idp.Session, *domain.Employee, error)
	SignOut(ctx context.Context, sessionID string) error
}

// Result is a verified identity. ProviderSession is the transient provider session the check opened;
// it must be signed out once the AuthSession is built.
type Result struct {
	Employee        *domain.Employee
	Method          sessiondomain.AuthMethod
	ProviderSession *idp.Session
	// RedirectTo is the target carried by a magic link, empty otherwise.
	RedirectTo string
}

// Engine verifies codes, links and passwords.
type Engine struct {
	idp                Substrate
	resolver           Resolver
	defaultCountryCode string
	recorder           *telemetry.Recorder
	logger             *zap.Logger
}

// NewEngine returns an Engine. recorder and logger may be nil.
func NewEngine(substrate Substrate, resolver Resolver, defaultCountryCode string, recorder *telemetry.Recorder, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		idp:                substrate,
		resolver:           resolver,
		defaultCountryCode: defaultCountryCode,
		recorder:           recorder,
		logger:             logger,
	}
}

func codeChannel(method sessiondomain.AuthMethod) (mfadomain.Channel, bool) {
	switch method {
	case sessiondomain.MethodSMS:
		return mfadomain.ChannelSMS, true
	case sessiondomain.MethodWhatsApp:
		return mfadomain.ChannelWhatsApp, true
	}
	return "", false
}

// VerifyCode checks code for the phone on the sms or whatsapp channel. A malformed phone or code is
// rejected before the challenge store is consulted.
func (e *Engine) VerifyCode(ctx context.Context, method sessiondomain.AuthMethod, rawPhone, code string) (*Result, error) {
	channel, ok := codeChannel(method)
	if !ok {
		return nil, ErrUnsupportedMethod
	}
	phone, err := contact.NormalizePhone(rawPhone, e.defaultCountryCode)
	if err != nil {
		return nil, err
	}
	if !mfa.ValidCodeFormat(code) {
		return nil, ErrInvalidCodeFormat
	}

	res, sess, err := e.idp.VerifyPhoneOTP(ctx, channel, phone, code)
	if err != nil {
		e.logger.Error("verification: challenge store failed", zap.String("channel", string(channel)), zap.Error(err))
		return nil, fmt.Errorf("verification: %w", err)
	}
	e.record(ctx, telemetrydomain.AuthEvent{
		Type:    eventFor(res.Status),
		Channel: string(channel),
		Outcome: string(res.Status),
		Address: contact.MaskPhone(phone),
	})
	switch res.Status {
	case mfadomain.StatusVerified:
	case mfadomain.StatusInvalid:
		return nil, &InvalidCodeError{AttemptsLeft: res.AttemptsLeft}
	case mfadomain.StatusExpired:
		return nil, ErrCodeExpired
	case mfadomain.StatusExhausted:
		return nil, ErrCodeExhausted
	default:
		return nil, ErrCodeNotRequested
	}

	employee, err := e.resolver.ResolvePhone(ctx, phone)
	if err != nil {
		e.discard(ctx, sess)
		return nil, err
	}
	return &Result{Employee: employee, Method: method, ProviderSession: sess}, nil
}

// VerifyMagicLink consumes token and resolves the employee owning its email. When pendingEmployeeID is
// set (the browser that requested the link) it must match the resolved employee.
func (e *Engine) VerifyMagicLink(ctx context.Context, token, pendingEmployeeID string) (*Result, error) {
	sess, claims, err := e.idp.VerifyMagicLink(ctx, token)
	if err != nil {
		e.record(ctx, telemetrydomain.AuthEvent{
			Type:    telemetrydomain.EventCodeRejected,
			Channel: string(sessiondomain.MethodMagicLink),
			Outcome: linkOutcome(err),
		})
		return nil, err
	}
	employee, err := e.resolver.ResolveEmail(ctx, claims.Email)
	if err != nil {
		e.discard(ctx, sess)
		return nil, err
	}
	if pendingEmployeeID != "" && pendingEmployeeID != employee.ID {
		e.discard(ctx, sess)
		e.logger.Warn("verification: magic link opened for another pending employee",
			zap.String("employee_id", employee.ID), zap.String("pending_employee_id", pendingEmployeeID))
		return nil, ErrPendingMismatch
	}
	e.record(ctx, telemetrydomain.AuthEvent{
		Type:       telemetrydomain.EventCodeVerified,
		OrgID:      employee.OrganizationID,
		EmployeeID: employee.ID,
		Channel:    string(sessiondomain.MethodMagicLink),
		Outcome:    string(mfadomain.StatusVerified),
		Address:    contact.MaskEmail(claims.Email),
	})
	return &Result{Employee: employee, Method: sessiondomain.MethodMagicLink, ProviderSession: sess, RedirectTo: claims.RedirectTo}, nil
}

// VerifyPassword checks username and password.
func (e *Engine) VerifyPassword(ctx context.Context, username, password string) (*Result, error) {
	if username == "" || password == "" {
		return nil, idp.ErrInvalidCredentials
	}
	sess, employee, err := e.idp.SignInWithPassword(ctx, username, password)
	if err != nil {
		outcome := "error"
		if errors.Is(err, idp.ErrInvalidCredentials) {
			outcome = string(mfadomain.StatusInvalid)
		}
		e.record(ctx, telemetrydomain.AuthEvent{
			Type:    telemetrydomain.EventCodeRejected,
			Channel: string(sessiondomain.MethodPassword),
			Outcome: outcome,
		})
		return nil, err
	}
	e.record(ctx, telemetrydomain.AuthEvent{
		Type:       telemetrydomain.EventCodeVerified,
		OrgID:      employee.OrganizationID,
		EmployeeID: employee.ID,
		Channel:    string(sessiondomain.MethodPassword),
		Outcome:    string(mfadomain.StatusVerified),
	})
	return &Result{Employee: employee, Method: sessiondomain.MethodPassword, ProviderSession: sess}, nil
}

// discard signs out a provider session opened by a check that failed later on.
func (e *Engine) discard(ctx context.Context, sess *idp.Session) {
	if sess == nil {
		return
	}
	if err := e.idp.SignOut(ctx, sess.ID); err != nil {
		e.logger.Warn("verification: sign out provider session", zap.String("method", sess.Method), zap.Error(err))
	}
}

func (e *Engine) record(ctx context.Context, ev telemetrydomain.AuthEvent) {
	e.recorder.Record(ctx, ev)
}

func eventFor(status mfadomain.Status) string {
	if status == mfadomain.StatusVerified {
		return telemetrydomain.EventCodeVerified
	}
	return telemetrydomain.EventCodeRejected
}

func linkOutcome(err error) string {
	switch {
	case errors.Is(err, idp.ErrLinkExpired):
		return string(mfadomain.StatusExpired)
	case errors.Is(err, idp.ErrLinkUsed):
		return "used"
	case errors.Is(err, idp.ErrLinkInvalid):
		return string(mfadomain.StatusInvalid)
	}
	return "error"
}
