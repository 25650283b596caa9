// Package idp is the identity-provider substrate the channels deliver and verify through: phone codes,
// signed magic links and username/password sign-in. Every successful check opens a short-lived provider
// session that callers must sign out once they have extracted the employee identity.
package idp

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"workforce-auth/internal/contact"
	"workforce-auth/internal/employee/domain"
	"workforce-auth/internal/mfa/challenge"
	mfadomain "workforce-auth/internal/mfa/domain"
	"workforce-auth/internal/notify"
	"workforce-auth/internal/notify/email"
	"workforce-auth/internal/security"
)

// SessionTTL bounds a provider session. They are meant to be discarded within the same request.
const SessionTTL = 10 * time.Minute

// Provider session methods.
const (
	MethodPhoneOTP  = "phone_otp"
	MethodMagicLink = "magic_link"
	MethodPassword  = "password"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrLinkInvalid        = errors.New("sign-in link is invalid")
	ErrLinkExpired        = errors.New("sign-in link has expired")
	ErrLinkUsed           = errors.New("sign-in link was already used")
)

// Session is a transient provider-level session. It is never the application session.
type Session struct {
	ID         string    `json:"id"`
	Method     string    `json:"method"`
	Subject    string    `json:"subject"`
	EmployeeID string    `json:"employee_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// MagicLink describes a dispatched link.
type MagicLink struct {
	Provider  string
	ExpiresAt time.Time
}

// Provider is the substrate used by channel senders and the verification engine.
type Provider interface {
	IssuePhoneOTP(ctx context.Context, channel mfadomain.Channel, phone string) (string, *mfadomain.Challenge, error)
	RevokePhoneOTP(ctx context.Context, channel mfadomain.Channel, phone string) error
	VerifyPhoneOTP(ctx context.Context, channel mfadomain.Channel, phone, code string) (mfadomain.Result, *Session, error)
	SendMagicLink(ctx context.Context, email, redirectTo string) (*MagicLink, error)
	VerifyMagicLink(ctx context.Context, token string) (*Session, *security.MagicLinkClaims, error)
	SignInWithPassword(ctx context.Context, username, password string) (*Session, *domain.Employee, error)
	SignOut(ctx context.Context, sessionID string) error
	Session(ctx context.Context, sessionID string) (*Session, error)
}

// Credentials looks up an employee and password hash by username; (nil, "", nil) when unknown.
type Credentials interface {
	GetCredentials(ctx context.Context, username string) (*domain.Employee, string, error)
}

// Local implements Provider in-process.
type Local struct {
	challenges  challenge.Store
	tokens      *security.TokenProvider
	mail        email.Sender
	creds       Credentials
	hasher      *security.Hasher
	sessions    SessionStore
	usedLinks   UsedLinks
	callbackURL string
	clock       clockwork.Clock
	logger      *zap.Logger
}

// NewLocal returns a Local provider. callbackURL is the absolute URL the magic link points at; the token is
// appended as the "token" query parameter. logger may be nil.
func NewLocal(
	challenges challenge.Store,
	tokens *security.TokenProvider,
	mail email.Sender,
	creds Credentials,
	hasher *security.Hasher,
	sessions SessionStore,
	usedLinks UsedLinks,
	callbackURL string,
	logger *zap.Logger,
) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{
		challenges:  challenges,
		tokens:      tokens,
		mail:        mail,
		creds:       creds,
		hasher:      hasher,
		sessions:    sessions,
		usedLinks:   usedLinks,
		callbackURL: callbackURL,
		clock:       clockwork.NewRealClock(),
		logger:      logger,
	}
}

// WithClock replaces the clock used for session timestamps.
func (l *Local) WithClock(c clockwork.Clock) *Local {
	l.clock = c
	return l
}

func (l *Local) IssuePhoneOTP(ctx context.Context, channel mfadomain.Channel, phone string) (string, *mfadomain.Challenge, error) {
	return l.challenges.Issue(ctx, channel, phone)
}

// RevokePhoneOTP discards the outstanding code for phone, e.g. one that could not be delivered.
func (l *Local) RevokePhoneOTP(ctx context.Context, channel mfadomain.Channel, phone string) error {
	return l.challenges.Delete(ctx, channel, phone)
}

// VerifyPhoneOTP checks the code and, only on success, opens a provider session for the phone.
func (l *Local) VerifyPhoneOTP(ctx context.Context, channel mfadomain.Channel, phone, code string) (mfadomain.Result, *Session, error) {
	res, err := l.challenges.Verify(ctx, channel, phone, code)
	if err != nil || res.Status != mfadomain.StatusVerified {
		return res, nil, err
	}
	sess, err := l.open(ctx, MethodPhoneOTP, phone, "")
	return res, sess, err
}

// SendMagicLink signs a single-use link for email and delivers it. An unconfigured mailer yields
// notify.ErrNoProvider and a failed send notify.ErrDeliveryFailed so callers treat both as transport errors.
func (l *Local) SendMagicLink(ctx context.Context, to, redirectTo string) (*MagicLink, error) {
	token, _, expiresAt, err := l.tokens.IssueMagicLink(to, redirectTo)
	if err != nil {
		return nil, fmt.Errorf("idp: sign magic link: %w", err)
	}
	link := l.callbackURL + "?token=" + url.QueryEscape(token)
	if err := l.mail.Send(ctx, to, "Your sign-in link", magicLinkHTML(link, l.tokens.TTL())); err != nil {
		if errors.Is(err, notify.ErrNotConfigured) {
			return nil, notify.ErrNoProvider
		}
		l.logger.Warn("idp: magic link delivery failed", zap.String("email", contact.MaskEmail(to)), zap.String("provider", l.mail.Name()), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", notify.ErrDeliveryFailed, l.mail.Name(), err)
	}
	return &MagicLink{Provider: l.mail.Name(), ExpiresAt: expiresAt}, nil
}

// VerifyMagicLink validates the link and consumes it. A link is accepted at most once.
func (l *Local) VerifyMagicLink(ctx context.Context, token string) (*Session, *security.MagicLinkClaims, error) {
	claims, err := l.tokens.ValidateMagicLink(token)
	if errors.Is(err, security.ErrTokenExpired) {
		return nil, nil, ErrLinkExpired
	}
	if err != nil {
		return nil, nil, ErrLinkInvalid
	}
	first, err := l.usedLinks.MarkUsed(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		return nil, nil, fmt.Errorf("idp: record link use: %w", err)
	}
	if !first {
		return nil, nil, ErrLinkUsed
	}
	sess, err := l.open(ctx, MethodMagicLink, claims.Email, "")
	if err != nil {
		return nil, nil, err
	}
	return sess, claims, nil
}

// SignInWithPassword checks username and password. Unknown usernames, inactive employees and wrong
// passwords all return ErrInvalidCredentials.
func (l *Local) SignInWithPassword(ctx context.Context, username, password string) (*Session, *domain.Employee, error) {
	e, hash, err := l.creds.GetCredentials(ctx, username)
	if err != nil {
		return nil, nil, fmt.Errorf("idp: credentials lookup: %w", err)
	}
	if e == nil {
		hash = ""
	}
	if !l.hasher.Matches(hash, []byte(password)) || e == nil || !e.Active {
		return nil, nil, ErrInvalidCredentials
	}
	sess, err := l.open(ctx, MethodPassword, username, e.ID)
	if err != nil {
		return nil, nil, err
	}
	return sess, e, nil
}

func (l *Local) SignOut(ctx context.Context, sessionID string) error {
	return l.sessions.Delete(ctx, sessionID)
}

func (l *Local) Session(ctx context.Context, sessionID string) (*Session, error) {
	return l.sessions.Get(ctx, sessionID)
}

func (l *Local) open(ctx context.Context, method, subject, employeeID string) (*Session, error) {
	now := l.clock.Now().UTC()
	sess := &Session{
		ID:         uuid.NewString(),
		Method:     method,
		Subject:    subject,
		EmployeeID: employeeID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(SessionTTL),
	}
	if err := l.sessions.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("idp: open session: %w", err)
	}
	return sess, nil
}

func magicLinkHTML(link string, ttl time.Duration) string {
	href := html.EscapeString(link)
	return fmt.Sprintf(`<p>Use the link below to sign in. It works once and expires in %d minutes.</p>`+
		`<p><a href="%s">Sign in</a></p>`+
		`<p>If you did not request this, you can ignore this email.</p>`, int(ttl.Minutes()), href)
}
