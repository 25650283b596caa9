// Package qr implements the cross-device QR handshake. The initiating device creates a short-lived session
// and polls it; a second, already authenticated device approves it; the initiating device claims the
// approved session exactly once and builds its own AuthSession from the relayed employee.
package qr

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"workforce-auth/internal/audit"
	employeedomain "workforce-auth/internal/employee/domain"
	"workforce-auth/internal/qr/domain"
	"workforce-auth/internal/telemetry"
	telemetrydomain "workforce-auth/internal/telemetry/domain"
)

// DefaultTTL is the lifetime of a QR session.
const DefaultTTL = 5 * time.Minute

// ApprovePath is the page the QR reference URL points at, relative to the public base URL.
const ApprovePath = "/qr/approve"

// Ticket is what the initiating device needs to render and poll a session.
type Ticket struct {
	SessionID    string    `json:"session_id"`
	ReferenceURL string    `json:"reference_url"`
	ExpiresAt    time.Time `json:"expires_at"`
	// Degraded is set when the shared store was unavailable. The session then lives on this instance only
	// and cannot be approved from another device.
	Degraded bool `json:"degraded"`
}

// PollResult is the state observed by one poll. Employee is set only when the poll claimed the session.
type PollResult struct {
	Status   domain.Status            `json:"status"`
	TimeLeft time.Duration            `json:"-"`
	Employee *employeedomain.Snapshot `json:"employee_data,omitempty"`
}

// Service runs the server side of the handshake.
type Service struct {
	primary  Store
	local    *MemoryStore
	ttl      time.Duration
	baseURL  string
	recorder *telemetry.Recorder
	audit    audit.AuditLogger
	clock    clockwork.Clock
	logger   *zap.Logger
}

// NewService returns a Service over primary. primary may be nil, in which case every session is local.
// recorder, auditLogger and logger may be nil.
func NewService(primary Store, ttl time.Duration, publicBaseURL string, recorder *telemetry.Recorder, auditLogger audit.AuditLogger, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := clockwork.NewRealClock()
	return &Service{
		primary:  primary,
		local:    NewMemoryStore(clock),
		ttl:      ttl,
		baseURL:  strings.TrimRight(publicBaseURL, "/"),
		recorder: recorder,
		audit:    auditLogger,
		clock:    clock,
		logger:   logger,
	}
}

// WithClock replaces the clock, including the local fallback store's.
func (s *Service) WithClock(c clockwork.Clock) *Service {
	s.clock = c
	s.local = NewMemoryStore(c)
	return s
}

type deviceKey struct{}

// WithDevice tags ctx with the key of the browser making the request. A session created while degraded
// records its creator's key and accepts approval only from a request carrying the same key.
func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, deviceKey{}, device)
}

func deviceFrom(ctx context.Context) string {
	d, _ := ctx.Value(deviceKey{}).(string)
	return d
}

// NewSessionID returns "qr_<unix ms base36>_<16 hex chars>".
func NewSessionID(now time.Time) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "qr_" + strconv.FormatInt(now.UnixMilli(), 36) + "_" + hex.EncodeToString(b), nil
}

// ReferenceURL is the payload encoded in the QR image.
func (s *Service) ReferenceURL(id string) string {
	return s.baseURL + ApprovePath + "?session=" + url.QueryEscape(id)
}

// Create allocates a waiting session. When the shared store fails the session falls back to this
// instance's memory and the ticket says so.
func (s *Service) Create(ctx context.Context) (*Ticket, error) {
	now := s.clock.Now().UTC()
	id, err := NewSessionID(now)
	if err != nil {
		return nil, fmt.Errorf("qr: session id: %w", err)
	}
	sess := &domain.Session{ID: id, Status: domain.StatusWaiting, CreatedAt: now, ExpiresAt: now.Add(s.ttl)}

	degraded := s.primary == nil
	if !degraded {
		if err := s.primary.Create(ctx, sess); err != nil {
			s.logger.Warn("qr: shared store unavailable, session is local to this instance", zap.String("session_id", id), zap.Error(err))
			degraded = true
		}
	}
	if degraded {
		sess.Local = true
		sess.Device = deviceFrom(ctx)
		if err := s.local.Create(ctx, sess); err != nil {
			return nil, err
		}
	}
	s.recorder.Record(ctx, telemetrydomain.AuthEvent{
		Type:     telemetrydomain.EventQRCreated,
		Outcome:  string(domain.StatusWaiting),
		Metadata: map[string]string{"degraded": strconv.FormatBool(degraded)},
	})
	return &Ticket{SessionID: id, ReferenceURL: s.ReferenceURL(id), ExpiresAt: sess.ExpiresAt, Degraded: degraded}, nil
}

// lookup finds the store holding id. Local sessions are checked first since ids never collide.
func (s *Service) lookup(ctx context.Context, id string) (Store, *domain.Session, error) {
	if sess, _ := s.local.Get(ctx, id); sess != nil {
		return s.local, sess, nil
	}
	if s.primary == nil {
		return nil, nil, ErrNotFound
	}
	sess, err := s.primary.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, ErrNotFound
	}
	return s.primary, sess, nil
}

// Approve is called by the scanning device once it has authenticated employee. It is the only writer of
// the waiting -> authenticated transition. A local session only accepts the browser that created it, so
// a degraded handshake never bridges two devices.
func (s *Service) Approve(ctx context.Context, id string, employee employeedomain.Snapshot) error {
	store, sess, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if sess.Local {
		if d := deviceFrom(ctx); d == "" || d != sess.Device {
			s.logger.Warn("qr: approval of a local session from another device", zap.String("session_id", id))
			return ErrLocalOnly
		}
	}
	if err := store.Authenticate(ctx, id, employee, s.clock.Now()); err != nil {
		return err
	}
	s.recorder.Record(ctx, telemetrydomain.AuthEvent{
		Type:       telemetrydomain.EventQRApproved,
		OrgID:      employee.OrganizationID,
		EmployeeID: employee.ID,
		Channel:    "qr_code",
		Outcome:    string(domain.StatusAuthenticated),
	})
	if s.audit != nil {
		s.audit.LogEvent(ctx, employee.OrganizationID, employee.ID, audit.ActionQRApprove, "qr_code", `{"session_id":"`+id+`"}`)
	}
	return nil
}

// Poll reports the session state for the initiating device. An approved session is claimed and removed
// by the first poll that sees it; later polls get ErrNotFound.
func (s *Service) Poll(ctx context.Context, id string) (*PollResult, error) {
	store, sess, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if sess.Status == domain.StatusExpired || sess.Expired(now) {
		if sess.Status != domain.StatusExpired {
			if err := store.Expire(ctx, id); err != nil {
				s.logger.Warn("qr: mark expired", zap.String("session_id", id), zap.Error(err))
			}
			s.recorder.Record(ctx, telemetrydomain.AuthEvent{Type: telemetrydomain.EventQRExpired, Outcome: string(domain.StatusExpired)})
		}
		return &PollResult{Status: domain.StatusExpired}, nil
	}
	if sess.Status == domain.StatusWaiting {
		return &PollResult{Status: domain.StatusWaiting, TimeLeft: sess.TimeLeft(now)}, nil
	}

	claimed, err := store.Claim(ctx, id)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotAuthenticated) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logger.Error("qr: claim failed, expiring session", zap.String("session_id", id), zap.Error(err))
		if xerr := store.Expire(ctx, id); xerr != nil {
			s.logger.Error("qr: expire after failed claim", zap.String("session_id", id), zap.Error(xerr))
		}
		return nil, fmt.Errorf("qr: claim: %w", err)
	}
	if claimed.Employee == nil {
		return nil, fmt.Errorf("qr: session %s approved without employee data", id)
	}
	s.recorder.Record(ctx, telemetrydomain.AuthEvent{
		Type:       telemetrydomain.EventQRConsumed,
		OrgID:      claimed.Employee.OrganizationID,
		EmployeeID: claimed.Employee.ID,
		Channel:    "qr_code",
		Outcome:    "consumed",
	})
	return &PollResult{Status: domain.StatusAuthenticated, Employee: claimed.Employee}, nil
}

// Cancel discards a session the initiating device no longer needs (refresh or navigation away).
func (s *Service) Cancel(ctx context.Context, id string) error {
	store, _, err := s.lookup(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return store.Delete(ctx, id)
}
