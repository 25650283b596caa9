package qr

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	employeedomain "workforce-auth/internal/employee/domain"
	"workforce-auth/internal/qr/domain"
)

var (
	// ErrNotFound means no session exists with the id (never created, consumed, or swept).
	ErrNotFound = errors.New("qr session not found")
	// ErrExpired means the session is past its expiry or was marked expired.
	ErrExpired = errors.New("qr session has expired")
	// ErrNotWaiting means the session was already approved.
	ErrNotWaiting = errors.New("qr session is no longer waiting for approval")
	// ErrNotAuthenticated is returned by Claim for a session nobody approved yet.
	ErrNotAuthenticated = errors.New("qr session is not authenticated")
	// ErrLocalOnly means a degraded session was approved from a browser other than the one that created it.
	ErrLocalOnly = errors.New("qr session can only be approved on the device that created it")
)

// retention keeps expired sessions around briefly so pollers see "expired" rather than "not found".
const retention = 10 * time.Minute

// Store persists QR sessions. Authenticate and Claim are single atomic conditional operations so that
// concurrent scanners or pollers cannot both succeed.
type Store interface {
	Create(ctx context.Context, s *domain.Session) error
	// Get returns the session or (nil, nil).
	Get(ctx context.Context, id string) (*domain.Session, error)
	// Authenticate moves a waiting, unexpired session to authenticated carrying employee.
	Authenticate(ctx context.Context, id string, employee employeedomain.Snapshot, now time.Time) error
	// Claim removes an authenticated session and returns it.
	Claim(ctx context.Context, id string) (*domain.Session, error)
	// Expire marks the session unusable. Missing sessions are ignored.
	Expire(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps sessions in process memory. It is the degraded-mode store and the test double.
type MemoryStore struct {
	mu    sync.Mutex
	m     map[string]*domain.Session
	clock clockwork.Clock
}

// NewMemoryStore returns an empty store. clock may be nil.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{m: make(map[string]*domain.Session), clock: clock}
}

func (s *MemoryStore) Create(ctx context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(s.clock.Now())
	cp := *sess
	s.m[sess.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[id]
	if !ok {
		return nil, nil
	}
	return copySession(sess), nil
}

func (s *MemoryStore) Authenticate(ctx context.Context, id string, employee employeedomain.Snapshot, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[id]
	switch {
	case !ok:
		return ErrNotFound
	case sess.Status == domain.StatusExpired || sess.Expired(now):
		return ErrExpired
	case sess.Status != domain.StatusWaiting:
		return ErrNotWaiting
	}
	sess.Status = domain.StatusAuthenticated
	sess.Employee = &employee
	return nil
}

func (s *MemoryStore) Claim(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[id]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Status != domain.StatusAuthenticated {
		return nil, ErrNotAuthenticated
	}
	delete(s.m, id)
	return sess, nil
}

func (s *MemoryStore) Expire(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.m[id]; ok {
		sess.Status = domain.StatusExpired
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.m, id)
	s.mu.Unlock()
	return nil
}

// prune drops sessions past expiry plus retention. Callers hold mu.
func (s *MemoryStore) prune(now time.Time) {
	for id, sess := range s.m {
		if now.Sub(sess.ExpiresAt) > retention {
			delete(s.m, id)
		}
	}
}

func copySession(sess *domain.Session) *domain.Session {
	cp := *sess
	if sess.Employee != nil {
		e := *sess.Employee
		cp.Employee = &e
	}
	return &cp
}
