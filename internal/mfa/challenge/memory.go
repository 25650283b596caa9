package challenge

import (
	"context"
	"sync"

	"workforce-auth/internal/mfa"
	"workforce-auth/internal/mfa/domain"
)

// MemoryStore keeps challenges in process memory. A restart invalidates every outstanding code.
type MemoryStore struct {
	mu   sync.Mutex
	m    map[string]*domain.Challenge
	opts Options
}

// NewMemoryStore returns an empty in-memory challenge store.
func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{m: make(map[string]*domain.Challenge), opts: opts.withDefaults()}
}

func (s *MemoryStore) Issue(ctx context.Context, channel domain.Channel, address string) (string, *domain.Challenge, error) {
	code, c, err := newChallenge(s.opts, channel, address)
	if err != nil {
		return "", nil, err
	}
	s.mu.Lock()
	s.m[key(channel, address)] = c
	s.mu.Unlock()
	cp := *c
	return code, &cp, nil
}

func (s *MemoryStore) Verify(ctx context.Context, channel domain.Channel, address, code string) (domain.Result, error) {
	k := key(channel, address)
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.m[k]
	if !ok {
		return domain.Result{Status: domain.StatusNotFound}, nil
	}
	if c.Expired(s.opts.Clock.Now()) {
		delete(s.m, k)
		return domain.Result{Status: domain.StatusExpired}, nil
	}
	if c.Exhausted() {
		delete(s.m, k)
		return domain.Result{Status: domain.StatusExhausted}, nil
	}
	if mfa.OTPEqual(code, c.CodeHash) {
		delete(s.m, k)
		return domain.Result{Status: domain.StatusVerified, AttemptsLeft: c.AttemptsLeft()}, nil
	}
	c.Attempts++
	return domain.Result{Status: domain.StatusInvalid, AttemptsLeft: c.AttemptsLeft()}, nil
}

func (s *MemoryStore) Get(ctx context.Context, channel domain.Channel, address string) (*domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.m[key(channel, address)]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) Delete(ctx context.Context, channel domain.Channel, address string) error {
	s.mu.Lock()
	delete(s.m, key(channel, address))
	s.mu.Unlock()
	return nil
}
