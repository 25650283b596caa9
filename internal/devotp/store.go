// Package devotp keeps issued codes readable by (channel, address) when OTP_RETURN_TO_CLIENT is enabled
// outside production (GET /dev/otp). No transport is used in that mode.
package devotp

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Store holds plain codes for dev-only retrieval. Not used in production.
type Store interface {
	// Put stores otp for (channel, address) until expiresAt, replacing an earlier code.
	Put(ctx context.Context, channel, address, otp string, expiresAt time.Time)
	// Get returns the otp if present and not expired.
	Get(ctx context.Context, channel, address string) (otp string, ok bool)
}

type entry struct {
	otp       string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu    sync.RWMutex
	m     map[string]entry
	clock clockwork.Clock
}

// NewMemoryStore returns a new in-memory dev OTP store. clock may be nil.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		m:     make(map[string]entry),
		clock: clock,
	}
}

func key(channel, address string) string { return channel + ":" + address }

func (s *MemoryStore) Put(ctx context.Context, channel, address, otp string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key(channel, address)] = entry{otp: otp, expiresAt: expiresAt}
}

func (s *MemoryStore) Get(ctx context.Context, channel, address string) (string, bool) {
	k := key(channel, address)
	s.mu.RLock()
	e, ok := s.m[k]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.clock.Now()) {
		s.mu.Lock()
		delete(s.m, k)
		s.mu.Unlock()
		return "", false
	}
	return e.otp, true
}
