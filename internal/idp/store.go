package idp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// SessionStore keeps transient provider sessions. Get returns (nil, nil) for a missing or expired session.
type SessionStore interface {
	Put(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// UsedLinks remembers consumed magic-link IDs until the link would have expired anyway.
type UsedLinks interface {
	// MarkUsed records jti and reports whether this is its first use.
	MarkUsed(ctx context.Context, jti string, until time.Time) (bool, error)
}

// MemorySessionStore is an in-process SessionStore.
type MemorySessionStore struct {
	mu    sync.Mutex
	m     map[string]Session
	clock clockwork.Clock
}

// NewMemorySessionStore returns an empty store. clock may be nil.
func NewMemorySessionStore(clock clockwork.Clock) *MemorySessionStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemorySessionStore{m: make(map[string]Session), clock: clock}
}

func (s *MemorySessionStore) Put(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[sess.ID] = *sess
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[id]
	if !ok {
		return nil, nil
	}
	if !s.clock.Now().Before(sess.ExpiresAt) {
		delete(s.m, id)
		return nil, nil
	}
	return &sess, nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
	return nil
}

// MemoryUsedLinks is an in-process UsedLinks. Entries are pruned lazily once past their expiry.
type MemoryUsedLinks struct {
	mu    sync.Mutex
	m     map[string]time.Time
	clock clockwork.Clock
}

// NewMemoryUsedLinks returns an empty set. clock may be nil.
func NewMemoryUsedLinks(clock clockwork.Clock) *MemoryUsedLinks {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryUsedLinks{m: make(map[string]time.Time), clock: clock}
}

func (u *MemoryUsedLinks) MarkUsed(ctx context.Context, jti string, until time.Time) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	now := u.clock.Now()
	for k, exp := range u.m {
		if !now.Before(exp) {
			delete(u.m, k)
		}
	}
	if _, seen := u.m[jti]; seen {
		return false, nil
	}
	u.m[jti] = until
	return true, nil
}

const (
	sessionKeyPrefix = "idp:session:"
	linkKeyPrefix    = "idp:link:"
)

// RedisSessionStore keeps provider sessions as JSON strings that expire with the session.
type RedisSessionStore struct {
	client redis.UniversalClient
	clock  clockwork.Clock
}

// NewRedisSessionStore returns a SessionStore backed by client. clock may be nil.
func NewRedisSessionStore(client redis.UniversalClient, clock clockwork.Clock) *RedisSessionStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedisSessionStore{client: client, clock: clock}
}

func (s *RedisSessionStore) Put(ctx context.Context, sess *Session) error {
	ttl := sess.ExpiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKeyPrefix+sess.ID, raw, ttl).Err()
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, err
	}
	if !s.clock.Now().Before(sess.ExpiresAt) {
		return nil, nil
	}
	return &sess, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, sessionKeyPrefix+id).Err()
}

// RedisUsedLinks records consumed link IDs with SET NX so two instances cannot both accept a link.
type RedisUsedLinks struct {
	client redis.UniversalClient
	clock  clockwork.Clock
}

// NewRedisUsedLinks returns a UsedLinks backed by client. clock may be nil.
func NewRedisUsedLinks(client redis.UniversalClient, clock clockwork.Clock) *RedisUsedLinks {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedisUsedLinks{client: client, clock: clock}
}

func (u *RedisUsedLinks) MarkUsed(ctx context.Context, jti string, until time.Time) (bool, error) {
	ttl := until.Sub(u.clock.Now())
	if ttl < time.Second {
		ttl = time.Second
	}
	return u.client.SetNX(ctx, linkKeyPrefix+jti, 1, ttl).Result()
}
