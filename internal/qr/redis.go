package qr

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	employeedomain "workforce-auth/internal/employee/domain"
	"workforce-auth/internal/qr/domain"
)

// authenticateScript performs the waiting -> authenticated transition in one step.
// KEYS[1] session key; ARGV[1] employee JSON; ARGV[2] now (unix ms).
var authenticateScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'status', 'expires_at')
if not v[1] then
  return 'not_found'
end
if v[1] == 'expired' or tonumber(ARGV[2]) >= tonumber(v[2]) then
  return 'expired'
end
if v[1] ~= 'waiting' then
  return 'not_waiting'
end
redis.call('HSET', KEYS[1], 'status', 'authenticated', 'employee', ARGV[1])
return 'ok'
`)

// claimScript removes an authenticated session and returns its fields.
// KEYS[1] session key.
var claimScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'status', 'employee', 'created_at', 'expires_at', 'local')
if not v[1] then
  return {'not_found'}
end
if v[1] ~= 'authenticated' then
  return {'not_authenticated'}
end
redis.call('DEL', KEYS[1])
return {'ok', v[2], v[3], v[4], v[5]}
`)

// expireScript marks an existing session expired without touching its TTL. A missing key stays missing.
// KEYS[1] session key.
var expireScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'status', 'expired')
return 1
`)

// RedisStore shares QR sessions between every API instance.
type RedisStore struct {
	client redis.UniversalClient
	clock  clockwork.Clock
}

// NewRedisStore returns a store backed by client. clock may be nil.
func NewRedisStore(client redis.UniversalClient, clock clockwork.Clock) *RedisStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedisStore{client: client, clock: clock}
}

func redisKey(id string) string { return "qr:" + id }

func (s *RedisStore) Create(ctx context.Context, sess *domain.Session) error {
	ttl := sess.ExpiresAt.Sub(s.clock.Now()) + retention
	if ttl <= 0 {
		ttl = retention
	}
	local := "0"
	if sess.Local {
		local = "1"
	}
	k := redisKey(sess.ID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, map[string]any{
			"status":     string(sess.Status),
			"created_at": sess.CreatedAt.UnixMilli(),
			"expires_at": sess.ExpiresAt.UnixMilli(),
			"local":      local,
		})
		pipe.PExpire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("qr: create: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	vals, err := s.client.HGetAll(ctx, redisKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("qr: get: %w", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return decodeRedis(id, vals["status"], vals["employee"], vals["created_at"], vals["expires_at"], vals["local"])
}

func (s *RedisStore) Authenticate(ctx context.Context, id string, employee employeedomain.Snapshot, now time.Time) error {
	b, err := json.Marshal(employee)
	if err != nil {
		return err
	}
	res, err := authenticateScript.Run(ctx, s.client, []string{redisKey(id)}, string(b), now.UnixMilli()).Text()
	if err != nil {
		return fmt.Errorf("qr: authenticate: %w", err)
	}
	switch res {
	case "ok":
		return nil
	case "not_found":
		return ErrNotFound
	case "expired":
		return ErrExpired
	case "not_waiting":
		return ErrNotWaiting
	}
	return fmt.Errorf("qr: authenticate: unexpected reply %q", res)
}

func (s *RedisStore) Claim(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := claimScript.Run(ctx, s.client, []string{redisKey(id)}).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("qr: claim: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("qr: claim: empty reply")
	}
	switch raw[0] {
	case "not_found":
		return nil, ErrNotFound
	case "not_authenticated":
		return nil, ErrNotAuthenticated
	}
	if len(raw) != 5 {
		return nil, fmt.Errorf("qr: claim: unexpected reply %v", raw)
	}
	return decodeRedis(id, string(domain.StatusAuthenticated), raw[1], raw[2], raw[3], raw[4])
}

// Expire keeps the key's TTL so the marker disappears on its own.
func (s *RedisStore) Expire(ctx context.Context, id string) error {
	if err := expireScript.Run(ctx, s.client, []string{redisKey(id)}).Err(); err != nil {
		return fmt.Errorf("qr: expire: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, redisKey(id)).Err()
}

func decodeRedis(id, status, employee, createdAt, expiresAt, local string) (*domain.Session, error) {
	sess := &domain.Session{
		ID:        id,
		Status:    domain.Status(status),
		Local:     local == "1",
		CreatedAt: time.UnixMilli(atoi64(createdAt)).UTC(),
		ExpiresAt: time.UnixMilli(atoi64(expiresAt)).UTC(),
	}
	if employee != "" {
		var snap employeedomain.Snapshot
		if err := json.Unmarshal([]byte(employee), &snap); err != nil {
			return nil, fmt.Errorf("qr: decode employee: %w", err)
		}
		sess.Employee = &snap
	}
	return sess, nil
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
