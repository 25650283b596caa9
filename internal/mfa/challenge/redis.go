package challenge

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"workforce-auth/internal/mfa"
	"workforce-auth/internal/mfa/domain"
)

// expiryGrace keeps an expired challenge around long enough to answer "expired" instead of "not found".
const expiryGrace = 10 * time.Minute

// verifyScript checks and mutates a challenge hash in one step so concurrent verifies cannot both succeed
// and the attempt counter cannot be raced past the cap.
// KEYS[1] challenge key; ARGV[1] submitted code hash; ARGV[2] now (unix ms).
var verifyScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'code_hash', 'expires_at', 'attempts', 'max_attempts')
if not v[1] then
  return {'not_found', 0}
end
local now = tonumber(ARGV[2])
local attempts = tonumber(v[3])
local max = tonumber(v[4])
if now >= tonumber(v[2]) then
  redis.call('DEL', KEYS[1])
  return {'expired', 0}
end
if attempts >= max then
  redis.call('DEL', KEYS[1])
  return {'exhausted', 0}
end
if v[1] == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return {'verified', max - attempts}
end
attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
local left = max - attempts
if left < 0 then left = 0 end
return {'invalid', left}
`)

// RedisStore keeps challenges in Redis hashes so every API instance sees the same codes.
type RedisStore struct {
	client redis.UniversalClient
	opts   Options
}

// NewRedisStore returns a challenge store backed by client.
func NewRedisStore(client redis.UniversalClient, opts Options) *RedisStore {
	return &RedisStore{client: client, opts: opts.withDefaults()}
}

func (s *RedisStore) Issue(ctx context.Context, channel domain.Channel, address string) (string, *domain.Challenge, error) {
	code, c, err := newChallenge(s.opts, channel, address)
	if err != nil {
		return "", nil, err
	}
	k := key(channel, address)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k, map[string]any{
			"code_hash":    c.CodeHash,
			"created_at":   c.CreatedAt.UnixMilli(),
			"expires_at":   c.ExpiresAt.UnixMilli(),
			"attempts":     0,
			"max_attempts": c.MaxAttempts,
		})
		pipe.PExpire(ctx, k, s.opts.TTL+expiryGrace)
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("challenge: issue: %w", err)
	}
	return code, c, nil
}

func (s *RedisStore) Verify(ctx context.Context, channel domain.Channel, address, code string) (domain.Result, error) {
	now := s.opts.Clock.Now().UnixMilli()
	raw, err := verifyScript.Run(ctx, s.client, []string{key(channel, address)}, mfa.HashOTP(code), now).Slice()
	if err != nil {
		return domain.Result{}, fmt.Errorf("challenge: verify: %w", err)
	}
	if len(raw) != 2 {
		return domain.Result{}, fmt.Errorf("challenge: verify: unexpected reply %v", raw)
	}
	status, _ := raw[0].(string)
	left, _ := raw[1].(int64)
	return domain.Result{Status: domain.Status(status), AttemptsLeft: int(left)}, nil
}

func (s *RedisStore) Get(ctx context.Context, channel domain.Channel, address string) (*domain.Challenge, error) {
	vals, err := s.client.HGetAll(ctx, key(channel, address)).Result()
	if err != nil {
		return nil, fmt.Errorf("challenge: get: %w", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	c := &domain.Challenge{Channel: channel, Address: address, CodeHash: vals["code_hash"]}
	c.CreatedAt = time.UnixMilli(atoi64(vals["created_at"])).UTC()
	c.ExpiresAt = time.UnixMilli(atoi64(vals["expires_at"])).UTC()
	c.Attempts = int(atoi64(vals["attempts"]))
	c.MaxAttempts = int(atoi64(vals["max_attempts"]))
	return c, nil
}

func (s *RedisStore) Delete(ctx context.Context, channel domain.Channel, address string) error {
	return s.client.Del(ctx, key(channel, address)).Err()
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
