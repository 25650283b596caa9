// Package challenge stores outstanding one-time codes per (channel, address) and enforces
// their expiry and attempt cap. A new issue replaces the previous code for the same pair.
package challenge

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"workforce-auth/internal/mfa"
	"workforce-auth/internal/mfa/domain"
)

// Default policy.
const (
	DefaultTTL         = 5 * time.Minute
	DefaultMaxAttempts = 3
)

// ErrInvalidAddress is returned when the channel or address is empty.
var ErrInvalidAddress = errors.New("challenge: channel and address are required")

// Store issues and verifies one-time codes.
type Store interface {
	// Issue generates a fresh code for (channel, address), replacing any outstanding one, and returns it in plain text.
	Issue(ctx context.Context, channel domain.Channel, address string) (string, *domain.Challenge, error)
	// Verify checks code against the outstanding challenge. A success or a terminal outcome deletes the challenge;
	// a mismatch is counted and the challenge kept.
	Verify(ctx context.Context, channel domain.Channel, address, code string) (domain.Result, error)
	// Get returns the outstanding challenge or nil.
	Get(ctx context.Context, channel domain.Channel, address string) (*domain.Challenge, error)
	Delete(ctx context.Context, channel domain.Channel, address string) error
}

// Options configures a store. Zero values fall back to the defaults above, the real clock and mfa.GenerateOTP.
type Options struct {
	TTL         time.Duration
	MaxAttempts int
	Clock       clockwork.Clock
	Generate    func() (string, error)
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Generate == nil {
		o.Generate = mfa.GenerateOTP
	}
	return o
}

func key(channel domain.Channel, address string) string {
	return "otp:" + string(channel) + ":" + address
}

func newChallenge(o Options, channel domain.Channel, address string) (string, *domain.Challenge, error) {
	if channel == "" || address == "" {
		return "", nil, ErrInvalidAddress
	}
	code, err := o.Generate()
	if err != nil {
		return "", nil, err
	}
	now := o.Clock.Now().UTC()
	return code, &domain.Challenge{
		Channel:     channel,
		Address:     address,
		CodeHash:    mfa.HashOTP(code),
		CreatedAt:   now,
		ExpiresAt:   now.Add(o.TTL),
		MaxAttempts: o.MaxAttempts,
	}, nil
}
