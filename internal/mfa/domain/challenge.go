package domain

import "time"

// Channel is the delivery channel a one-time code was issued for.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// Challenge is an outstanding one-time code for one (channel, address) pair.
// Only the SHA-256 of the code is kept.
type Challenge struct {
	Channel     Channel
	Address     string
	CodeHash    string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Attempts    int
	MaxAttempts int
}

// Expired reports whether the challenge is past its expiry at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Exhausted reports whether every allowed attempt has been used.
func (c *Challenge) Exhausted() bool {
	return c.Attempts >= c.MaxAttempts
}

// AttemptsLeft returns the remaining verify attempts, never negative.
func (c *Challenge) AttemptsLeft() int {
	if n := c.MaxAttempts - c.Attempts; n > 0 {
		return n
	}
	return 0
}

// Status is the outcome of a verify attempt.
type Status string

const (
	StatusVerified  Status = "verified"
	StatusInvalid   Status = "invalid"
	StatusExpired   Status = "expired"
	StatusExhausted Status = "exhausted"
	StatusNotFound  Status = "not_found"
)

// Result is the structured outcome of a verify attempt. AttemptsLeft is meaningful for StatusInvalid.
type Result struct {
	Status       Status
	AttemptsLeft int
}
