package domain

import (
	"time"

	employeedomain "workforce-auth/internal/employee/domain"
)

// Status is the state of a cross-device QR session.
type Status string

const (
	StatusWaiting       Status = "waiting"
	StatusAuthenticated Status = "authenticated"
	StatusExpired       Status = "expired"
)

// Session is the record shared by the initiating device and the scanning device.
// It moves from waiting to authenticated exactly once and is deleted when consumed.
type Session struct {
	ID       string                   `json:"id"`
	Status   Status                   `json:"status"`
	Employee *employeedomain.Snapshot `json:"employee_data"`
	// Local marks a session kept only by the instance that created it. Only the browser recorded in
	// Device can approve it.
	Local     bool      `json:"local,omitempty"`
	Device    string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now, whatever its stored status.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// TimeLeft returns the remaining lifetime at now, never negative.
func (s *Session) TimeLeft(now time.Time) time.Duration {
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
