package domain

import (
	"testing"
	"time"
)

func TestSession_ExpiryAndTimeLeft(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := &Session{ID: "qr_1", Status: StatusWaiting, CreatedAt: created, ExpiresAt: created.Add(5 * time.Minute)}

	if s.Expired(created.Add(4*time.Minute + 59*time.Second)) {
		t.Error("should not be expired one second before expiry")
	}
	if !s.Expired(created.Add(5 * time.Minute)) {
		t.Error("should be expired at expiry")
	}
	if got := s.TimeLeft(created.Add(time.Minute)); got != 4*time.Minute {
		t.Errorf("TimeLeft = %v, want 4m", got)
	}
	if got := s.TimeLeft(created.Add(time.Hour)); got != 0 {
		t.Errorf("TimeLeft after expiry = %v, want 0", got)
	}
}
