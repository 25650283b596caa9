package qr

import (
	"errors"
	"testing"
	"time"

	"workforce-auth/internal/qr/domain"
)

func readyMachine(t *testing.T, ttl time.Duration) (*Machine, uint64) {
	t.Helper()
	m := NewMachine()
	gen := m.Begin()
	if m.State() != StateGenerating {
		t.Fatalf("state after Begin = %s", m.State())
	}
	if !m.Ready(gen, Ticket{SessionID: "qr_a", ExpiresAt: t0.Add(ttl)}, t0) {
		t.Fatal("Ready rejected current generation")
	}
	return m, gen
}

func TestMachine_CountdownExpires(t *testing.T) {
	m, gen := readyMachine(t, 3*time.Second)
	if m.State() != StateWaiting || m.Remaining() != 3 {
		t.Fatalf("state = %s remaining = %d", m.State(), m.Remaining())
	}
	if tr := m.Tick(gen, t0.Add(time.Second)); tr != NoChange || m.Remaining() != 2 {
		t.Fatalf("tick 1: %v remaining %d", tr, m.Remaining())
	}
	m.Tick(gen, t0.Add(2*time.Second))
	if tr := m.Tick(gen, t0.Add(3*time.Second)); tr != Expired {
		t.Fatalf("tick 3: want Expired, got %v", tr)
	}
	if m.State() != StateExpired || m.Remaining() != 0 {
		t.Errorf("state = %s remaining = %d", m.State(), m.Remaining())
	}
	if ok, _ := m.BeforePoll(gen, t0.Add(3*time.Second)); ok {
		t.Error("no poll after expiry")
	}
}

func TestMachine_LogicalExpiryBeatsCountdown(t *testing.T) {
	m, gen := readyMachine(t, 300*time.Second)
	if tr := m.Tick(gen, t0.Add(301*time.Second)); tr != Expired {
		t.Errorf("tick past expiry: want Expired, got %v", tr)
	}

	m, gen = readyMachine(t, 300*time.Second)
	ok, tr := m.BeforePoll(gen, t0.Add(300*time.Second))
	if ok || tr != Expired || m.State() != StateExpired {
		t.Errorf("BeforePoll at expiry = %v %v, state %s", ok, tr, m.State())
	}
}

func TestMachine_SuccessOnce(t *testing.T) {
	m, gen := readyMachine(t, 5*time.Minute)
	if ok, _ := m.BeforePoll(gen, t0.Add(2*time.Second)); !ok {
		t.Fatal("BeforePoll = false while waiting")
	}
	if tr := m.Observe(gen, &PollResult{Status: domain.StatusWaiting}, nil); tr != NoChange {
		t.Fatalf("waiting: %v", tr)
	}
	emp := ana()
	res := &PollResult{Status: domain.StatusAuthenticated, Employee: &emp}
	if tr := m.Observe(gen, res, nil); tr != Succeeded {
		t.Fatalf("authenticated: want Succeeded, got %v", tr)
	}
	if tr := m.Observe(gen, res, nil); tr != NoChange {
		t.Errorf("second authenticated result: want NoChange, got %v", tr)
	}
	if m.State() != StateAuthenticated || m.Employee() == nil || m.Employee().ID != "e1" {
		t.Errorf("state = %s employee = %+v", m.State(), m.Employee())
	}
	if tr := m.Tick(gen, t0.Add(5*time.Minute)); tr != NoChange {
		t.Errorf("tick after success: %v", tr)
	}
}

func TestMachine_StaleResultsIgnored(t *testing.T) {
	m, old := readyMachine(t, 5*time.Minute)
	gen := m.Begin()
	emp := ana()
	if tr := m.Observe(old, &PollResult{Status: domain.StatusAuthenticated, Employee: &emp}, nil); tr != NoChange {
		t.Errorf("stale result applied: %v", tr)
	}
	if m.Ready(old, Ticket{SessionID: "qr_old", ExpiresAt: t0.Add(time.Minute)}, t0) {
		t.Error("stale ticket accepted")
	}
	if !m.Ready(gen, Ticket{SessionID: "qr_new", ExpiresAt: t0.Add(5 * time.Minute)}, t0) {
		t.Fatal("current ticket rejected")
	}
	if m.Ticket().SessionID != "qr_new" || m.Remaining() != 300 {
		t.Errorf("ticket = %+v remaining = %d", m.Ticket(), m.Remaining())
	}

	m.Stop()
	if m.State() != StateStopped {
		t.Errorf("state after Stop = %s", m.State())
	}
	if tr := m.Observe(gen, &PollResult{Status: domain.StatusAuthenticated, Employee: &emp}, nil); tr != NoChange {
		t.Errorf("result after Stop applied: %v", tr)
	}
}

func TestMachine_Errors(t *testing.T) {
	m, gen := readyMachine(t, 5*time.Minute)
	if tr := m.Observe(gen, nil, errors.New("timeout")); tr != NoChange || m.State() != StateWaiting {
		t.Errorf("transient error: %v, state %s", tr, m.State())
	}
	if tr := m.Observe(gen, nil, ErrNotFound); tr != Expired {
		t.Errorf("not found: want Expired, got %v", tr)
	}

	m = NewMachine()
	gen = m.Begin()
	m.Fail(gen)
	if m.State() != StateIdle {
		t.Errorf("state after Fail = %s", m.State())
	}
}

func TestMachine_ReadyWithSpentTicketIsExpired(t *testing.T) {
	m := NewMachine()
	gen := m.Begin()
	m.Ready(gen, Ticket{SessionID: "qr_a", ExpiresAt: t0}, t0)
	if m.State() != StateExpired {
		t.Errorf("state = %s, want expired", m.State())
	}
}
