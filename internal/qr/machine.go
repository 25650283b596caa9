package qr

import (
	"errors"
	"time"

	employeedomain "workforce-auth/internal/employee/domain"
	"workforce-auth/internal/qr/domain"
)

// State is the initiating device's view of one handshake attempt.
type State string

const (
	StateIdle          State = "idle"
	StateGenerating    State = "generating"
	StateWaiting       State = "waiting"
	StateAuthenticated State = "authenticated"
	StateExpired       State = "expired"
	StateStopped       State = "stopped"
)

// Terminal reports whether no further transition can happen without a new attempt.
func (s State) Terminal() bool {
	return s == StateAuthenticated || s == StateExpired || s == StateStopped
}

// Transition is what an input did to the Machine.
type Transition int

const (
	NoChange Transition = iota
	Succeeded
	Expired
)

// Machine is the client-side handshake state machine. It does no I/O and keeps no clock; every input
// carries the generation it was started under so results from an earlier attempt are ignored.
// Machine is not safe for concurrent use.
type Machine struct {
	state     State
	gen       uint64
	ticket    Ticket
	remaining int
	employee  *employeedomain.Snapshot
}

func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// Begin discards the previous attempt and returns the generation of the new one.
func (m *Machine) Begin() uint64 {
	m.gen++
	m.state = StateGenerating
	m.ticket = Ticket{}
	m.remaining = 0
	m.employee = nil
	return m.gen
}

// Ready moves a generating attempt to waiting with the countdown set from the ticket.
func (m *Machine) Ready(gen uint64, t Ticket, now time.Time) bool {
	if gen != m.gen || m.state != StateGenerating {
		return false
	}
	m.ticket = t
	m.remaining = secondsUntil(t.ExpiresAt, now)
	m.state = StateWaiting
	if m.remaining == 0 {
		m.state = StateExpired
	}
	return true
}

// Fail returns a generating attempt to idle after the session could not be created.
func (m *Machine) Fail(gen uint64) {
	if gen == m.gen && m.state == StateGenerating {
		m.state = StateIdle
	}
}

// Tick advances the countdown by one second. The attempt expires when the countdown reaches zero or
// now passes the ticket expiry, whichever comes first.
func (m *Machine) Tick(gen uint64, now time.Time) Transition {
	if gen != m.gen || m.state != StateWaiting {
		return NoChange
	}
	if m.remaining > 0 {
		m.remaining--
	}
	if m.remaining == 0 || !now.Before(m.ticket.ExpiresAt) {
		return m.expire()
	}
	return NoChange
}

// BeforePoll reports whether a poll should be issued. A logically expired attempt is expired here so
// that no read happens after expiry.
func (m *Machine) BeforePoll(gen uint64, now time.Time) (bool, Transition) {
	if gen != m.gen || m.state != StateWaiting {
		return false, NoChange
	}
	if !now.Before(m.ticket.ExpiresAt) {
		return false, m.expire()
	}
	return true, NoChange
}

// Observe applies a poll result. Success is reported at most once per attempt. Transient errors leave the
// attempt waiting; ErrNotFound means the session was consumed or discarded and ends the attempt.
func (m *Machine) Observe(gen uint64, res *PollResult, err error) Transition {
	if gen != m.gen || m.state != StateWaiting {
		return NoChange
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrExpired) {
			return m.expire()
		}
		return NoChange
	}
	switch res.Status {
	case domain.StatusExpired:
		return m.expire()
	case domain.StatusAuthenticated:
		if res.Employee == nil {
			return NoChange
		}
		e := *res.Employee
		m.employee = &e
		m.state = StateAuthenticated
		return Succeeded
	}
	return NoChange
}

// Stop ends the attempt. Results arriving afterwards are stale.
func (m *Machine) Stop() {
	if !m.state.Terminal() {
		m.state = StateStopped
	}
	m.gen++
}

func (m *Machine) expire() Transition {
	m.state = StateExpired
	m.remaining = 0
	return Expired
}

func (m *Machine) State() State { return m.state }

func (m *Machine) Ticket() Ticket { return m.ticket }

// Remaining is the countdown in whole seconds.
func (m *Machine) Remaining() int { return m.remaining }

// Employee is the relayed employee once the attempt succeeded.
func (m *Machine) Employee() *employeedomain.Snapshot { return m.employee }

func secondsUntil(t, now time.Time) int {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
