package qr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	employeedomain "workforce-auth/internal/employee/domain"
)

const (
	// CountdownInterval drives the on-screen countdown and hard expiry.
	CountdownInterval = time.Second
	// PollInterval is how often the initiating device reads the session.
	PollInterval = 2 * time.Second
)

// Backend is the server side of the handshake as seen by the initiating device.
// *Service and *authclient.Client satisfy it.
type Backend interface {
	Create(ctx context.Context) (*Ticket, error)
	Poll(ctx context.Context, id string) (*PollResult, error)
	Cancel(ctx context.Context, id string) error
}

// Hooks receive handshake progress. They run on the handshake goroutine and must not call Refresh.
// Any hook may be nil.
type Hooks struct {
	OnTicket  func(Ticket)
	OnTick    func(remaining int)
	OnSuccess func(employeedomain.Snapshot)
	OnExpired func()
	OnError   func(error)
}

type pollOutcome struct {
	res *PollResult
	err error
}

// Handshake drives a Machine for the initiating device: one countdown ticker and one poll ticker per
// attempt, at most one poll in flight, and both tickers stopped together when the attempt ends.
type Handshake struct {
	backend Backend
	hooks   Hooks
	clock   clockwork.Clock
	logger  *zap.Logger

	mu      sync.Mutex
	machine *Machine
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewHandshake returns an idle Handshake. clock and logger may be nil.
func NewHandshake(backend Backend, hooks Hooks, clock clockwork.Clock, logger *zap.Logger) *Handshake {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	done := make(chan struct{})
	close(done)
	return &Handshake{backend: backend, hooks: hooks, clock: clock, logger: logger, machine: NewMachine(), done: done}
}

// Start begins the first attempt. It is Refresh under another name.
func (h *Handshake) Start(ctx context.Context) (*Ticket, error) {
	return h.Refresh(ctx)
}

// Refresh abandons the current attempt, including its timers and any in-flight poll, and starts a new one
// with a fresh session. The new attempt also ends when ctx is done.
func (h *Handshake) Refresh(ctx context.Context) (*Ticket, error) {
	h.mu.Lock()
	prev := h.machine.Ticket()
	prevState := h.machine.State()
	h.stopLocked()
	done := h.done
	gen := h.machine.Begin()
	h.mu.Unlock()
	<-done

	if prevState == StateWaiting && prev.SessionID != "" {
		if err := h.backend.Cancel(ctx, prev.SessionID); err != nil {
			h.logger.Debug("qr: cancel previous session", zap.String("session_id", prev.SessionID), zap.Error(err))
		}
	}

	ticket, err := h.backend.Create(ctx)
	if err != nil {
		h.mu.Lock()
		h.machine.Fail(gen)
		h.mu.Unlock()
		return nil, fmt.Errorf("qr: create session: %w", err)
	}

	h.mu.Lock()
	if !h.machine.Ready(gen, *ticket, h.clock.Now()) {
		h.mu.Unlock()
		return nil, context.Canceled
	}
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	expired := h.machine.State() == StateExpired
	done = h.done
	h.mu.Unlock()

	if h.hooks.OnTicket != nil {
		h.hooks.OnTicket(*ticket)
	}
	if expired {
		cancel()
		close(done)
		h.expired()
		return ticket, nil
	}
	go h.run(runCtx, cancel, gen, ticket.SessionID, done)
	return ticket, nil
}

// Stop ends the current attempt. A response arriving after Stop is discarded.
func (h *Handshake) Stop() {
	h.mu.Lock()
	h.stopLocked()
	h.mu.Unlock()
}

func (h *Handshake) stopLocked() {
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	h.machine.Stop()
}

// Done is closed when the current attempt's goroutine has exited.
func (h *Handshake) Done() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// State returns the current state, the countdown and the relayed employee if any.
func (h *Handshake) State() (State, int, *employeedomain.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.machine.State(), h.machine.Remaining(), h.machine.Employee()
}

func (h *Handshake) run(ctx context.Context, cancel context.CancelFunc, gen uint64, id string, done chan struct{}) {
	defer close(done)
	defer cancel()

	countdown := h.clock.NewTicker(CountdownInterval)
	defer countdown.Stop()
	poll := h.clock.NewTicker(PollInterval)
	defer poll.Stop()

	results := make(chan pollOutcome, 1)
	inFlight := false
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-countdown.Chan():
			h.mu.Lock()
			tr := h.machine.Tick(gen, now)
			remaining := h.machine.Remaining()
			h.mu.Unlock()
			if tr == Expired {
				h.expired()
				return
			}
			if h.hooks.OnTick != nil && ctx.Err() == nil {
				h.hooks.OnTick(remaining)
			}
		case now := <-poll.Chan():
			if inFlight {
				continue
			}
			h.mu.Lock()
			ok, tr := h.machine.BeforePoll(gen, now)
			h.mu.Unlock()
			if tr == Expired {
				h.expired()
				return
			}
			if !ok {
				return
			}
			inFlight = true
			go func() {
				res, err := h.backend.Poll(ctx, id)
				results <- pollOutcome{res: res, err: err}
			}()
		case out := <-results:
			inFlight = false
			if ctx.Err() != nil {
				return
			}
			h.mu.Lock()
			tr := h.machine.Observe(gen, out.res, out.err)
			employee := h.machine.Employee()
			h.mu.Unlock()
			switch tr {
			case Succeeded:
				h.logger.Info("qr: session approved", zap.String("session_id", id), zap.String("employee_id", employee.ID))
				if h.hooks.OnSuccess != nil {
					h.hooks.OnSuccess(*employee)
				}
				return
			case Expired:
				h.expired()
				return
			}
			if ctx.Err() != nil {
				return
			}
			if out.err != nil {
				h.logger.Warn("qr: poll failed", zap.String("session_id", id), zap.Error(out.err))
				if h.hooks.OnError != nil {
					h.hooks.OnError(out.err)
				}
			}
		}
	}
}

func (h *Handshake) expired() {
	if h.hooks.OnExpired != nil {
		h.hooks.OnExpired()
	}
}
