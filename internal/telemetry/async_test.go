package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"workforce-auth/internal/telemetry/domain"
)

// chanEmitter implements EventEmitter and hands every event to a channel.
type chanEmitter struct {
	events chan *domain.AuthEvent
	err    error
}

func newChanEmitter() *chanEmitter {
	return &chanEmitter{events: make(chan *domain.AuthEvent, 16)}
}

func (c *chanEmitter) Emit(ctx context.Context, event *domain.AuthEvent) error {
	c.events <- event
	return c.err
}

func (c *chanEmitter) next(t *testing.T) *domain.AuthEvent {
	t.Helper()
	select {
	case ev := <-c.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestEmitAsync_NilEmitterOrEvent(t *testing.T) {
	EmitAsync(nil, nil, &domain.AuthEvent{Type: domain.EventSignedIn})
	em := newChanEmitter()
	EmitAsync(em, nil, nil)
	select {
	case ev := <-em.events:
		t.Errorf("unexpected event %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestEmitAsync_DeliversEvent(t *testing.T) {
	em := newChanEmitter()
	EmitAsync(em, nil, &domain.AuthEvent{Type: domain.EventSignedIn, EmployeeID: "e1"})
	if ev := em.next(t); ev.EmployeeID != "e1" {
		t.Errorf("event = %+v", ev)
	}
}

func TestEmitAsync_LogsErrors(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	em := newChanEmitter()
	em.err = errors.New("kafka down")
	EmitAsync(em, zap.New(core), &domain.AuthEvent{Type: domain.EventCodeSent})
	em.next(t)

	deadline := time.Now().Add(2 * time.Second)
	for logs.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if logs.Len() != 1 {
		t.Fatalf("logged %d entries, want 1", logs.Len())
	}
}

type recordingEmitter struct {
	mu  sync.Mutex
	n   int
	err error
}

func (r *recordingEmitter) Emit(ctx context.Context, event *domain.AuthEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n++
	return r.err
}

func TestMulti(t *testing.T) {
	a := &recordingEmitter{}
	b := &recordingEmitter{err: errors.New("b failed")}
	m := Multi(a, nil, b)
	err := m.Emit(context.Background(), &domain.AuthEvent{Type: domain.EventSignedOut})
	if err == nil || err.Error() != "b failed" {
		t.Errorf("err = %v, want b failed", err)
	}
	if a.n != 1 || b.n != 1 {
		t.Errorf("calls a=%d b=%d, want 1 each", a.n, b.n)
	}
}
