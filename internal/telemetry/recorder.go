package telemetry

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"workforce-auth/internal/telemetry/domain"
)

// Recorder counts auth events as OTel metrics and forwards them to an EventEmitter asynchronously.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	emitter EventEmitter
	logger  *zap.Logger
	clock   clockwork.Clock

	codesSent     metric.Int64Counter
	verifications metric.Int64Counter
	fallbacks     metric.Int64Counter
	qrTransitions metric.Int64Counter
}

// NewRecorder creates the auth counters on meter. emitter and logger may be nil.
func NewRecorder(meter metric.Meter, emitter EventEmitter, logger *zap.Logger) (*Recorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{emitter: emitter, logger: logger, clock: clockwork.NewRealClock()}
	var err error
	if r.codesSent, err = meter.Int64Counter("auth.codes.sent",
		metric.WithDescription("Codes and links dispatched, by channel and provider.")); err != nil {
		return nil, err
	}
	if r.verifications, err = meter.Int64Counter("auth.verifications",
		metric.WithDescription("Verification attempts, by channel and outcome.")); err != nil {
		return nil, err
	}
	if r.fallbacks, err = meter.Int64Counter("auth.fallbacks",
		metric.WithDescription("Channel fallbacks, by source and target channel.")); err != nil {
		return nil, err
	}
	if r.qrTransitions, err = meter.Int64Counter("auth.qr.transitions",
		metric.WithDescription("QR session state transitions, by resulting status.")); err != nil {
		return nil, err
	}
	return r, nil
}

// WithClock replaces the clock used to stamp events.
func (r *Recorder) WithClock(c clockwork.Clock) *Recorder {
	r.clock = c
	return r
}

// Record updates the matching counter and emits ev. ID and CreatedAt are filled in when empty.
func (r *Recorder) Record(ctx context.Context, ev domain.AuthEvent) {
	if r == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.clock.Now().UTC()
	}
	switch ev.Type {
	case domain.EventCodeSent, domain.EventMagicLinkSent:
		r.codesSent.Add(ctx, 1, metric.WithAttributes(
			attribute.String("channel", ev.Channel), attribute.String("provider", ev.Provider)))
	case domain.EventCodeVerified, domain.EventCodeRejected:
		r.verifications.Add(ctx, 1, metric.WithAttributes(
			attribute.String("channel", ev.Channel), attribute.String("outcome", ev.Outcome)))
	case domain.EventFallbackUsed:
		r.fallbacks.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", ev.Metadata["from"]), attribute.String("to", ev.Channel)))
	case domain.EventQRCreated, domain.EventQRApproved, domain.EventQRConsumed, domain.EventQRExpired:
		r.qrTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", ev.Outcome)))
	}
	EmitAsync(r.emitter, r.logger, &ev)
}
