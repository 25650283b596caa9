package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"workforce-auth/internal/telemetry/domain"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string][]metricdata.DataPoint[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := make(map[string][]metricdata.DataPoint[int64])
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				out[m.Name] = sum.DataPoints
			}
		}
	}
	return out
}

func TestRecorder_CountsAndEmits(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	em := newChanEmitter()
	r, err := NewRecorder(provider.Meter("test"), em, nil)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r.WithClock(clockwork.NewFakeClockAt(now))
	ctx := context.Background()

	r.Record(ctx, domain.AuthEvent{Type: domain.EventCodeSent, Channel: "sms", Provider: "twilio-sms"})
	r.Record(ctx, domain.AuthEvent{Type: domain.EventCodeRejected, Channel: "sms", Outcome: "invalid"})
	r.Record(ctx, domain.AuthEvent{Type: domain.EventFallbackUsed, Channel: "magic_link", Metadata: map[string]string{"from": "sms"}})
	r.Record(ctx, domain.AuthEvent{Type: domain.EventQRExpired, Outcome: "expired"})

	first := em.next(t)
	if first.ID == "" || !first.CreatedAt.Equal(now) {
		t.Errorf("event not stamped: %+v", first)
	}
	for i := 0; i < 3; i++ {
		em.next(t)
	}

	sums := collectSums(t, reader)
	for _, name := range []string{"auth.codes.sent", "auth.verifications", "auth.fallbacks", "auth.qr.transitions"} {
		if len(sums[name]) != 1 || sums[name][0].Value != 1 {
			t.Errorf("%s = %+v, want one point with value 1", name, sums[name])
		}
	}
	from, _ := sums["auth.fallbacks"][0].Attributes.Value(attribute.Key("from"))
	if from.AsString() != "sms" {
		t.Errorf("fallback from = %q, want sms", from.AsString())
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.Record(context.Background(), domain.AuthEvent{Type: domain.EventSignedIn})
}
