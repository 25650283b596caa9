// Package producer defines the interface for publishing auth events to a broker (e.g. Kafka).
package producer

import (
	"context"

	"workforce-auth/internal/telemetry/domain"
)

// Producer publishes auth events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit publishes a single event. Implementations may block briefly; call from a goroutine if needed.
	Emit(ctx context.Context, event *domain.AuthEvent) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
