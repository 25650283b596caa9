package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// TypeQRSweep deletes QR sessions that expired more than QRSweepGrace ago.
const TypeQRSweep = "qr:sweep"

// QueueMaintenance is the queue periodic housekeeping runs on.
const QueueMaintenance = "maintenance"

// QRSweepSpec is the cron spec the worker schedules TypeQRSweep with.
const QRSweepSpec = "@every 5m"

// QRSweepGrace keeps expired sessions around long enough for a last poll to read "expired".
const QRSweepGrace = 10 * time.Minute

// NewQRSweepTask builds the periodic sweep task.
func NewQRSweepTask() (*asynq.Task, []asynq.Option) {
	return asynq.NewTask(TypeQRSweep, nil), []asynq.Option{
		asynq.Queue(QueueMaintenance),
		asynq.MaxRetry(0),
		asynq.Timeout(time.Minute),
		asynq.Unique(4 * time.Minute),
	}
}

// ExpiredSweeper is satisfied by *qr.PostgresStore.
type ExpiredSweeper interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// QRSweepHandler processes TypeQRSweep tasks.
type QRSweepHandler struct {
	store  ExpiredSweeper
	clock  clockwork.Clock
	logger *zap.Logger
}

// NewQRSweepHandler returns a handler. clock and logger may be nil.
func NewQRSweepHandler(store ExpiredSweeper, clock clockwork.Clock, logger *zap.Logger) *QRSweepHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QRSweepHandler{store: store, clock: clock, logger: logger}
}

// ProcessTask implements asynq.Handler.
func (h *QRSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	n, err := h.store.DeleteExpired(ctx, h.clock.Now().Add(-QRSweepGrace))
	if err != nil {
		return fmt.Errorf("jobs: sweep qr sessions: %w", err)
	}
	if n > 0 {
		h.logger.Info("jobs: swept expired qr sessions", zap.Int64("deleted", n))
	}
	return nil
}
