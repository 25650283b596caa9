// Package jobs defines the background tasks run by cmd/worker over asynq.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"workforce-auth/internal/notify/push"
)

// TypeSignInAlert notifies an employee's devices about a new sign-in.
const TypeSignInAlert = "auth:signin_alert"

// QueueNotifications is the queue sign-in alerts are enqueued on.
const QueueNotifications = "notifications"

// SignInAlert is the task payload.
type SignInAlert struct {
	EmployeeID      string    `json:"employee_id"`
	Method          string    `json:"method"`
	IP              string    `json:"ip,omitempty"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

// NewSignInAlertTask builds the asynq task for p.
func NewSignInAlertTask(p SignInAlert) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeSignInAlert, b)
	opts := []asynq.Option{
		asynq.Queue(QueueNotifications),
		asynq.MaxRetry(3),
		asynq.Timeout(30 * time.Second),
	}
	return task, opts, nil
}

// TaskClient is the part of *asynq.Client used to enqueue.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer schedules sign-in alerts. A nil *Enqueuer drops them.
type Enqueuer struct {
	client TaskClient
}

func NewEnqueuer(client TaskClient) *Enqueuer {
	return &Enqueuer{client: client}
}

// EnqueueSignInAlert schedules a push for p.
func (e *Enqueuer) EnqueueSignInAlert(ctx context.Context, p SignInAlert) error {
	if e == nil || e.client == nil {
		return nil
	}
	task, opts, err := NewSignInAlertTask(p)
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("jobs: enqueue %s: %w", TypeSignInAlert, err)
	}
	return nil
}

// Pusher delivers a push notification to every device of an employee. push.FCMSender satisfies it.
type Pusher interface {
	Push(ctx context.Context, employeeID, title, body string, data map[string]string) error
}

// SignInAlertHandler processes TypeSignInAlert tasks.
type SignInAlertHandler struct {
	pusher Pusher
	logger *zap.Logger
}

// NewSignInAlertHandler returns a handler. logger may be nil.
func NewSignInAlertHandler(pusher Pusher, logger *zap.Logger) *SignInAlertHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignInAlertHandler{pusher: pusher, logger: logger}
}

// ProcessTask implements asynq.Handler. Employees without devices are skipped; malformed payloads are not retried.
func (h *SignInAlertHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p SignInAlert
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.logger.Error("jobs: invalid sign-in alert payload", zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if p.EmployeeID == "" {
		return fmt.Errorf("jobs: sign-in alert without employee: %w", asynq.SkipRetry)
	}
	body := fmt.Sprintf("New sign-in with %s at %s UTC.", methodLabel(p.Method), p.AuthenticatedAt.UTC().Format("Jan 2 15:04"))
	if p.IP != "" {
		body += " From " + p.IP + "."
	}
	data := map[string]string{
		"type":             "signin_alert",
		"method":           p.Method,
		"authenticated_at": p.AuthenticatedAt.UTC().Format(time.RFC3339),
	}
	err := h.pusher.Push(ctx, p.EmployeeID, "New sign-in", body, data)
	if errors.Is(err, push.ErrNoDevices) {
		h.logger.Debug("jobs: no devices for sign-in alert", zap.String("employee_id", p.EmployeeID))
		return nil
	}
	if err != nil {
		h.logger.Warn("jobs: sign-in alert push failed", zap.String("employee_id", p.EmployeeID), zap.Error(err))
		return err
	}
	return nil
}

func methodLabel(method string) string {
	switch method {
	case "sms":
		return "an SMS code"
	case "whatsapp":
		return "a WhatsApp code"
	case "magic_link":
		return "an email link"
	case "qr_code":
		return "a QR code"
	case "password":
		return "your password"
	}
	return method
}

// NewServeMux registers every task handler. sweep may be nil when QR sessions are not kept in Postgres.
func NewServeMux(alerts *SignInAlertHandler, sweep *QRSweepHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeSignInAlert, alerts)
	if sweep != nil {
		mux.Handle(TypeQRSweep, sweep)
	}
	return mux
}
