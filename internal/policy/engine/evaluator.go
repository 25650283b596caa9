package engine

import (
	"context"

	"workforce-auth/internal/employee/domain"
)

// Evaluator decides whether an employee may sign in over a channel
// ("sms", "whatsapp", "magic_link", "password", "qr_code").
type Evaluator interface {
	Allowed(ctx context.Context, employee *domain.Employee, channel string) (bool, error)
}
