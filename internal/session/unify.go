// Package session turns a verified identity into the canonical AuthSession, stores it under one well-known
// key and runs the post sign-in side effects.
package session

import (
	"time"

	employeedomain "workforce-auth/internal/employee/domain"
	"workforce-auth/internal/session/domain"
)

// Unify builds the AuthSession for employee authenticated by method at now. It performs no I/O.
func Unify(employee employeedomain.Snapshot, method domain.AuthMethod, now time.Time) domain.AuthSession {
	return domain.AuthSession{
		Employee:        employee,
		AuthMethod:      method,
		AuthenticatedAt: now.UTC(),
	}
}
