package domain

import "time"

// AuditLog is one persisted sign-in related action.
type AuditLog struct {
	ID         string
	OrgID      string
	EmployeeID string
	Action     string
	Channel    string
	IP         string
	Metadata   string
	CreatedAt  time.Time
}
