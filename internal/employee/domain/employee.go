package domain

import (
	"errors"
	"strings"
	"time"
)

// Employee is an organization member who can sign in. Only active employees are eligible for any channel.
type Employee struct {
	ID               string
	OrganizationID   string
	OrganizationName string
	FirstName        string
	LastName         string
	Email            string // lowercase; empty when the employee has none
	Phone            string // E.164; empty when the employee has none
	Username         string
	Role             string
	Active           bool
	CanExpense       bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Validate validates the employee for persistence. Returns an error describing the first validation failure.
func (e *Employee) Validate() error {
	if e.ID == "" {
		return errors.New("id is required")
	}
	if e.OrganizationID == "" {
		return errors.New("organization id is required")
	}
	if e.Email == "" && e.Phone == "" && e.Username == "" {
		return errors.New("at least one of email, phone or username is required")
	}
	if e.Role == "" {
		e.Role = "employee"
	}
	return nil
}

// FullName joins first and last name.
func (e *Employee) FullName() string {
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

// OrganizationRef identifies the organization an employee belongs to.
type OrganizationRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Snapshot is the copy of an employee carried inside an AuthSession and relayed through QR sessions.
// It always carries the same field set regardless of the channel that produced it.
type Snapshot struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone"`
	Role           string          `json:"role"`
	Active         bool            `json:"is_active"`
	CanExpense     bool            `json:"can_expense"`
	Organization   OrganizationRef `json:"organization"`
}

// Snapshot copies the session-facing fields of e.
func (e *Employee) Snapshot() Snapshot {
	return Snapshot{
		ID:             e.ID,
		OrganizationID: e.OrganizationID,
		FirstName:      e.FirstName,
		LastName:       e.LastName,
		Email:          e.Email,
		Phone:          e.Phone,
		Role:           e.Role,
		Active:         e.Active,
		CanExpense:     e.CanExpense,
		Organization:   OrganizationRef{ID: e.OrganizationID, Name: e.OrganizationName},
	}
}
