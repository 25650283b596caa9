package domain

import (
	"time"

	employeedomain "workforce-auth/internal/employee/domain"
)

// AuthMethod names the channel that authenticated a session.
type AuthMethod string

const (
	MethodPassword  AuthMethod = "password"
	MethodSMS       AuthMethod = "sms"
	MethodWhatsApp  AuthMethod = "whatsapp"
	MethodMagicLink AuthMethod = "magic_link"
	MethodQRCode    AuthMethod = "qr_code"
)

// Valid reports whether m is one of the known methods.
func (m AuthMethod) Valid() bool {
	switch m {
	case MethodPassword, MethodSMS, MethodWhatsApp, MethodMagicLink, MethodQRCode:
		return true
	}
	return false
}

// AuthSession is the canonical record every successful sign-in produces, whatever the channel.
// It is stored under one well-known key and replaced by the next sign-in.
type AuthSession struct {
	Employee        employeedomain.Snapshot `json:"employee"`
	AuthMethod      AuthMethod              `json:"auth_method"`
	AuthenticatedAt time.Time               `json:"authenticated_at"`
}
