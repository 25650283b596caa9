package domain

import "time"

// Auth event types.
const (
	EventCodeSent      = "code_sent"
	EventCodeVerified  = "code_verified"
	EventCodeRejected  = "code_rejected"
	EventFallbackUsed  = "fallback_used"
	EventMagicLinkSent = "magic_link_sent"
	EventQRCreated     = "qr_created"
	EventQRApproved    = "qr_approved"
	EventQRConsumed    = "qr_consumed"
	EventQRExpired     = "qr_expired"
	EventSignedIn      = "signed_in"
	EventSignedOut     = "signed_out"
)

// AuthEvent is one entry of the auth event stream. Addresses are masked before they get here;
// codes, tokens and passwords never do.
type AuthEvent struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	OrgID      string            `json:"org_id,omitempty"`
	EmployeeID string            `json:"employee_id,omitempty"`
	Channel    string            `json:"channel,omitempty"`
	Provider   string            `json:"provider,omitempty"`
	Outcome    string            `json:"outcome,omitempty"`
	Address    string            `json:"address,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
