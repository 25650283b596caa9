package domain

import "time"

// ChannelPolicy is an organization's Rego module deciding which sign-in channels its employees may use.
// The module must declare package workforce.channels and an allow rule.
type ChannelPolicy struct {
	OrgID     string
	Rules     string
	UpdatedAt time.Time
}
