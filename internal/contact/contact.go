// Package contact normalizes and masks the phone numbers and email addresses employees sign in with.
package contact

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrInvalidPhone = errors.New("invalid phone number")
	ErrInvalidEmail = errors.New("invalid email address")
)

var (
	e164     = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	nonDigit = regexp.MustCompile(`\D`)
	email    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// NormalizePhone coerces raw into E.164. Input already in E.164 passes through unchanged.
// Otherwise non-digits are stripped: 10 digits get defaultCountryCode prepended, 11 digits with a
// leading 1 get a "+". Anything else is ErrInvalidPhone.
func NormalizePhone(raw, defaultCountryCode string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if e164.MatchString(trimmed) {
		return trimmed, nil
	}
	digits := nonDigit.ReplaceAllString(trimmed, "")
	var out string
	switch {
	case len(digits) == 10:
		cc := strings.TrimPrefix(strings.TrimSpace(defaultCountryCode), "+")
		if cc == "" {
			cc = "1"
		}
		out = "+" + cc + digits
	case len(digits) == 11 && digits[0] == '1':
		out = "+" + digits
	default:
		return "", ErrInvalidPhone
	}
	if !e164.MatchString(out) {
		return "", ErrInvalidPhone
	}
	return out, nil
}

// NormalizeEmail trims and lowercases raw and checks its shape.
func NormalizeEmail(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || !email.MatchString(s) {
		return "", ErrInvalidEmail
	}
	return s, nil
}

// MaskPhone hides all but the last four digits ("+*******4567").
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	var b strings.Builder
	for i, r := range phone {
		switch {
		case i == 0 && r == '+':
			b.WriteRune(r)
		case i >= len(phone)-4:
			b.WriteRune(r)
		default:
			b.WriteByte('*')
		}
	}
	return b.String()
}

// MaskEmail keeps the first character of the local part and the domain ("a***@acme.com").
func MaskEmail(addr string) string {
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 {
		return "***"
	}
	return addr[:1] + "***" + addr[at:]
}
