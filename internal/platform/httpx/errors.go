// Package httpx renders errors from the auth core as one JSON envelope with a stable code, an HTTP status
// and the remediation the client should offer.
package httpx

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"workforce-auth/internal/channel"
	"workforce-auth/internal/contact"
	"workforce-auth/internal/identity"
	"workforce-auth/internal/idp"
	"workforce-auth/internal/notify"
	"workforce-auth/internal/qr"
	"workforce-auth/internal/session"
	"workforce-auth/internal/throttle"
	"workforce-auth/internal/verification"
)

// Remediations offered to the client.
const (
	CorrectInput      = "correct_input"
	TryAnotherChannel = "try_another_channel"
	Retry             = "retry"
	RetryLater        = "retry_later"
	Reenter           = "reenter"
	Resend            = "resend"
	RegenerateQR      = "regenerate_qr"
	SignIn            = "sign_in"
)

// Error is the body of the envelope {"error": {...}}.
type Error struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Remediation  string `json:"remediation"`
	Retryable    bool   `json:"retryable"`
	AttemptsLeft *int   `json:"attempts_left,omitempty"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// Envelope wraps Error on the wire.
type Envelope struct {
	Error *Error `json:"error"`
}

// notFoundMessage is shared by not-found and lookup failures so the two cannot be told apart by a user.
const notFoundMessage = "We couldn't find an active employee with those details."

type rule struct {
	target      error
	status      int
	code        string
	message     string
	remediation string
	retryable   bool
}

var rules = []rule{
	{contact.ErrInvalidPhone, http.StatusBadRequest, "invalid_phone", "Enter a valid phone number.", CorrectInput, false},
	{contact.ErrInvalidEmail, http.StatusBadRequest, "invalid_email", "Enter a valid email address.", CorrectInput, false},
	{verification.ErrInvalidCodeFormat, http.StatusBadRequest, "invalid_code_format", "Enter the 6-digit code.", CorrectInput, false},
	{verification.ErrUnsupportedMethod, http.StatusBadRequest, "invalid_request", "This sign-in method does not use codes.", CorrectInput, false},
	{identity.ErrEmployeeNotFound, http.StatusNotFound, "employee_not_found", notFoundMessage, TryAnotherChannel, false},
	{identity.ErrLookupFailed, http.StatusServiceUnavailable, "employee_lookup_failed", notFoundMessage, Retry, true},
	{notify.ErrNoProvider, http.StatusBadGateway, "no_provider_available", "We couldn't send a message right now.", TryAnotherChannel, true},
	{notify.ErrDeliveryFailed, http.StatusBadGateway, "delivery_failed", "We couldn't deliver the message.", TryAnotherChannel, true},
	{verification.ErrCodeExpired, http.StatusGone, "code_expired", "This code has expired. Request a new one.", Resend, false},
	{verification.ErrCodeExhausted, http.StatusTooManyRequests, "code_exhausted", "Too many incorrect attempts. Request a new code.", Resend, false},
	{verification.ErrCodeNotRequested, http.StatusNotFound, "code_not_requested", "No code was requested for this number. Request a new one.", Resend, false},
	{qr.ErrExpired, http.StatusGone, "qr_expired", "This QR code has expired. Generate a new one.", RegenerateQR, false},
	{qr.ErrNotWaiting, http.StatusConflict, "qr_not_waiting", "This QR code was already used.", RegenerateQR, false},
	{qr.ErrNotFound, http.StatusNotFound, "qr_not_found", "This QR code is no longer valid.", RegenerateQR, false},
	{qr.ErrLocalOnly, http.StatusForbidden, "qr_local_only", "This QR code can't be approved from another device. Generate a new one.", RegenerateQR, false},
	{throttle.ErrThrottled, http.StatusTooManyRequests, "too_many_requests", "Too many requests. Wait a moment and try again.", RetryLater, true},
	{channel.ErrChannelDisabled, http.StatusForbidden, "channel_disabled", "Your organization doesn't allow this sign-in method.", TryAnotherChannel, false},
	{idp.ErrLinkInvalid, http.StatusUnauthorized, "link_invalid", "This sign-in link is invalid. Request a new one.", Resend, false},
	{idp.ErrLinkExpired, http.StatusUnauthorized, "link_invalid", "This sign-in link has expired. Request a new one.", Resend, false},
	{idp.ErrLinkUsed, http.StatusUnauthorized, "link_invalid", "This sign-in link was already used. Request a new one.", Resend, false},
	{verification.ErrPendingMismatch, http.StatusUnauthorized, "link_invalid", "This sign-in link belongs to another sign-in. Request a new one.", Resend, false},
	{idp.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "Incorrect username or password.", Reenter, false},
	{session.ErrTeardownFailed, http.StatusServiceUnavailable, "sign_in_incomplete", "We couldn't finish signing you in. Try again.", Retry, true},
}

// Classify maps err to a status and envelope body. Unknown errors become a retryable 500.
func Classify(err error) (int, *Error) {
	var invalid *verification.InvalidCodeError
	if errors.As(err, &invalid) {
		left := invalid.AttemptsLeft
		return http.StatusUnauthorized, &Error{
			Code:         "code_invalid",
			Message:      "That code is incorrect.",
			Remediation:  Reenter,
			AttemptsLeft: &left,
		}
	}
	for _, r := range rules {
		if errors.Is(err, r.target) {
			return r.status, &Error{Code: r.code, Message: r.message, Remediation: r.remediation, Retryable: r.retryable}
		}
	}
	return http.StatusInternalServerError, &Error{
		Code:        "internal",
		Message:     "Something went wrong. Try again.",
		Remediation: Retry,
		Retryable:   true,
	}
}

// Abort writes the envelope for err and stops the handler chain. Server errors are logged with the cause.
func Abort(c *gin.Context, logger *zap.Logger, err error) {
	status, body := Classify(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.String("code", body.Code), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, Envelope{Error: body})
}

// BadRequest aborts with invalid_request for a body or query that failed to bind.
func BadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Envelope{Error: &Error{
		Code:        "invalid_request",
		Message:     message,
		Remediation: CorrectInput,
	}})
}

// Unauthenticated aborts with 401 for endpoints that need an AuthSession.
func Unauthenticated(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Envelope{Error: &Error{
		Code:        "not_signed_in",
		Message:     "Sign in to continue.",
		Remediation: SignIn,
	}})
}
