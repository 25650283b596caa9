// Package handler implements the dev-only GET /dev/otp endpoint.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"workforce-auth/internal/channel"
	"workforce-auth/internal/contact"
	"workforce-auth/internal/devotp"
	"workforce-auth/internal/platform/httpx"
)

const devOTPNote = "DEV MODE ONLY"

// Handler reads codes kept by the senders instead of delivering them. Only registered when
// OTP_RETURN_TO_CLIENT is enabled and the environment is not production.
type Handler struct {
	store              devotp.Store
	defaultCountryCode string
}

// NewHandler returns a Handler reading from store.
func NewHandler(store devotp.Store, defaultCountryCode string) *Handler {
	return &Handler{store: store, defaultCountryCode: defaultCountryCode}
}

func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("/otp", h.GetOTP)
}

// GetOTP returns the outstanding code for ?channel=sms|whatsapp&address=<phone>. 404 if missing or expired.
func (h *Handler) GetOTP(c *gin.Context) {
	ch := c.Query("channel")
	if ch != channel.SMS && ch != channel.WhatsApp {
		httpx.BadRequest(c, "channel must be sms or whatsapp.")
		return
	}
	phone, err := contact.NormalizePhone(c.Query("address"), h.defaultCountryCode)
	if err != nil {
		httpx.Abort(c, nil, err)
		return
	}
	otp, ok := h.store.Get(c.Request.Context(), ch, phone)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, httpx.Envelope{Error: &httpx.Error{
			Code:        "otp_not_found",
			Message:     "OTP not found or expired",
			Remediation: httpx.Resend,
		}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"otp": otp, "address": phone, "note": devOTPNote})
}
