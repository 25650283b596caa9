// Package handler exposes the send side of every channel over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"workforce-auth/internal/channel"
	"workforce-auth/internal/platform/httpx"
)

// SMSSender is satisfied by *channel.Orchestrator.
type SMSSender interface {
	SendSMS(ctx context.Context, rawPhone, redirectTo string) (*channel.Outcome, error)
}

// PhoneSender is satisfied by *channel.WhatsAppSender.
type PhoneSender interface {
	Send(ctx context.Context, rawPhone string) (*channel.Outcome, error)
}

// LinkSender is satisfied by *channel.MagicLinkSender.
type LinkSender interface {
	Send(ctx context.Context, rawEmail, redirectTo string) (*channel.Outcome, error)
}

// PendingSetter remembers which employee asked for a magic link in this browser.
// *session.SCSPersister satisfies it.
type PendingSetter interface {
	SetPending(ctx context.Context, employeeID string)
}

// Handler serves /v1/auth/{sms,whatsapp,magic-link}/send.
type Handler struct {
	sms           SMSSender
	whatsapp      PhoneSender
	links         LinkSender
	pending       PendingSetter
	publicBaseURL string
	logger        *zap.Logger
}

// NewHandler returns a Handler. pending and logger may be nil.
func NewHandler(sms SMSSender, whatsapp PhoneSender, links LinkSender, pending PendingSetter, publicBaseURL string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sms: sms, whatsapp: whatsapp, links: links, pending: pending, publicBaseURL: publicBaseURL, logger: logger}
}

// Register mounts the routes on g.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.POST("/sms/send", h.SendSMS)
	g.POST("/whatsapp/send", h.SendWhatsApp)
	g.POST("/magic-link/send", h.SendMagicLink)
}

type phoneRequest struct {
	Phone      string `json:"phone"`
	RedirectTo string `json:"redirect_to"`
}

type emailRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to"`
}

// SendSMS sends a code by SMS. When SMS delivery fails the response may instead describe a magic link,
// with fallback_from set to "sms".
func (h *Handler) SendSMS(c *gin.Context) {
	var req phoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BadRequest(c, "Request body must be JSON with a phone field.")
		return
	}
	redirect, ok := httpx.SafeRedirect(req.RedirectTo, h.publicBaseURL)
	if !ok {
		httpx.BadRequest(c, "redirect_to must be a path on this site.")
		return
	}
	out, err := h.sms.SendSMS(c.Request.Context(), req.Phone, redirect)
	if err != nil {
		httpx.Abort(c, h.logger, err)
		return
	}
	if out.Channel == channel.MagicLink {
		h.rememberPending(c, out)
	}
	c.JSON(http.StatusOK, out)
}

// SendWhatsApp sends a code by WhatsApp over the configured provider chain.
func (h *Handler) SendWhatsApp(c *gin.Context) {
	var req phoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BadRequest(c, "Request body must be JSON with a phone field.")
		return
	}
	out, err := h.whatsapp.Send(c.Request.Context(), req.Phone)
	if err != nil {
		httpx.Abort(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// SendMagicLink emails a sign-in link and remembers the employee as pending for this browser.
func (h *Handler) SendMagicLink(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BadRequest(c, "Request body must be JSON with an email field.")
		return
	}
	redirect, ok := httpx.SafeRedirect(req.RedirectTo, h.publicBaseURL)
	if !ok {
		httpx.BadRequest(c, "redirect_to must be a path on this site.")
		return
	}
	out, err := h.links.Send(c.Request.Context(), req.Email, redirect)
	if err != nil {
		httpx.Abort(c, h.logger, err)
		return
	}
	h.rememberPending(c, out)
	c.JSON(http.StatusOK, out)
}

func (h *Handler) rememberPending(c *gin.Context, out *channel.Outcome) {
	if h.pending != nil && out.Employee != nil {
		h.pending.SetPending(c.Request.Context(), out.Employee.ID)
	}
}
