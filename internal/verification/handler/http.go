// Package handler exposes code, link and password verification over HTTP. Every successful check is
// handed to the session completer, so all channels end in the same AuthSession.
package handler

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"workforce-auth/internal/platform/httpx"
	"workforce-auth/internal/session"
	sessiondomain "workforce-auth/internal/session/domain"
	"workforce-auth/internal/verification"
)

// SignInPath is where a failed magic-link callback sends the browser, with ?error=<code>.
const SignInPath = "/signin"

// Verifier is satisfied by *verification.Engine.
type Verifier interface {
	VerifyCode(ctx context.Context, method sessiondomain.AuthMethod, rawPhone, code string) (*verification.Result, error)
	VerifyMagicLink(ctx context.Context, token, pendingEmployeeID string) (*verification.Result, error)
	VerifyPassword(ctx context.Context, username, password string) (*verification.Result, error)
}

// Completer is satisfied by *session.Completer.
type Completer interface {
	Complete(ctx context.Context, v session.Verified) (*sessiondomain.AuthSession, error)
}

// PendingGetter returns the employee that requested a magic link from this browser.
// *session.SCSPersister satisfies it.
type PendingGetter interface {
	Pending(ctx context.Context) string
}

type Handler struct {
	verifier      Verifier
	completer     Completer
	pending       PendingGetter
	publicBaseURL string
	logger        *zap.Logger
}

// NewHandler returns a Handler. pending and logger may be nil.
func NewHandler(verifier Verifier, completer Completer, pending PendingGetter, publicBaseURL string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{verifier: verifier, completer: completer, pending: pending, publicBaseURL: publicBaseURL, logger: logger}
}

func (h *Handler) Register(g *gin.RouterGroup) {
	g.POST("/sms/verify", h.VerifySMS)
	g.POST("/whatsapp/verify", h.VerifyWhatsApp)
	g.GET("/magic-link/callback", h.MagicLinkCallback)
	g.POST("/password", h.Password)
}

type codeRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type passwordRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SignedIn is the success body. Reload tells the client to reload so the new session is picked up.
type SignedIn struct {
	Session *sessiondomain.AuthSession `json:"session"`
	Reload  bool                       `json:"reload"`
}

func (h *Handler) VerifySMS(c *gin.Context) {
	h.verifyCode(c, sessiondomain.MethodSMS)
}

func (h *Handler) VerifyWhatsApp(c *gin.Context) {
	h.verifyCode(c, sessiondomain.MethodWhatsApp)
}

func (h *Handler) verifyCode(c *gin.Context, method sessiondomain.AuthMethod) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BadRequest(c, "Request body must be JSON with phone and code fields.")
		return
	}
	res, err := h.verifier.VerifyCode(c.Request.Context(), method, req.Phone, req.Code)
	if err != nil {
		httpx.Abort(c, h.logger, err)
		return
	}
	h.complete(c, res)
}

// Password signs in with username and password.
func (h *Handler) Password(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BadRequest(c, "Request body must be JSON with username and password fields.")
		return
	}
	res, err := h.verifier.VerifyPassword(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		httpx.Abort(c, h.logger, err)
		return
	}
	h.complete(c, res)
}

func (h *Handler) complete(c *gin.Context, res *verification.Result) {
	s, err := h.completer.Complete(c.Request.Context(), session.FromResult(res))
	if err != nil {
		httpx.Abort(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, SignedIn{Session: s, Reload: true})
}

// MagicLinkCallback is the target of the emailed link. It always answers with a redirect: to the link's
// redirect target on success, to the sign-in page with an error code otherwise.
func (h *Handler) MagicLinkCallback(c *gin.Context) {
	ctx := c.Request.Context()
	var pending string
	if h.pending != nil {
		pending = h.pending.Pending(ctx)
	}
	res, err := h.verifier.VerifyMagicLink(ctx, c.Query("token"), pending)
	if err == nil {
		_, err = h.completer.Complete(ctx, session.FromResult(res))
	}
	if err != nil {
		status, body := httpx.Classify(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("magic link callback failed", zap.Error(err))
		}
		c.Redirect(http.StatusSeeOther, SignInPath+"?error="+url.QueryEscape(body.Code))
		return
	}
	target, ok := httpx.SafeRedirect(res.RedirectTo, h.publicBaseURL)
	if !ok {
		target = "/"
	}
	c.Redirect(http.StatusSeeOther, target)
}
