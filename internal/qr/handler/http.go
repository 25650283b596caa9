// Package handler exposes both sides of the QR handshake over HTTP.
package handler

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	employeedomain "workforce-auth/internal/employee/domain"
	"workforce-auth/internal/identity"
	"workforce-auth/internal/platform/httpx"
	"workforce-auth/internal/qr"
	qrdomain "workforce-auth/internal/qr/domain"
	"workforce-auth/internal/server/middleware"
	"workforce-auth/internal/session"
	sessiondomain "workforce-auth/internal/session/domain"
	"workforce-auth/internal/verification"
)

const (
	minImageSize = 128
	maxImageSize = 1024
)

// Service is satisfied by *qr.Service.
type Service interface {
	Create(ctx context.Context) (*qr.Ticket, error)
	Poll(ctx context.Context, id string) (*qr.PollResult, error)
	Approve(ctx context.Context, id string, employee employeedomain.Snapshot) error
	Cancel(ctx context.Context, id string) error
	ReferenceURL(id string) string
}

// Completer is satisfied by *session.Completer.
type Completer interface {
	Complete(ctx context.Context, v session.Verified) (*sessiondomain.AuthSession, error)
}

// PasswordVerifier authenticates a scanning device that is not signed in. *verification.Engine satisfies it.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, username, password string) (*verification.Result, error)
}

// ProviderSignOut discards the provider session opened by a password check. idp.Provider satisfies it.
type ProviderSignOut interface {
	SignOut(ctx context.Context, sessionID string) error
}

// EmployeeReader re-reads a signed-in approver. The employee repositories satisfy it.
type EmployeeReader interface {
	GetByID(ctx context.Context, id string) (*employeedomain.Employee, error)
}

// DeviceKeys identifies the calling browser. *session.SCSPersister satisfies it.
type DeviceKeys interface {
	DeviceKey(ctx context.Context) (string, error)
}

// ImageRenderer is satisfied by *qr.Renderer.
type ImageRenderer interface {
	PNG(content string, size int) ([]byte, error)
}

type Handler struct {
	service   Service
	employees EmployeeReader
	devices   DeviceKeys
	completer Completer
	passwords PasswordVerifier
	provider  ProviderSignOut
	renderer  ImageRenderer
	logger    *zap.Logger
}

// NewHandler returns a Handler. logger may be nil.
func NewHandler(service Service, employees EmployeeReader, completer Completer, passwords PasswordVerifier, provider ProviderSignOut, renderer ImageRenderer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:   service,
		employees: employees,
		completer: completer,
		passwords: passwords,
		provider:  provider,
		renderer:  renderer,
		logger:    logger,
	}
}

// WithDevices binds degraded sessions to the browser that created them. Without it such sessions
// cannot be approved at all.
func (h *Handler) WithDevices(d DeviceKeys) *Handler {
	h.devices = d
	return h
}

// deviceContext tags the request context with the calling browser's key.
func (h *Handler) deviceContext(c *gin.Context) (context.Context, error) {
	ctx := c.Request.Context()
	if h.devices == nil {
		return ctx, nil
	}
	key, err := h.devices.DeviceKey(ctx)
	if err != nil {
		return nil, err
	}
	return qr.WithDevice(ctx, key), nil
}

// Register mounts the QR routes on g. The approve route expects the session loader to have run.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.POST("/qr", h.Create)
	g.GET("/qr/:id", h.Poll)
	g.DELETE("/qr/:id", h.Cancel)
	g.GET("/qr/:id/image.png", h.Image)
	g.POST("/qr/:id/approve", h.Approve)
}

// PollResponse is the body of a poll. TimeLeftSeconds is set while waiting; Session once claimed.
type PollResponse struct {
	Status          qrdomain.Status            `json:"status"`
	TimeLeftSeconds int                        `json:"time_left_seconds,omitempty"`
	Session         *sessiondomain.AuthSession `json:"session,omitempty"`
	Reload          bool                       `json:"reload,omitempty"`
}

type approveRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Create starts a handshake for the initiating device.
func (h *Handler) Create(c *gin.Context) {
	ctx, err := h.deviceContext(c)
	if err != nil {
		httpx.Abort(c, h.logger, err)
		return
	}
	t, err := h.service.Create(ctx)
	if err != nil {
		httpx.Abort(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// Poll reports the session state. The poll that claims an approved session signs this device in.
func (h *Handler) Poll(c *gin.Context) {
	ctx := c.Request.Context()
	res, err := h.service.Poll(ctx, c.Param("id"))
	if err != nil {
		httpx.Abort(c, h.logger, err)
		return
	}
	switch res.Status {
	case qrdomain.StatusWaiting:
		c.JSON(http.StatusOK, PollResponse{Status: res.Status, TimeLeftSeconds: int(math.Ceil(res.TimeLeft.Seconds()))})
	case qrdomain.StatusAuthenticated:
		s, err := h.completer.Complete(ctx, session.Verified{Employee: *res.Employee, Method: sessiondomain.MethodQRCode})
		if err != nil {
			httpx.Abort(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, PollResponse{Status: res.Status, Session: s, Reload: true})
	default:
		c.JSON(http.StatusOK, PollResponse{Status: res.Status})
	}
}

// Cancel discards a session the initiating device gave up on.
func (h *Handler) Cancel(c *gin.Context) {
	if err := h.service.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		httpx.Abort(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Image renders the reference URL of a session as a PNG. ?size= is clamped to [128, 1024].
func (h *Handler) Image(c *gin.Context) {
	size := qr.DefaultImageSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpx.BadRequest(c, "size must be a number of pixels.")
			return
		}
		size = min(max(n, minImageSize), maxImageSize)
	}
	png, err := h.renderer.PNG(h.service.ReferenceURL(c.Param("id")), size)
	if err != nil {
		httpx.Abort(c, h.logger, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// Approve is called by the scanning device. A signed-in device approves as its own employee, re-read so
// a deactivated employee cannot approve; otherwise the body must carry a username and password, which are
// checked without signing this device in.
func (h *Handler) Approve(c *gin.Context) {
	ctx, err := h.deviceContext(c)
	if err != nil {
		httpx.Abort(c, h.logger, err)
		return
	}
	var employee employeedomain.Snapshot
	if s, ok := middleware.Session(c); ok {
		e, err := h.employees.GetByID(ctx, s.Employee.ID)
		if err != nil {
			httpx.Abort(c, h.logger, fmt.Errorf("%w: %v", identity.ErrLookupFailed, err))
			return
		}
		if e == nil || !e.Active {
			httpx.Abort(c, h.logger, identity.ErrEmployeeNotFound)
			return
		}
		employee = e.Snapshot()
	} else {
		var req approveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.Unauthenticated(c)
			return
		}
		res, err := h.passwords.VerifyPassword(ctx, req.Username, req.Password)
		if err != nil {
			httpx.Abort(c, h.logger, err)
			return
		}
		if res.ProviderSession != nil && h.provider != nil {
			if err := h.provider.SignOut(ctx, res.ProviderSession.ID); err != nil {
				httpx.Abort(c, h.logger, fmt.Errorf("%w: %v", session.ErrTeardownFailed, err))
				return
			}
		}
		employee = res.Employee.Snapshot()
	}
	if err := h.service.Approve(ctx, c.Param("id"), employee); err != nil {
		httpx.Abort(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"employee": employee})
}
