// Package handler exposes the current AuthSession, its recent activity and sign-out.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	auditdomain "workforce-auth/internal/audit/domain"
	"workforce-auth/internal/platform/httpx"
	"workforce-auth/internal/server/middleware"
	sessiondomain "workforce-auth/internal/session/domain"
)

// Sessions is satisfied by *session.Completer.
type Sessions interface {
	Current(ctx context.Context) (*sessiondomain.AuthSession, error)
	SignOut(ctx context.Context) error
}

// ActivityLister is satisfied by the audit repositories.
type ActivityLister interface {
	ListByEmployee(ctx context.Context, employeeID string, limit int) ([]*auditdomain.AuditLog, error)
}

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

// Activity is one audit entry as shown to the signed-in employee.
type Activity struct {
	Action    string    `json:"action"`
	Channel   string    `json:"channel,omitempty"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Handler struct {
	sessions Sessions
	activity ActivityLister
	logger   *zap.Logger
}

// NewHandler returns a Handler. activity may be nil, which disables GET /session/activity.
func NewHandler(sessions Sessions, activity ActivityLister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sessions: sessions, activity: activity, logger: logger}
}

func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("/session", h.Get)
	g.DELETE("/session", h.Delete)
	if h.activity != nil {
		g.GET("/session/activity", middleware.RequireSession(), h.Activity)
	}
}

// Get returns {"session": ...} or 401 when nobody is signed in.
func (h *Handler) Get(c *gin.Context) {
	s, err := h.sessions.Current(c.Request.Context())
	if err != nil {
		httpx.Abort(c, h.logger, err)
		return
	}
	if s == nil {
		httpx.Unauthenticated(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s})
}

// Delete signs out. It succeeds whether or not a session existed.
func (h *Handler) Delete(c *gin.Context) {
	if err := h.sessions.SignOut(c.Request.Context()); err != nil {
		httpx.Abort(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Activity lists the signed-in employee's recent sign-ins, sign-outs and approvals, newest first.
// ?limit= is clamped to 1..100. The route runs behind LoadSession and RequireSession.
func (h *Handler) Activity(c *gin.Context) {
	s, _ := middleware.Session(c)
	limit := defaultActivityLimit
	if v, err := strconv.Atoi(c.Query("limit")); err == nil {
		limit = min(max(v, 1), maxActivityLimit)
	}
	logs, err := h.activity.ListByEmployee(c.Request.Context(), s.Employee.ID, limit)
	if err != nil {
		httpx.Abort(c, h.logger, err)
		return
	}
	out := make([]Activity, 0, len(logs))
	for _, l := range logs {
		out = append(out, Activity{Action: l.Action, Channel: l.Channel, IP: l.IP, CreatedAt: l.CreatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"activity": out})
}
