// Package admin exposes the operational endpoints: tenant reload, redacted
// tenant listing and session counts. All routes sit behind the admin token
// guard installed by the router.
package admin

import (
	"context"
	"net/http"

	"chatlead_backend/internal/events"
	apphttp "chatlead_backend/internal/http"
	"chatlead_backend/internal/tenant"
	"chatlead_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// Sessions is the slice of the conversation manager the admin surface needs.
type Sessions interface {
	ResetAll() int
	Counts() map[string]int
}

// TokenManagers invalidates cached OAuth managers after a reload.
type TokenManagers interface {
	Reset()
}

// Module is the admin bounded context implementing http.Module.
type Module struct {
	handler *Handler
}

// NewModule wires the admin handler.
func NewModule(tenants *tenant.Registry, sessions Sessions, managers TokenManagers, bus events.Bus, log *logger.Logger) *Module {
	return &Module{handler: &Handler{
		tenants:  tenants,
		sessions: sessions,
		managers: managers,
		bus:      bus,
		log:      log,
	}}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "admin"
}

// RegisterRoutes mounts the admin routes on the guarded group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Admin.POST("/tenants/reload", m.handler.ReloadTenants)
	ctx.Admin.GET("/tenants", m.handler.ListTenants)
	ctx.Admin.GET("/sessions", m.handler.SessionCounts)
}

// Handler implements the admin endpoints.
type Handler struct {
	tenants  *tenant.Registry
	sessions Sessions
	managers TokenManagers
	bus      events.Bus
	log      *logger.Logger
}

// ReloadTenants re-reads the tenants file, drops all sessions so rebuilt
// configs take effect and resets cached token managers.
func (h *Handler) ReloadTenants(c *gin.Context) {
	if err := h.tenants.Reload(c.Request.Context()); err != nil {
		h.log.Error("tenant reload failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reload failed, previous configuration still active"})
		return
	}

	dropped := h.sessions.ResetAll()
	if h.managers != nil {
		h.managers.Reset()
	}

	count := h.tenants.Count()
	if h.bus != nil {
		h.bus.Publish(context.Background(), events.TenantConfigReloaded{
			BaseEvent: events.NewBaseEvent(),
			Count:     count,
		})
	}

	h.log.Info("tenant configuration reloaded", "tenants", count, "sessions_dropped", dropped)
	c.JSON(http.StatusOK, gin.H{"tenants": count, "sessions_dropped": dropped})
}

// ListTenants returns the loaded tenants with credentials masked.
func (h *Handler) ListTenants(c *gin.Context) {
	all := h.tenants.All()
	redacted := make([]tenant.Config, 0, len(all))
	for _, cfg := range all {
		redacted = append(redacted, cfg.Redacted())
	}
	c.JSON(http.StatusOK, gin.H{"tenants": redacted})
}

// SessionCounts reports active conversation sessions per tenant.
func (h *Handler) SessionCounts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.sessions.Counts()})
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
