package whatsapp

import (
	apphttp "chatlead_backend/internal/http"
	"chatlead_backend/internal/tenant"
	"chatlead_backend/platform/config"
	"chatlead_backend/platform/logger"
)

// Module is the WhatsApp channel bounded context implementing http.Module.
type Module struct {
	handler *Handler
}

// NewModule wires the webhook handler with its collaborators.
func NewModule(cfg interface {
	config.WhatsAppConfig
	config.TenantStoreConfig
}, tenants *tenant.Registry, conversations Conversations, sender Sender, log *logger.Logger) *Module {
	return &Module{
		handler: NewHandler(
			cfg.GetWhatsAppVerifyToken(),
			cfg.GetDefaultTenantID(),
			tenants,
			conversations,
			sender,
			log,
		),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "whatsapp"
}

// RegisterRoutes mounts the Meta webhook endpoints.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Webhook.GET("/whatsapp", m.handler.Verify)
	ctx.Webhook.POST("/whatsapp", m.handler.Receive)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
