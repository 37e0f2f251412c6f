// Package oauthflow exposes the browser-facing Zoho authorization flow: a
// redirect to the tenant's consent screen and the callback that trades the
// returned code for tokens.
package oauthflow

import (
	"fmt"
	"net/http"
	"net/url"

	apphttp "chatlead_backend/internal/http"
	"chatlead_backend/internal/oauth"
	"chatlead_backend/internal/tenant"
	"chatlead_backend/platform/httpkit"
	"chatlead_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// zohoScope covers CRM module access for lead search and creation.
const zohoScope = "ZohoCRM.modules.ALL"

// Module is the OAuth authorization bounded context implementing http.Module.
type Module struct {
	handler *Handler
}

// NewModule wires the authorization handler.
func NewModule(tenants *tenant.Registry, managers *oauth.Hub, publicBaseURL string, log *logger.Logger) *Module {
	return &Module{
		handler: &Handler{
			tenants:       tenants,
			managers:      managers,
			publicBaseURL: publicBaseURL,
			log:           log,
		},
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "oauthflow"
}

// RegisterRoutes mounts the flow on the rate-limited /oauth group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.OAuth.GET("/zoho/authorize", m.handler.Authorize)
	ctx.OAuth.GET("/zoho/callback", m.handler.Callback)
}

// Handler implements the two legs of the authorization-code flow. The tenant
// id travels in the OAuth state parameter.
type Handler struct {
	tenants       *tenant.Registry
	managers      *oauth.Hub
	publicBaseURL string
	log           *logger.Logger
}

// Authorize redirects the operator to the tenant's Zoho consent screen.
func (h *Handler) Authorize(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		httpkit.Error(c, http.StatusBadRequest, "tenant_id is required")
		return
	}

	cfg, err := h.tenants.Get(tenantID)
	if err != nil {
		httpkit.Error(c, http.StatusNotFound, "unknown tenant")
		return
	}
	if cfg.CRM != tenant.CRMZoho || !cfg.Zoho.Complete() {
		httpkit.Error(c, http.StatusBadRequest, "tenant has no complete zoho configuration")
		return
	}

	params := url.Values{
		"response_type": {"code"},
		"client_id":     {cfg.Zoho.ClientID},
		"scope":         {zohoScope},
		"redirect_uri":  {h.redirectURI()},
		"access_type":   {"offline"},
		"state":         {cfg.TenantID},
	}
	consentURL := fmt.Sprintf("%s/oauth/v2/auth?%s", cfg.Zoho.AccountsURL, params.Encode())

	h.log.Info("redirecting to zoho consent", "tenant_id", cfg.TenantID)
	c.Redirect(http.StatusFound, consentURL)
}

// Callback receives the authorization code and exchanges it for tokens.
func (h *Handler) Callback(c *gin.Context) {
	if errCode := c.Query("error"); errCode != "" {
		h.log.Warn("zoho consent denied", "error", errCode)
		c.String(http.StatusBadRequest, "Authorization failed: %s", errCode)
		return
	}

	code := c.Query("code")
	tenantID := c.Query("state")
	if code == "" || tenantID == "" {
		c.String(http.StatusBadRequest, "Missing code or state parameter")
		return
	}

	cfg, err := h.tenants.Get(tenantID)
	if err != nil {
		c.String(http.StatusNotFound, "Unknown tenant")
		return
	}

	manager := h.managers.Zoho(cfg)
	if err := manager.ExchangeAuthorizationCode(c.Request.Context(), code, h.redirectURI()); err != nil {
		h.log.Error("authorization code exchange failed", "tenant_id", tenantID, "error", err.Error())
		c.String(http.StatusBadGateway, "Token exchange failed. Check the server logs and try again.")
		return
	}

	c.String(http.StatusOK, "Zoho CRM authorized for tenant %s. You can close this window.", tenantID)
}

func (h *Handler) redirectURI() string {
	return h.publicBaseURL + "/oauth/zoho/callback"
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
