package whatsapp

import (
	"context"
	"net/http"

	"chatlead_backend/internal/tenant"
	"chatlead_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// Conversations is the slice of the conversation manager the handler needs.
type Conversations interface {
	HandleMessage(ctx context.Context, tenantID, userID, text string) (string, error)
	IsNewUser(tenantID, userID string) bool
}

// Sender delivers replies back through the channel.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	SendImage(ctx context.Context, to, imageURL, caption string) error
}

// Handler terminates the Meta webhook. Message payloads always get a 2xx:
// Meta redelivers on anything else, so processing errors are logged, never
// surfaced.
type Handler struct {
	verifyToken     string
	defaultTenantID string
	tenants         *tenant.Registry
	conversations   Conversations
	sender          Sender
	log             *logger.Logger
}

func NewHandler(verifyToken, defaultTenantID string, tenants *tenant.Registry, conversations Conversations, sender Sender, log *logger.Logger) *Handler {
	return &Handler{
		verifyToken:     verifyToken,
		defaultTenantID: defaultTenantID,
		tenants:         tenants,
		conversations:   conversations,
		sender:          sender,
		log:             log,
	}
}

// Verify answers Meta's webhook subscription handshake.
func (h *Handler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "" || token == "" {
		c.String(http.StatusBadRequest, "Missing parameters")
		return
	}
	if mode != "subscribe" || token != h.verifyToken {
		c.String(http.StatusForbidden, "Verification token mismatch")
		return
	}

	h.log.Info("whatsapp webhook verified")
	c.String(http.StatusOK, challenge)
}

// webhookPayload is the slice of Meta's event envelope the bot consumes.
// Status updates arrive in the same shape without a messages array and are
// ignored.
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Receive handles inbound message events.
func (h *Handler) Receive(c *gin.Context) {
	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.log.Warn("unparseable webhook payload", "error", err.Error())
		c.String(http.StatusOK, "EVENT_RECEIVED")
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			cfg := h.resolveTenant(change.Value.Metadata.PhoneNumberID)
			for _, message := range change.Value.Messages {
				if message.Type != "text" {
					continue
				}
				h.dispatch(c.Request.Context(), cfg, message.From, message.Text.Body)
			}
		}
	}

	c.String(http.StatusOK, "EVENT_RECEIVED")
}

func (h *Handler) dispatch(ctx context.Context, cfg tenant.Config, from, text string) {
	if cfg.TenantID == "" {
		h.log.Error("no tenant resolved for inbound message, dropping", "from", from)
		return
	}

	firstContact := h.conversations.IsNewUser(cfg.TenantID, from)

	reply, err := h.conversations.HandleMessage(ctx, cfg.TenantID, from, text)
	if err != nil {
		h.log.Error("message handling failed",
			"tenant_id", cfg.TenantID, "from", from, "error", err.Error())
		return
	}

	if err := h.sender.SendText(ctx, from, reply); err != nil {
		h.log.Error("reply delivery failed",
			"tenant_id", cfg.TenantID, "from", from, "error", err.Error())
	}

	// Brand the first touch with the tenant's logo when one is configured.
	if firstContact && cfg.Branding.LogoURL != "" {
		if err := h.sender.SendImage(ctx, from, cfg.Branding.LogoURL, cfg.Branding.WelcomeMessage); err != nil {
			h.log.Warn("welcome image delivery failed",
				"tenant_id", cfg.TenantID, "from", from, "error", err.Error())
		}
	}
}

// resolveTenant maps the receiving phone number to a tenant, falling back to
// the configured default.
func (h *Handler) resolveTenant(phoneNumberID string) tenant.Config {
	if phoneNumberID != "" {
		if cfg, ok := h.tenants.ByPhoneNumberID(phoneNumberID); ok {
			return cfg
		}
	}
	if h.defaultTenantID != "" {
		if cfg, err := h.tenants.Get(h.defaultTenantID); err == nil {
			return cfg
		}
	}
	return tenant.Config{}
}
