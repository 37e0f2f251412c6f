// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"chatlead_backend/platform/events"
	"chatlead_backend/platform/logger"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Lead Domain Events
// =============================================================================

// LeadCreated is published when a lead is pushed into a tenant's CRM.
type LeadCreated struct {
	BaseEvent
	TenantID   string `json:"tenantId"`
	UserID     string `json:"userId"`
	Provider   string `json:"provider"`
	ExternalID string `json:"externalId"`
}

func (e LeadCreated) EventName() string { return "crm.lead.created" }

// LeadIdentified is published when a returning user is matched to an
// existing CRM lead by phone number.
type LeadIdentified struct {
	BaseEvent
	TenantID   string `json:"tenantId"`
	UserID     string `json:"userId"`
	Provider   string `json:"provider"`
	ExternalID string `json:"externalId"`
}

func (e LeadIdentified) EventName() string { return "crm.lead.identified" }

// =============================================================================
// OAuth Domain Events
// =============================================================================

// RefreshTokenInvalidated is published when a provider reports the stored
// refresh token as invalid and it has been deleted, forcing re-authorization.
type RefreshTokenInvalidated struct {
	BaseEvent
	TenantID string `json:"tenantId"`
	Provider string `json:"provider"`
}

func (e RefreshTokenInvalidated) EventName() string { return "oauth.refresh_token.invalidated" }

// TenantAuthorized is published after a successful authorization-code
// exchange seeded a tenant's refresh token.
type TenantAuthorized struct {
	BaseEvent
	TenantID string `json:"tenantId"`
	Provider string `json:"provider"`
}

func (e TenantAuthorized) EventName() string { return "oauth.tenant.authorized" }

// =============================================================================
// Tenant Domain Events
// =============================================================================

// TenantConfigReloaded is published after the registry swapped in a new
// tenant snapshot.
type TenantConfigReloaded struct {
	BaseEvent
	Count int `json:"count"`
}

func (e TenantConfigReloaded) EventName() string { return "tenant.config.reloaded" }
