package oauth

import (
	"context"
	"sync"
	"time"

	"chatlead_backend/internal/events"
	"chatlead_backend/internal/tenant"
	"chatlead_backend/platform/logger"
)

// Hub caches one Manager per tenant so every caller shares the same token
// cache and single-flight group.
type Hub struct {
	store   TokenStore
	timeout time.Duration
	bus     events.Bus
	log     *logger.Logger

	mu       sync.Mutex
	managers map[string]*Manager
}

// NewHub creates the manager cache on top of one token store.
func NewHub(store TokenStore, timeout time.Duration, bus events.Bus, log *logger.Logger) *Hub {
	return &Hub{
		store:    store,
		timeout:  timeout,
		bus:      bus,
		log:      log,
		managers: make(map[string]*Manager),
	}
}

// Zoho returns the tenant's Zoho token manager, creating it on first use.
func (h *Hub) Zoho(t tenant.Config) *Manager {
	key := t.TenantID + ":zoho"

	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.managers[key]; ok {
		return m
	}

	m := NewManager(ManagerConfig{
		TenantID:     t.TenantID,
		Provider:     "zoho",
		ClientID:     t.Zoho.ClientID,
		ClientSecret: t.Zoho.ClientSecret,
		AccountsURL:  t.Zoho.AccountsURL,
		Store:        h.store,
		Timeout:      h.timeout,
		Bus:          h.bus,
		Log:          h.log,
	})
	h.managers[key] = m
	return m
}

// Warm refreshes the tenant's access token ahead of demand so the first
// chat message after an idle period does not pay the refresh round trip.
func (h *Hub) Warm(ctx context.Context, t tenant.Config) error {
	_, err := h.Zoho(t).GetAccessToken(ctx)
	return err
}

// Reset drops all cached managers. Called on tenant reload so credential
// changes take effect.
func (h *Hub) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.managers = make(map[string]*Manager)
}
