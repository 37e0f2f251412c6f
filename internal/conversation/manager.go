package conversation

import (
	"context"
	"sync"

	"chatlead_backend/internal/events"
	"chatlead_backend/internal/llm"
	"chatlead_backend/internal/tenant"
	"chatlead_backend/platform/logger"
)

// RouterFactory builds the CRM binding for a tenant. Called once per
// session; the bound connector lives as long as the session does.
type RouterFactory func(t tenant.Config) LeadStore

// ManagerDeps are the shared collaborators handed to every session machine.
type ManagerDeps struct {
	Tenants   *tenant.Registry
	Routers   RouterFactory
	Models    *llm.Registry
	Retriever Retriever
	Bus       events.Bus
	Log       *logger.Logger
}

type sessionKey struct {
	tenantID string
	userID   string
}

// session pairs a machine with its own lock: messages from one user are
// strictly serialized while different users and tenants run in parallel.
type session struct {
	mu      sync.Mutex
	machine *Machine
}

// Manager owns the session map. It is the single entry point the channel
// layer calls.
type Manager struct {
	deps ManagerDeps

	mu       sync.Mutex
	sessions map[sessionKey]*session
}

func NewManager(deps ManagerDeps) *Manager {
	return &Manager{
		deps:     deps,
		sessions: make(map[sessionKey]*session),
	}
}

// HandleMessage routes one inbound message to the user's session machine,
// creating the session on first contact. Unknown tenants return an error for
// the channel layer to log.
func (mg *Manager) HandleMessage(ctx context.Context, tenantID, userID, text string) (string, error) {
	cfg, err := mg.deps.Tenants.Get(tenantID)
	if err != nil {
		return "", err
	}

	s := mg.session(cfg, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.HandleMessage(ctx, text), nil
}

// IsNewUser reports whether no session exists yet for this user, without
// creating one. The channel layer uses it for first-contact branding.
func (mg *Manager) IsNewUser(tenantID, userID string) bool {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	_, ok := mg.sessions[sessionKey{tenantID: tenantID, userID: userID}]
	return !ok
}

// ResetAll drops every session, returning how many were dropped. Called on
// tenant reload so rebuilt configs get fresh CRM bindings.
func (mg *Manager) ResetAll() int {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	dropped := len(mg.sessions)
	mg.sessions = make(map[sessionKey]*session)
	return dropped
}

// Counts reports active sessions per tenant.
func (mg *Manager) Counts() map[string]int {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	counts := make(map[string]int)
	for key := range mg.sessions {
		counts[key.tenantID]++
	}
	return counts
}

func (mg *Manager) session(cfg tenant.Config, userID string) *session {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	key := sessionKey{tenantID: cfg.TenantID, userID: userID}
	if s, ok := mg.sessions[key]; ok {
		return s
	}

	s := &session{machine: NewMachine(cfg.TenantID, userID, Deps{
		CRM:       mg.deps.Routers(cfg),
		Models:    mg.deps.Models,
		Retriever: mg.deps.Retriever,
		Bus:       mg.deps.Bus,
		Log:       mg.deps.Log,
	})}
	mg.sessions[key] = s
	return s
}
