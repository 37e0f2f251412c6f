package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"chatlead_backend/platform/apperr"
	"chatlead_backend/platform/logger"
	"chatlead_backend/platform/validator"

	"gopkg.in/yaml.v3"
)

// tenantsFile is the on-disk shape: one entry per tenant.
type tenantsFile struct {
	Tenants []Config `json:"tenants" yaml:"tenants"`
}

// Registry loads and caches tenant configuration records from a JSON or YAML
// file. Lookups are O(1) against an in-memory snapshot that is swapped
// wholesale on each successful load; a malformed source keeps the last good
// snapshot so one corrupt file never takes down a running process.
type Registry struct {
	path string
	val  *validator.Validator
	log  *logger.Logger

	mu       sync.RWMutex
	snapshot map[string]Config
}

// NewRegistry creates a registry reading from the given file path.
func NewRegistry(path string, val *validator.Validator, log *logger.Logger) *Registry {
	return &Registry{
		path:     path,
		val:      val,
		log:      log,
		snapshot: make(map[string]Config),
	}
}

// Load parses the configuration source and swaps in a new snapshot.
// On failure the previous snapshot stays active and the error is returned.
func (r *Registry) Load(ctx context.Context) error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		r.log.Error("tenant config read failed", "path", r.path, "error", err.Error())
		return apperr.Wrap(apperr.KindConfig, "tenant configuration unreadable", err)
	}

	var parsed tenantsFile
	switch strings.ToLower(filepath.Ext(r.path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &parsed)
	default:
		err = json.Unmarshal(data, &parsed)
	}
	if err != nil {
		r.log.Error("tenant config parse failed", "path", r.path, "error", err.Error())
		return apperr.Wrap(apperr.KindConfig, "tenant configuration malformed", err)
	}

	next := make(map[string]Config, len(parsed.Tenants))
	for _, cfg := range parsed.Tenants {
		if err := r.val.Struct(cfg); err != nil {
			r.log.Warn("skipping invalid tenant record", "error", err.Error())
			continue
		}
		if cfg.CRM == "" {
			cfg.CRM = CRMNone
		}
		if !cfg.CRM.Valid() {
			r.log.Warn("tenant has unsupported crm kind, treating as none",
				"tenant_id", cfg.TenantID, "crm", string(cfg.CRM))
			cfg.CRM = CRMNone
		}
		if _, dup := next[cfg.TenantID]; dup {
			r.log.Warn("duplicate tenant id in config, keeping first", "tenant_id", cfg.TenantID)
			continue
		}
		next[cfg.TenantID] = cfg
	}

	r.mu.Lock()
	r.snapshot = next
	r.mu.Unlock()

	r.log.Info("tenant configuration loaded", "path", r.path, "tenants", len(next))
	return nil
}

// Reload is Load under a name that reads better at call sites that refresh
// an already-running registry.
func (r *Registry) Reload(ctx context.Context) error {
	return r.Load(ctx)
}

// Get returns the configuration for a tenant, or a not-found error.
func (r *Registry) Get(tenantID string) (Config, error) {
	r.mu.RLock()
	cfg, ok := r.snapshot[tenantID]
	r.mu.RUnlock()

	if !ok {
		return Config{}, apperr.NotFound(fmt.Sprintf("tenant %q not configured", tenantID))
	}
	return cfg, nil
}

// ByPhoneNumberID resolves a tenant from its WhatsApp phone number id.
func (r *Registry) ByPhoneNumberID(phoneNumberID string) (Config, bool) {
	if phoneNumberID == "" {
		return Config{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cfg := range r.snapshot {
		if cfg.WhatsAppPhoneNumberID == phoneNumberID {
			return cfg, true
		}
	}
	return Config{}, false
}

// All returns every tenant in the current snapshot.
func (r *Registry) All() []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Config, 0, len(r.snapshot))
	for _, cfg := range r.snapshot {
		out = append(out, cfg)
	}
	return out
}

// Count returns the number of configured tenants.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.snapshot)
}
