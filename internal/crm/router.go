package crm

import (
	"context"
	"time"

	"chatlead_backend/internal/lead"
	"chatlead_backend/internal/tenant"
	"chatlead_backend/platform/logger"
)

// ZohoTokenFactory builds the access-token source for a Zoho tenant.
type ZohoTokenFactory func(t tenant.Config) TokenSource

// Router binds exactly one connector per tenant, chosen once at construction
// from the tenant's CRM kind and credential completeness. Misconfiguration
// never raises: the router logs the cause and falls back to the no-op
// connector. Rebinding happens only on tenant reload, when sessions and
// their routers are dropped.
type Router struct {
	tenantID  string
	connector Connector
}

// NewRouter inspects the tenant config and binds a connector.
func NewRouter(t tenant.Config, zohoTokens ZohoTokenFactory, timeout time.Duration, log *logger.Logger) *Router {
	return &Router{
		tenantID:  t.TenantID,
		connector: bind(t, zohoTokens, timeout, log),
	}
}

func bind(t tenant.Config, zohoTokens ZohoTokenFactory, timeout time.Duration, log *logger.Logger) Connector {
	switch t.CRM {
	case tenant.CRMZoho:
		if !t.Zoho.Complete() {
			log.Warn("zoho credentials incomplete, using no-op connector", "tenant_id", t.TenantID)
			return NewNoopConnector()
		}
		if zohoTokens == nil {
			log.Warn("no token source available, using no-op connector", "tenant_id", t.TenantID)
			return NewNoopConnector()
		}
		return NewZohoConnector(t.TenantID, t.Zoho.APIURL, zohoTokens(t), timeout, log)

	case tenant.CRMHubSpot:
		if !t.HubSpot.Complete() {
			log.Warn("hubspot credentials incomplete, using no-op connector", "tenant_id", t.TenantID)
			return NewNoopConnector()
		}
		return NewHubSpotConnector(t.TenantID, t.HubSpot.APIKey, timeout, log)

	case tenant.CRMNone:
		return NewNoopConnector()

	default:
		log.Warn("unknown CRM kind, using no-op connector",
			"tenant_id", t.TenantID, "crm", string(t.CRM))
		return NewNoopConnector()
	}
}

// Provider reports which connector the router bound.
func (r *Router) Provider() string { return r.connector.Provider() }

func (r *Router) SearchLead(ctx context.Context, phone string) (lead.Record, error) {
	return r.connector.SearchLead(ctx, phone)
}

func (r *Router) CreateLead(ctx context.Context, record lead.Record) (lead.Record, error) {
	return r.connector.CreateLead(ctx, record)
}
