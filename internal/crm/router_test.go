package crm

import (
	"context"
	"testing"
	"time"

	"chatlead_backend/internal/lead"
	"chatlead_backend/internal/tenant"
	"chatlead_backend/platform/apperr"
	"chatlead_backend/platform/logger"
)

func TestRouter_NoneBindsNoop(t *testing.T) {
	r := NewRouter(tenant.Config{TenantID: "t1", CRM: tenant.CRMNone}, nil, time.Second, logger.New("development"))

	if r.Provider() != ProviderNone {
		t.Fatalf("expected noop, got %s", r.Provider())
	}

	// No network calls: search finds nothing, create reports the missing CRM.
	if _, err := r.SearchLead(context.Background(), "15551234567"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := r.CreateLead(context.Background(), lead.Record{FirstName: "Jane"}); !apperr.Is(err, apperr.KindConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestRouter_IncompleteZohoCredentialsFallBack(t *testing.T) {
	cfg := tenant.Config{
		TenantID: "t1",
		CRM:      tenant.CRMZoho,
		Zoho:     tenant.ZohoCredentials{ClientID: "cid"}, // missing secret and URLs
	}

	r := NewRouter(cfg, nil, time.Second, logger.New("development"))
	if r.Provider() != ProviderNone {
		t.Fatalf("expected noop fallback, got %s", r.Provider())
	}
}

func TestRouter_BindsZoho(t *testing.T) {
	cfg := tenant.Config{
		TenantID: "t1",
		CRM:      tenant.CRMZoho,
		Zoho: tenant.ZohoCredentials{
			ClientID:     "cid",
			ClientSecret: "sec",
			AccountsURL:  "https://accounts.zoho.example",
			APIURL:       "https://api.zoho.example",
		},
	}
	factory := func(t tenant.Config) TokenSource { return staticTokens{token: "at-1"} }

	r := NewRouter(cfg, factory, time.Second, logger.New("development"))
	if r.Provider() != ProviderZoho {
		t.Fatalf("expected zoho, got %s", r.Provider())
	}
}

func TestRouter_BindsHubSpot(t *testing.T) {
	cfg := tenant.Config{
		TenantID: "t1",
		CRM:      tenant.CRMHubSpot,
		HubSpot:  tenant.HubSpotCredentials{APIKey: "hs-key"},
	}

	r := NewRouter(cfg, nil, time.Second, logger.New("development"))
	if r.Provider() != ProviderHubSpot {
		t.Fatalf("expected hubspot, got %s", r.Provider())
	}
}

func TestRouter_IncompleteHubSpotFallsBack(t *testing.T) {
	cfg := tenant.Config{TenantID: "t1", CRM: tenant.CRMHubSpot}

	r := NewRouter(cfg, nil, time.Second, logger.New("development"))
	if r.Provider() != ProviderNone {
		t.Fatalf("expected noop fallback, got %s", r.Provider())
	}
}
