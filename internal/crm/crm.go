// Package crm talks to the tenant's CRM. Every provider implements the same
// two operations: look up a lead by phone and create a lead. A Router picks
// the connector for a tenant from its configuration.
package crm

import (
	"context"

	"chatlead_backend/internal/lead"
)

// Provider names as they appear in tenant configuration.
const (
	ProviderZoho    = "zoho"
	ProviderHubSpot = "hubspot"
	ProviderNone    = "none"
)

// Connector is one CRM integration. SearchLead returns a not-found error
// when no lead matches; CreateLead returns the record with the
// provider-side id filled in.
type Connector interface {
	Provider() string
	SearchLead(ctx context.Context, phone string) (lead.Record, error)
	CreateLead(ctx context.Context, record lead.Record) (lead.Record, error)
}

// TokenSource supplies a currently valid access token for OAuth providers.
type TokenSource interface {
	GetAccessToken(ctx context.Context) (string, error)
}
