package crm

import (
	"context"

	"chatlead_backend/internal/lead"
	"chatlead_backend/platform/apperr"
)

// NoopConnector is bound for tenants without a CRM (crm "none") and as the
// safe fallback for broken configuration. It performs no I/O: search never
// finds anything and create reports the missing CRM.
type NoopConnector struct{}

func NewNoopConnector() *NoopConnector { return &NoopConnector{} }

func (*NoopConnector) Provider() string { return ProviderNone }

func (*NoopConnector) SearchLead(ctx context.Context, phone string) (lead.Record, error) {
	return lead.Record{}, apperr.NotFound("no CRM configured for tenant")
}

func (*NoopConnector) CreateLead(ctx context.Context, record lead.Record) (lead.Record, error) {
	return lead.Record{}, apperr.Config("no CRM configured for tenant")
}
