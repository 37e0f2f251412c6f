// Package tenant provides the tenant registry: loading, caching and lookup of
// per-tenant configuration records. The registry is the sole source of
// per-tenant credentials.
package tenant

// CRMKind selects the CRM backend a tenant pushes leads into.
type CRMKind string

const (
	CRMNone    CRMKind = "none"
	CRMZoho    CRMKind = "zoho"
	CRMHubSpot CRMKind = "hubspot"
)

// Valid reports whether the kind is one of the supported backends.
func (k CRMKind) Valid() bool {
	switch k {
	case CRMNone, CRMZoho, CRMHubSpot:
		return true
	}
	return false
}

// Branding holds tenant-facing presentation settings.
type Branding struct {
	WelcomeMessage string `json:"welcome_message" yaml:"welcome_message"`
	LogoURL        string `json:"logo_url" yaml:"logo_url"`
}

// ZohoCredentials is the OAuth client configuration for Zoho CRM.
type ZohoCredentials struct {
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
	AccountsURL  string `json:"accounts_url" yaml:"accounts_url"`
	APIURL       string `json:"api_url" yaml:"api_url"`
}

// Complete reports whether every field required to talk to Zoho is present.
func (c ZohoCredentials) Complete() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.AccountsURL != "" && c.APIURL != ""
}

// HubSpotCredentials is the static-key configuration for HubSpot.
type HubSpotCredentials struct {
	APIKey string `json:"api_key" yaml:"api_key"`
}

// Complete reports whether the HubSpot key is present.
func (c HubSpotCredentials) Complete() bool {
	return c.APIKey != ""
}

// Config is one tenant's configuration record. Credential blocks for every
// supported CRM are kept even when unused, so switching the CRM kind never
// loses previously entered credentials. Records are immutable once loaded;
// the registry replaces the whole snapshot on reload.
type Config struct {
	TenantID string   `json:"tenant_id" yaml:"tenant_id" validate:"required"`
	Name     string   `json:"name" yaml:"name"`
	CRM      CRMKind  `json:"crm" yaml:"crm"`
	Branding Branding `json:"branding" yaml:"branding"`

	// WhatsAppPhoneNumberID routes inbound webhook traffic to this tenant.
	WhatsAppPhoneNumberID string `json:"whatsapp_phone_number_id,omitempty" yaml:"whatsapp_phone_number_id"`

	Zoho    ZohoCredentials    `json:"zoho" yaml:"zoho"`
	HubSpot HubSpotCredentials `json:"hubspot" yaml:"hubspot"`
}

// Redacted returns a copy safe for listing over the admin API: secrets are
// masked, presence is preserved.
func (c Config) Redacted() Config {
	out := c
	if out.Zoho.ClientSecret != "" {
		out.Zoho.ClientSecret = "********"
	}
	if out.HubSpot.APIKey != "" {
		out.HubSpot.APIKey = "********"
	}
	return out
}
