package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatlead_backend/internal/lead"
	"chatlead_backend/platform/apperr"
	"chatlead_backend/platform/logger"
)

const hubspotBaseURL = "https://api.hubapi.com"

// HubSpotConnector maps leads onto HubSpot contacts (CRM API v3) using a
// private-app access token.
type HubSpotConnector struct {
	tenantID string
	baseURL  string
	apiKey   string
	http     *http.Client
	log      *logger.Logger
}

// NewHubSpotConnector builds a connector with the tenant's private-app key.
func NewHubSpotConnector(tenantID, apiKey string, timeout time.Duration, log *logger.Logger) *HubSpotConnector {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HubSpotConnector{
		tenantID: tenantID,
		baseURL:  hubspotBaseURL,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}
}

func (c *HubSpotConnector) Provider() string { return ProviderHubSpot }

type hubspotSearchRequest struct {
	FilterGroups []hubspotFilterGroup `json:"filterGroups"`
	Properties   []string             `json:"properties"`
	Limit        int                  `json:"limit"`
}

type hubspotFilterGroup struct {
	Filters []hubspotFilter `json:"filters"`
}

type hubspotFilter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type hubspotContact struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

type hubspotSearchResponse struct {
	Total   int              `json:"total"`
	Results []hubspotContact `json:"results"`
}

// SearchLead looks up a contact whose phone property equals the given
// number, returning at most one match.
func (c *HubSpotConnector) SearchLead(ctx context.Context, phone string) (lead.Record, error) {
	search := hubspotSearchRequest{
		FilterGroups: []hubspotFilterGroup{{
			Filters: []hubspotFilter{{PropertyName: "phone", Operator: "EQ", Value: phone}},
		}},
		Properties: []string{"firstname", "lastname", "email", "phone"},
		Limit:      1,
	}

	resp, err := c.post(ctx, "/crm/v3/objects/contacts/search", search)
	if err != nil {
		c.log.CRMOperation(c.tenantID, ProviderHubSpot, "search_lead", err)
		return lead.Record{}, err
	}
	defer resp.Body.Close()

	if err := c.statusError(resp); err != nil {
		c.log.CRMOperation(c.tenantID, ProviderHubSpot, "search_lead", err)
		return lead.Record{}, err
	}

	var body hubspotSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return lead.Record{}, apperr.Wrap(apperr.KindNetwork, "hubspot search returned invalid JSON", err)
	}
	if len(body.Results) == 0 {
		return lead.Record{}, apperr.NotFound("no contact with this phone number")
	}

	c.log.CRMOperation(c.tenantID, ProviderHubSpot, "search_lead", nil)
	return hubspotToRecord(body.Results[0]), nil
}

// CreateLead creates a contact with the non-empty properties only.
func (c *HubSpotConnector) CreateLead(ctx context.Context, record lead.Record) (lead.Record, error) {
	properties := map[string]string{}
	if record.FirstName != "" {
		properties["firstname"] = record.FirstName
	}
	if record.LastName != nil && *record.LastName != "" {
		properties["lastname"] = *record.LastName
	}
	if record.Email != "" {
		properties["email"] = record.Email
	}
	if record.Phone != "" {
		properties["phone"] = record.Phone
	}

	resp, err := c.post(ctx, "/crm/v3/objects/contacts", map[string]any{"properties": properties})
	if err != nil {
		c.log.CRMOperation(c.tenantID, ProviderHubSpot, "create_lead", err)
		return lead.Record{}, err
	}
	defer resp.Body.Close()

	if err := c.statusError(resp); err != nil {
		c.log.CRMOperation(c.tenantID, ProviderHubSpot, "create_lead", err)
		return lead.Record{}, err
	}

	var created hubspotContact
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return lead.Record{}, apperr.Wrap(apperr.KindNetwork, "hubspot create returned invalid JSON", err)
	}

	record.ExternalID = created.ID
	c.log.CRMOperation(c.tenantID, ProviderHubSpot, "create_lead", nil)
	return record, nil
}

func (c *HubSpotConnector) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "marshal hubspot payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "build hubspot request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNetwork, "hubspot unreachable", err)
	}
	return resp, nil
}

func (c *HubSpotConnector) statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperr.Auth(fmt.Sprintf("hubspot rejected the API key (%d)", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return apperr.Network(fmt.Sprintf("hubspot returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}
	return nil
}

func hubspotToRecord(contact hubspotContact) lead.Record {
	record := lead.Record{
		FirstName:  contact.Properties["firstname"],
		Email:      contact.Properties["email"],
		Phone:      contact.Properties["phone"],
		ExternalID: contact.ID,
	}
	if last := contact.Properties["lastname"]; last != "" {
		record.LastName = &last
	}
	return record
}
