package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatlead_backend/internal/lead"
	"chatlead_backend/platform/apperr"
	"chatlead_backend/platform/logger"
)

// zohoLeadSource tags leads created through the chat flow inside Zoho.
const zohoLeadSource = "Chat Bot"

// ZohoConnector maps leads onto Zoho CRM's Leads module (API v2). Access
// tokens come from the per-tenant token source; an expired or revoked token
// surfaces as an auth error, never a retry loop here.
type ZohoConnector struct {
	tenantID string
	apiURL   string
	tokens   TokenSource
	http     *http.Client
	log      *logger.Logger
}

// NewZohoConnector builds a connector against the tenant's Zoho data center.
func NewZohoConnector(tenantID, apiURL string, tokens TokenSource, timeout time.Duration, log *logger.Logger) *ZohoConnector {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &ZohoConnector{
		tenantID: tenantID,
		apiURL:   strings.TrimRight(apiURL, "/"),
		tokens:   tokens,
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}
}

func (c *ZohoConnector) Provider() string { return ProviderZoho }

type zohoLead struct {
	ID        string `json:"id"`
	FullName  string `json:"Full_Name"`
	FirstName string `json:"First_Name"`
	LastName  string `json:"Last_Name"`
	Email     string `json:"Email"`
	Phone     string `json:"Phone"`
}

type zohoSearchResponse struct {
	Data []zohoLead `json:"data"`
}

type zohoCreateResponse struct {
	Data []struct {
		Status  string `json:"status"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			ID string `json:"id"`
		} `json:"details"`
	} `json:"data"`
}

// SearchLead queries the Leads module by phone. Zoho answers 204 when
// nothing matches.
func (c *ZohoConnector) SearchLead(ctx context.Context, phone string) (lead.Record, error) {
	endpoint := fmt.Sprintf("%s/crm/v2/Leads/search?phone=%s", c.apiURL, url.QueryEscape(phone))

	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.log.CRMOperation(c.tenantID, ProviderZoho, "search_lead", err)
		return lead.Record{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return lead.Record{}, apperr.NotFound("no lead with this phone number")
	}
	if err := zohoStatusError(resp); err != nil {
		c.log.CRMOperation(c.tenantID, ProviderZoho, "search_lead", err)
		return lead.Record{}, err
	}

	var body zohoSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return lead.Record{}, apperr.Wrap(apperr.KindNetwork, "zoho search returned invalid JSON", err)
	}
	if len(body.Data) == 0 {
		return lead.Record{}, apperr.NotFound("no lead with this phone number")
	}

	c.log.CRMOperation(c.tenantID, ProviderZoho, "search_lead", nil)
	return zohoToRecord(body.Data[0]), nil
}

// CreateLead inserts one lead. Zoho requires Last_Name, so a missing last
// name falls back to the first name, then to "Unknown".
func (c *ZohoConnector) CreateLead(ctx context.Context, record lead.Record) (lead.Record, error) {
	fields := map[string]any{
		"Last_Name":   zohoLastName(record),
		"Lead_Source": zohoLeadSource,
	}
	if record.FirstName != "" {
		fields["First_Name"] = record.FirstName
	}
	if record.Email != "" {
		fields["Email"] = record.Email
	}
	if record.Phone != "" {
		fields["Phone"] = record.Phone
	}

	payload, err := json.Marshal(map[string]any{"data": []map[string]any{fields}})
	if err != nil {
		return lead.Record{}, apperr.Wrap(apperr.KindInternal, "marshal zoho lead", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.apiURL+"/crm/v2/Leads", payload)
	if err != nil {
		c.log.CRMOperation(c.tenantID, ProviderZoho, "create_lead", err)
		return lead.Record{}, err
	}
	defer resp.Body.Close()

	if err := zohoStatusError(resp); err != nil {
		c.log.CRMOperation(c.tenantID, ProviderZoho, "create_lead", err)
		return lead.Record{}, err
	}

	var body zohoCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return lead.Record{}, apperr.Wrap(apperr.KindNetwork, "zoho create returned invalid JSON", err)
	}
	if len(body.Data) == 0 || body.Data[0].Status != "success" {
		msg := "zoho rejected the lead"
		if len(body.Data) > 0 && body.Data[0].Message != "" {
			msg = fmt.Sprintf("zoho rejected the lead: %s", body.Data[0].Message)
		}
		err := apperr.Network(msg)
		c.log.CRMOperation(c.tenantID, ProviderZoho, "create_lead", err)
		return lead.Record{}, err
	}

	record.ExternalID = body.Data[0].Details.ID
	c.log.CRMOperation(c.tenantID, ProviderZoho, "create_lead", nil)
	return record, nil
}

func (c *ZohoConnector) do(ctx context.Context, method, endpoint string, payload []byte) (*http.Response, error) {
	token, err := c.tokens.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "build zoho request", err)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNetwork, "zoho unreachable", err)
	}
	return resp, nil
}

func zohoStatusError(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperr.Auth(fmt.Sprintf("zoho rejected the access token (%d)", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return apperr.Network(fmt.Sprintf("zoho returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}
	return nil
}

func zohoToRecord(z zohoLead) lead.Record {
	record := lead.Record{
		Email:      z.Email,
		Phone:      z.Phone,
		ExternalID: z.ID,
	}
	switch {
	case z.FirstName != "" || z.LastName != "":
		record.FirstName = z.FirstName
		if z.LastName != "" {
			last := z.LastName
			record.LastName = &last
		}
	case z.FullName != "":
		record.FirstName, record.LastName = lead.ParseFullName(z.FullName)
	}
	return record
}

func zohoLastName(record lead.Record) string {
	if record.LastName != nil && *record.LastName != "" {
		return *record.LastName
	}
	if record.FirstName != "" {
		return record.FirstName
	}
	return "Unknown"
}
