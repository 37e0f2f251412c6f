package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatlead_backend/internal/lead"
	"chatlead_backend/platform/apperr"
	"chatlead_backend/platform/logger"
)

func testHubSpot(t *testing.T, handler http.HandlerFunc) (*HubSpotConnector, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := NewHubSpotConnector("lifecode", "hs-key", time.Second, logger.New("development"))
	c.baseURL = srv.URL
	return c, srv
}

func TestHubSpotSearchLead_Found(t *testing.T) {
	c, srv := testHubSpot(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer hs-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req hubspotSearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if len(req.FilterGroups) != 1 || req.FilterGroups[0].Filters[0].PropertyName != "phone" ||
			req.FilterGroups[0].Filters[0].Operator != "EQ" {
			t.Errorf("unexpected filter %+v", req.FilterGroups)
		}
		if req.Limit != 1 {
			t.Errorf("unexpected limit %d", req.Limit)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total": 1, "results": [{"id": "hs-1", "properties": {"firstname": "Jane", "lastname": "Doe", "email": "jane@example.com", "phone": "15551234567"}}]}`))
	})
	defer srv.Close()

	record, err := c.SearchLead(context.Background(), "15551234567")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if record.ExternalID != "hs-1" || record.FirstName != "Jane" || record.Email != "jane@example.com" {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestHubSpotSearchLead_EmptyResultIsNotFound(t *testing.T) {
	c, srv := testHubSpot(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total": 0, "results": []}`))
	})
	defer srv.Close()

	_, err := c.SearchLead(context.Background(), "15551234567")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHubSpotCreateLead_OmitsEmptyProperties(t *testing.T) {
	var got struct {
		Properties map[string]string `json:"properties"`
	}
	c, srv := testHubSpot(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "hs-9"}`))
	})
	defer srv.Close()

	created, err := c.CreateLead(context.Background(), lead.Record{FirstName: "Madonna", Phone: "15551234567"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ExternalID != "hs-9" {
		t.Fatalf("expected external id hs-9, got %q", created.ExternalID)
	}
	if _, ok := got.Properties["lastname"]; ok {
		t.Fatalf("empty lastname should be omitted: %+v", got.Properties)
	}
	if _, ok := got.Properties["email"]; ok {
		t.Fatalf("empty email should be omitted: %+v", got.Properties)
	}
	if got.Properties["firstname"] != "Madonna" || got.Properties["phone"] != "15551234567" {
		t.Fatalf("unexpected properties %+v", got.Properties)
	}
}

func TestHubSpotCreateLead_InvalidKeyIsAuthError(t *testing.T) {
	c, srv := testHubSpot(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	defer srv.Close()

	_, err := c.CreateLead(context.Background(), lead.Record{FirstName: "Jane"})
	if !apperr.Is(err, apperr.KindAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}
