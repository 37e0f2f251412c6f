package oauthflow

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chatlead_backend/internal/oauth"
	"chatlead_backend/internal/tenant"
	"chatlead_backend/platform/logger"
	"chatlead_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

func testFlow(t *testing.T, accountsURL string) (*gin.Engine, oauth.TokenStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tenants := fmt.Sprintf(`{"tenants": [{
	  "tenant_id": "lifecode", "name": "Lifecode", "crm": "zoho",
	  "zoho": {"client_id": "cid", "client_secret": "sec",
	           "accounts_url": %q, "api_url": "https://api.zoho.example"}
	}]}`, accountsURL)

	path := filepath.Join(t.TempDir(), "tenants.json")
	if err := os.WriteFile(path, []byte(tenants), 0o600); err != nil {
		t.Fatalf("write tenants: %v", err)
	}

	log := logger.New("development")
	registry := tenant.NewRegistry(path, validator.New(), log)
	if err := registry.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	store, err := oauth.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	hub := oauth.NewHub(store, time.Second, nil, log)

	module := NewModule(registry, hub, "https://bot.example.com", log)

	engine := gin.New()
	engine.GET("/oauth/zoho/authorize", module.handler.Authorize)
	engine.GET("/oauth/zoho/callback", module.handler.Callback)
	return engine, store
}

func TestAuthorizeRedirectsToConsent(t *testing.T) {
	engine, _ := testFlow(t, "https://accounts.zoho.example")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/oauth/zoho/authorize?tenant_id=lifecode", nil)
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status %d, want 302", w.Code)
	}

	location, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if !strings.HasPrefix(location.String(), "https://accounts.zoho.example/oauth/v2/auth?") {
		t.Fatalf("unexpected consent url %s", location)
	}
	q := location.Query()
	if q.Get("client_id") != "cid" || q.Get("scope") != "ZohoCRM.modules.ALL" ||
		q.Get("access_type") != "offline" || q.Get("state") != "lifecode" {
		t.Fatalf("unexpected query %v", q)
	}
	if q.Get("redirect_uri") != "https://bot.example.com/oauth/zoho/callback" {
		t.Fatalf("unexpected redirect_uri %q", q.Get("redirect_uri"))
	}
}

func TestAuthorizeUnknownTenant(t *testing.T) {
	engine, _ := testFlow(t, "https://accounts.zoho.example")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/oauth/zoho/authorize?tenant_id=ghost", nil)
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", w.Code)
	}
}

func TestCallbackExchangesCode(t *testing.T) {
	var gotForm url.Values
	zoho := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "at-1", "refresh_token": "rt-1", "expires_in": 3600}`))
	}))
	defer zoho.Close()

	engine, store := testFlow(t, zoho.URL)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/oauth/zoho/callback?code=auth-code&state=lifecode", nil)
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %q", w.Code, w.Body.String())
	}
	if gotForm.Get("grant_type") != "authorization_code" || gotForm.Get("code") != "auth-code" {
		t.Fatalf("unexpected exchange form %v", gotForm)
	}

	token, err := store.Load(context.Background(), "lifecode", "zoho")
	if err != nil || token != "rt-1" {
		t.Fatalf("refresh token not persisted: %q err=%v", token, err)
	}
}

func TestCallbackConsentDenied(t *testing.T) {
	engine, _ := testFlow(t, "https://accounts.zoho.example")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/oauth/zoho/callback?error=access_denied", nil)
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", w.Code)
	}
}
