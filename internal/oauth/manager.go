// Package oauth manages the OAuth2 token lifecycle for CRM providers that
// hand out short-lived access tokens against a long-lived refresh token.
// One Manager exists per (tenant, provider) pair.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"chatlead_backend/internal/events"
	"chatlead_backend/platform/apperr"
	"chatlead_backend/platform/logger"

	"golang.org/x/sync/singleflight"
)

// expiryMargin keeps a safety window: a cached token is never handed out
// within this margin of its expiry.
const expiryMargin = 60 * time.Second

// defaultExpiresIn applies when the provider omits expires_in (Zoho access
// tokens last an hour).
const defaultExpiresIn = 3600

// Manager owns refresh-token persistence and access-token caching/refresh
// for one (tenant, provider) pair. Refresh is single-flight: concurrent
// callers with a stale cache share one network call and its outcome.
type Manager struct {
	tenantID     string
	provider     string
	clientID     string
	clientSecret string
	accountsURL  string

	store TokenStore
	http  *http.Client
	bus   events.Bus
	log   *logger.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// ManagerConfig bundles the construction parameters for a Manager.
type ManagerConfig struct {
	TenantID     string
	Provider     string
	ClientID     string
	ClientSecret string
	AccountsURL  string
	Store        TokenStore
	Timeout      time.Duration
	Bus          events.Bus
	Log          *logger.Logger
}

// NewManager creates a token manager for one tenant and provider.
func NewManager(cfg ManagerConfig) *Manager {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &Manager{
		tenantID:     cfg.TenantID,
		provider:     cfg.Provider,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		accountsURL:  strings.TrimRight(cfg.AccountsURL, "/"),
		store:        cfg.Store,
		http:         &http.Client{Timeout: timeout},
		bus:          cfg.Bus,
		log:          cfg.Log,
	}
}

// tokenResponse is the provider's reply for both grant types.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
}

// GetAccessToken returns a cached access token while it is comfortably
// unexpired; otherwise it refreshes using the persisted refresh token.
// A provider-signaled invalid grant deletes the stored refresh token so a
// human must re-authorize.
func (m *Manager) GetAccessToken(ctx context.Context) (string, error) {
	if token, ok := m.cached(); ok {
		return token, nil
	}

	// Collapse concurrent refreshes for this pair into one network call.
	result, err, _ := m.group.Do("refresh", func() (interface{}, error) {
		// A sibling may have refreshed while this caller waited on the lock.
		if token, ok := m.cached(); ok {
			return token, nil
		}
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (m *Manager) cached() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != "" && time.Now().Before(m.expiresAt) {
		return m.token, true
	}
	return "", false
}

func (m *Manager) setCached(token string, expiresIn int) {
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}
	m.mu.Lock()
	m.token = token
	m.expiresAt = time.Now().Add(time.Duration(expiresIn)*time.Second - expiryMargin)
	m.mu.Unlock()
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	refreshToken, err := m.store.Load(ctx, m.tenantID, m.provider)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			m.log.OAuthEvent("refresh", m.tenantID, m.provider, false, "no refresh token, authorization required")
			return "", apperr.Auth("tenant is not authorized with the CRM provider")
		}
		return "", apperr.Wrap(apperr.KindInternal, "refresh token load failed", err)
	}

	form := url.Values{
		"refresh_token": {refreshToken},
		"client_id":     {m.clientID},
		"client_secret": {m.clientSecret},
		"grant_type":    {"refresh_token"},
	}

	tr, err := m.postToken(ctx, form)
	if err != nil {
		return "", err
	}

	if tr.AccessToken == "" {
		if isInvalidGrant(tr.Error) {
			// The stored refresh token is dead; deleting it forces a
			// re-authorization instead of endless failing refreshes.
			if delErr := m.store.Delete(ctx, m.tenantID, m.provider); delErr != nil {
				m.log.Error("failed to delete invalid refresh token",
					"tenant_id", m.tenantID, "provider", m.provider, "error", delErr.Error())
			}
			m.publish(events.RefreshTokenInvalidated{
				BaseEvent: events.NewBaseEvent(),
				TenantID:  m.tenantID,
				Provider:  m.provider,
			})
			m.log.OAuthEvent("refresh", m.tenantID, m.provider, false, "refresh token invalidated by provider")
			return "", apperr.Auth("refresh token rejected, re-authorization required")
		}
		m.log.OAuthEvent("refresh", m.tenantID, m.provider, false, tr.Error)
		return "", apperr.Auth(fmt.Sprintf("token refresh failed: %s", errOrUnknown(tr.Error)))
	}

	m.setCached(tr.AccessToken, tr.ExpiresIn)
	// Some providers rotate the refresh token on use.
	if tr.RefreshToken != "" && tr.RefreshToken != refreshToken {
		if err := m.store.Save(ctx, m.tenantID, m.provider, tr.RefreshToken); err != nil {
			m.log.Error("failed to persist rotated refresh token",
				"tenant_id", m.tenantID, "provider", m.provider, "error", err.Error())
		}
	}

	m.log.OAuthEvent("refresh", m.tenantID, m.provider, true, "")
	return tr.AccessToken, nil
}

// ExchangeAuthorizationCode trades a one-time authorization code for an
// access and refresh token pair, persists the refresh token and seeds the
// access-token cache.
func (m *Manager) ExchangeAuthorizationCode(ctx context.Context, code, redirectURI string) error {
	form := url.Values{
		"code":          {code},
		"client_id":     {m.clientID},
		"client_secret": {m.clientSecret},
		"redirect_uri":  {redirectURI},
		"grant_type":    {"authorization_code"},
	}

	tr, err := m.postToken(ctx, form)
	if err != nil {
		return err
	}

	if tr.AccessToken == "" || tr.RefreshToken == "" {
		m.log.OAuthEvent("exchange", m.tenantID, m.provider, false, errOrUnknown(tr.Error))
		return apperr.Auth(fmt.Sprintf("authorization code exchange failed: %s", errOrUnknown(tr.Error)))
	}

	if err := m.store.Save(ctx, m.tenantID, m.provider, tr.RefreshToken); err != nil {
		return apperr.Wrap(apperr.KindInternal, "refresh token persist failed", err)
	}
	m.setCached(tr.AccessToken, tr.ExpiresIn)

	m.publish(events.TenantAuthorized{
		BaseEvent: events.NewBaseEvent(),
		TenantID:  m.tenantID,
		Provider:  m.provider,
	})
	m.log.OAuthEvent("exchange", m.tenantID, m.provider, true, "")
	return nil
}

// TokenEndpoint returns the provider's token URL.
func (m *Manager) TokenEndpoint() string {
	return m.accountsURL + "/oauth/v2/token"
}

func (m *Manager) postToken(ctx context.Context, form url.Values) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.TokenEndpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, apperr.Wrap(apperr.KindInternal, "token request build failed", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http.Do(req)
	if err != nil {
		m.log.OAuthEvent("token_request", m.tenantID, m.provider, false, err.Error())
		return tokenResponse{}, apperr.Wrap(apperr.KindNetwork, "token endpoint unreachable", err)
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return tokenResponse{}, apperr.Wrap(apperr.KindNetwork, "token endpoint returned invalid JSON", err)
	}

	// Zoho answers 200 with an error body for bad grants, but other
	// deployments use proper status codes; treat both the same.
	if resp.StatusCode >= http.StatusInternalServerError {
		return tokenResponse{}, apperr.Network(fmt.Sprintf("token endpoint returned %d", resp.StatusCode))
	}
	return tr, nil
}

func (m *Manager) publish(event events.Event) {
	if m.bus != nil {
		m.bus.Publish(context.Background(), event)
	}
}

func isInvalidGrant(errCode string) bool {
	return errCode == "invalid_grant" || errCode == "invalid_code"
}

func errOrUnknown(errCode string) string {
	if errCode == "" {
		return "unknown error"
	}
	return errCode
}
