package whatsapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chatlead_backend/internal/tenant"
	"chatlead_backend/platform/logger"
	"chatlead_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

type fakeConversations struct {
	replies  map[string]string
	received []string // "tenant/user: text"
	seen     map[string]bool
}

func (f *fakeConversations) HandleMessage(ctx context.Context, tenantID, userID, text string) (string, error) {
	f.received = append(f.received, tenantID+"/"+userID+": "+text)
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	f.seen[tenantID+"/"+userID] = true
	if reply, ok := f.replies[text]; ok {
		return reply, nil
	}
	return "ok", nil
}

func (f *fakeConversations) IsNewUser(tenantID, userID string) bool {
	return !f.seen[tenantID+"/"+userID]
}

type fakeSender struct {
	texts  []string
	images []string
}

func (f *fakeSender) SendText(ctx context.Context, to, body string) error {
	f.texts = append(f.texts, to+": "+body)
	return nil
}

func (f *fakeSender) SendImage(ctx context.Context, to, imageURL, caption string) error {
	f.images = append(f.images, to+": "+imageURL)
	return nil
}

const handlerTenantsJSON = `{
  "tenants": [
    {"tenant_id": "lifecode", "name": "Lifecode", "crm": "none",
     "whatsapp_phone_number_id": "111",
     "branding": {"welcome_message": "Welcome to Lifecode!", "logo_url": "https://cdn.example.com/logo.png"}},
    {"tenant_id": "fallback", "name": "Fallback", "crm": "none"}
  ]
}`

func testHandler(t *testing.T) (*Handler, *fakeConversations, *fakeSender) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "tenants.json")
	if err := os.WriteFile(path, []byte(handlerTenantsJSON), 0o600); err != nil {
		t.Fatalf("write tenants: %v", err)
	}
	log := logger.New("development")
	registry := tenant.NewRegistry(path, validator.New(), log)
	if err := registry.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	conversations := &fakeConversations{}
	sender := &fakeSender{}
	return NewHandler("verify-secret", "fallback", registry, conversations, sender, log), conversations, sender
}

func router(h *Handler) *gin.Engine {
	engine := gin.New()
	engine.GET("/webhook/whatsapp", h.Verify)
	engine.POST("/webhook/whatsapp", h.Receive)
	return engine
}

func TestVerifyWebhook(t *testing.T) {
	h, _, _ := testHandler(t)
	engine := router(h)

	cases := []struct {
		query  string
		status int
		body   string
	}{
		{"hub.mode=subscribe&hub.verify_token=verify-secret&hub.challenge=12345", http.StatusOK, "12345"},
		{"hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", http.StatusForbidden, ""},
		{"hub.challenge=12345", http.StatusBadRequest, ""},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/webhook/whatsapp?"+tc.query, nil)
		engine.ServeHTTP(w, req)

		if w.Code != tc.status {
			t.Errorf("query %q: status %d, want %d", tc.query, w.Code, tc.status)
		}
		if tc.body != "" && w.Body.String() != tc.body {
			t.Errorf("query %q: body %q, want %q", tc.query, w.Body.String(), tc.body)
		}
	}
}

const messagePayload = `{
  "object": "whatsapp_business_account",
  "entry": [{"changes": [{"value": {
    "metadata": {"phone_number_id": "111"},
    "messages": [{"from": "15551234567", "type": "text", "text": {"body": "hello"}}]
  }}]}]
}`

func TestReceiveMessageDispatchesAndReplies(t *testing.T) {
	h, conversations, sender := testHandler(t)
	engine := router(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(messagePayload))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}
	if len(conversations.received) != 1 || conversations.received[0] != "lifecode/15551234567: hello" {
		t.Fatalf("unexpected dispatch %v", conversations.received)
	}
	if len(sender.texts) != 1 || !strings.HasPrefix(sender.texts[0], "15551234567: ") {
		t.Fatalf("unexpected replies %v", sender.texts)
	}
	// First contact gets the tenant's branding image.
	if len(sender.images) != 1 || !strings.Contains(sender.images[0], "logo.png") {
		t.Fatalf("expected welcome image, got %v", sender.images)
	}

	// Second message from the same user: no image again.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(messagePayload))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	if len(sender.images) != 1 {
		t.Fatalf("welcome image sent twice: %v", sender.images)
	}
}

func TestReceiveUnknownPhoneNumberIDUsesDefaultTenant(t *testing.T) {
	h, conversations, _ := testHandler(t)
	engine := router(h)

	payload := strings.Replace(messagePayload, `"111"`, `"999"`, 1)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}
	if len(conversations.received) != 1 || !strings.HasPrefix(conversations.received[0], "fallback/") {
		t.Fatalf("expected default tenant dispatch, got %v", conversations.received)
	}
}

func TestReceiveStatusUpdateIsAcknowledged(t *testing.T) {
	h, conversations, sender := testHandler(t)
	engine := router(h)

	statusPayload := `{"object": "whatsapp_business_account", "entry": [{"changes": [{"value": {
	  "metadata": {"phone_number_id": "111"},
	  "statuses": [{"id": "wamid.X", "status": "delivered"}]
	}}]}]}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(statusPayload))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}
	if len(conversations.received) != 0 || len(sender.texts) != 0 {
		t.Fatalf("status update must not dispatch: %v %v", conversations.received, sender.texts)
	}
}

func TestReceiveMalformedBodyStillReturns200(t *testing.T) {
	h, _, _ := testHandler(t)
	engine := router(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}
}
