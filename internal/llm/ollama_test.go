package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatlead_backend/platform/apperr"
	"chatlead_backend/platform/logger"
)

func TestOllamaRespond(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message": {"role": "assistant", "content": "hello there"}, "prompt_eval_count": 12, "eval_count": 7}`))
	}))
	defer srv.Close()

	o := NewOllamaResponder(srv.URL, "phi3:mini", time.Second, logger.New("development"))

	result := o.Respond(context.Background(), []Message{
		{Role: RoleUser, Content: "hi"},
	}, "")
	if result.Err != nil {
		t.Fatalf("respond: %v", result.Err)
	}
	if result.Text != "hello there" {
		t.Fatalf("unexpected text %q", result.Text)
	}
	if result.Metrics.InputTokens != 12 || result.Metrics.OutputTokens != 7 {
		t.Fatalf("unexpected metrics %+v", result.Metrics)
	}
	if result.Metrics.Duration <= 0 {
		t.Fatalf("expected positive duration")
	}

	if got.Model != "phi3:mini" || got.Stream {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestOllamaRespond_ContextPrependedToLastUserMessage(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"message": {"role": "assistant", "content": "ok"}}`))
	}))
	defer srv.Close()

	o := NewOllamaResponder(srv.URL, "phi3:mini", time.Second, logger.New("development"))

	o.Respond(context.Background(), []Message{
		{Role: RoleUser, Content: "earlier question"},
		{Role: RoleAssistant, Content: "earlier answer"},
		{Role: RoleUser, Content: "what are your opening hours?"},
	}, "We are open 9-5.")

	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Content != "earlier question" {
		t.Fatalf("earlier messages must stay untouched: %q", got.Messages[0].Content)
	}
	last := got.Messages[2].Content
	if !strings.Contains(last, "We are open 9-5.") || !strings.Contains(last, "what are your opening hours?") {
		t.Fatalf("context not folded into final message: %q", last)
	}
}

func TestOllamaRespond_ServerErrorIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	o := NewOllamaResponder(srv.URL, "phi3:mini", time.Second, logger.New("development"))

	result := o.Respond(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, "")
	if !apperr.Is(result.Err, apperr.KindNetwork) {
		t.Fatalf("expected network error, got %v", result.Err)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register("ollama", NewOllamaResponder("http://localhost:11434", "phi3:mini", time.Second, logger.New("development")))

	if _, ok := reg.Get("ollama"); !ok {
		t.Fatalf("registered responder not found")
	}
	if _, ok := reg.Get("gemini"); ok {
		t.Fatalf("unregistered responder found")
	}
	if names := reg.Names(); len(names) != 1 || names[0] != "ollama" {
		t.Fatalf("unexpected names %v", names)
	}
}
