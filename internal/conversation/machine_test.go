package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"chatlead_backend/internal/lead"
	"chatlead_backend/internal/llm"
	"chatlead_backend/internal/rag"
	"chatlead_backend/platform/apperr"
	"chatlead_backend/platform/logger"
)

type fakeCRM struct {
	found     *lead.Record
	searchErr error
	created   []lead.Record
	createErr error
}

func (f *fakeCRM) Provider() string { return "zoho" }

func (f *fakeCRM) SearchLead(ctx context.Context, phone string) (lead.Record, error) {
	if f.searchErr != nil {
		return lead.Record{}, f.searchErr
	}
	if f.found != nil {
		return *f.found, nil
	}
	return lead.Record{}, apperr.NotFound("no lead with this phone number")
}

func (f *fakeCRM) CreateLead(ctx context.Context, record lead.Record) (lead.Record, error) {
	if f.createErr != nil {
		return lead.Record{}, f.createErr
	}
	f.created = append(f.created, record)
	record.ExternalID = "lead-1"
	return record, nil
}

// echoResponder replies deterministically with the last message.
type echoResponder struct{}

func (echoResponder) Respond(ctx context.Context, history []llm.Message, contextText string) llm.Result {
	last := history[len(history)-1].Content
	text := "echo: " + last
	if contextText != "" {
		text = "ctx(" + contextText + ") " + text
	}
	return llm.Result{Text: text}
}

type failingResponder struct{}

func (failingResponder) Respond(ctx context.Context, history []llm.Message, contextText string) llm.Result {
	return llm.Result{Err: errors.New("model offline")}
}

type fakeRetriever struct {
	ingestErr error
	context   string
	ingested  []string
}

func (f *fakeRetriever) Ingest(ctx context.Context, tenantID, userID, url string) (rag.Handle, error) {
	if f.ingestErr != nil {
		return rag.Handle{}, f.ingestErr
	}
	f.ingested = append(f.ingested, url)
	return rag.Handle{TenantID: tenantID, UserID: userID, URL: url, Chunks: 3}, nil
}

func (f *fakeRetriever) Retrieve(ctx context.Context, handle rag.Handle, query string) (string, error) {
	return f.context, nil
}

func testMachine(crm *fakeCRM, retriever Retriever) *Machine {
	registry := llm.NewRegistry()
	registry.Register("gemini", echoResponder{})
	registry.Register("ollama", echoResponder{})

	return NewMachine("lifecode", "+1 (555) 123-4567", Deps{
		CRM:       crm,
		Models:    registry,
		Retriever: retriever,
		Log:       logger.New("development"),
	})
}

func TestFullLeadCaptureScenario(t *testing.T) {
	crm := &fakeCRM{}
	m := testMachine(crm, nil)
	ctx := context.Background()

	reply := m.HandleMessage(ctx, "/set_llm ollama")
	if !strings.Contains(reply, "You've selected OLLAMA.") || !strings.Contains(reply, "full name") {
		t.Fatalf("unexpected set_llm reply: %q", reply)
	}
	if m.Phase() != PhaseAwaitingName {
		t.Fatalf("expected awaiting_name, got %s", m.Phase())
	}

	reply = m.HandleMessage(ctx, "Jane Doe")
	if !strings.Contains(reply, "Thanks, Jane Doe!") || !strings.Contains(reply, "email") {
		t.Fatalf("unexpected name reply: %q", reply)
	}
	if m.Phase() != PhaseAwaitingEmail {
		t.Fatalf("expected awaiting_email, got %s", m.Phase())
	}

	m.HandleMessage(ctx, "jane@EXAMPLE.com ")
	if m.Phase() != PhaseLeadCollected {
		t.Fatalf("expected lead_collected, got %s", m.Phase())
	}
	if m.LeadID() != "lead-1" {
		t.Fatalf("expected lead id recorded, got %q", m.LeadID())
	}

	if len(crm.created) != 1 {
		t.Fatalf("expected 1 create call, got %d", len(crm.created))
	}
	got := crm.created[0]
	if got.FirstName != "Jane" || got.LastName == nil || *got.LastName != "Doe" {
		t.Fatalf("name not normalized: %+v", got)
	}
	if got.Email != "jane@example.com" {
		t.Fatalf("email not normalized: %q", got.Email)
	}
	if got.Phone != "15551234567" {
		t.Fatalf("phone not normalized: %q", got.Phone)
	}
}

func TestSetModel_UnknownModelKeepsState(t *testing.T) {
	m := testMachine(&fakeCRM{}, nil)

	reply := m.HandleMessage(context.Background(), "/set_llm claude")
	if !strings.Contains(reply, "Invalid LLM choice") {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if m.Phase() != PhaseInitial || m.ActiveModel() != "" {
		t.Fatalf("state changed on invalid model: phase=%s model=%q", m.Phase(), m.ActiveModel())
	}
}

func TestSetModel_ReturningUserIsGreeted(t *testing.T) {
	last := "Doe"
	crm := &fakeCRM{found: &lead.Record{FirstName: "Jane", LastName: &last, ExternalID: "z-7"}}
	m := testMachine(crm, nil)

	reply := m.HandleMessage(context.Background(), "/set_llm gemini")
	if !strings.Contains(reply, "You've selected GEMINI.") {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if !strings.Contains(reply, "Jane Doe") {
		t.Fatalf("greeting not personalized: %q", reply)
	}
	if m.Phase() != PhaseLeadCollected || m.LeadID() != "z-7" {
		t.Fatalf("expected identified lead, got phase=%s id=%q", m.Phase(), m.LeadID())
	}
}

func TestSetModel_AnonymousLeadFallsBackToGenericGreeting(t *testing.T) {
	crm := &fakeCRM{found: &lead.Record{ExternalID: "z-8"}}
	m := testMachine(crm, nil)

	reply := m.HandleMessage(context.Background(), "/set_llm gemini")
	if !strings.Contains(reply, "valued customer") {
		t.Fatalf("expected generic greeting, got %q", reply)
	}
}

func TestResetFromAnyState(t *testing.T) {
	stages := [][]string{
		{},
		{"/set_llm ollama"},
		{"/set_llm ollama", "Jane Doe"},
		{"/set_llm ollama", "Jane Doe", "jane@example.com"},
		{"/set_llm ollama", "/enable_rag"},
	}

	for _, msgs := range stages {
		m := testMachine(&fakeCRM{}, &fakeRetriever{})
		ctx := context.Background()
		for _, msg := range msgs {
			m.HandleMessage(ctx, msg)
		}

		reply := m.HandleMessage(ctx, "/reset")
		if reply != "Chat reset. Please use /set_llm to choose an LLM." {
			t.Fatalf("unexpected reset reply after %v: %q", msgs, reply)
		}
		if m.Phase() != PhaseInitial || m.ActiveModel() != "" || m.LeadID() != "" {
			t.Fatalf("state not cleared after %v: phase=%s model=%q lead=%q",
				msgs, m.Phase(), m.ActiveModel(), m.LeadID())
		}
	}
}

func TestCreateLeadFailureRollsBackToInitial(t *testing.T) {
	crm := &fakeCRM{createErr: apperr.Network("zoho returned 502")}
	m := testMachine(crm, nil)
	ctx := context.Background()

	m.HandleMessage(ctx, "/set_llm ollama")
	m.HandleMessage(ctx, "Jane Doe")
	reply := m.HandleMessage(ctx, "jane@example.com")

	if !strings.Contains(reply, "issue creating your lead") {
		t.Fatalf("expected apology, got %q", reply)
	}
	if m.Phase() != PhaseInitial {
		t.Fatalf("expected rollback to initial, got %s", m.Phase())
	}
}

func TestRAGFlow(t *testing.T) {
	retriever := &fakeRetriever{context: "We are open 9-5."}
	m := testMachine(&fakeCRM{}, retriever)
	ctx := context.Background()

	m.HandleMessage(ctx, "/set_llm ollama")
	m.HandleMessage(ctx, "Jane Doe")
	m.HandleMessage(ctx, "jane@example.com")

	reply := m.HandleMessage(ctx, "/enable_rag")
	if !strings.Contains(reply, "URL") {
		t.Fatalf("unexpected enable reply: %q", reply)
	}
	if m.Phase() != PhaseRAGAwaitingURL {
		t.Fatalf("expected rag_awaiting_url, got %s", m.Phase())
	}

	reply = m.HandleMessage(ctx, "https://www.example.com")
	if !strings.Contains(reply, "loaded successfully") {
		t.Fatalf("unexpected ingest reply: %q", reply)
	}
	if m.Phase() != PhaseLeadCollected {
		t.Fatalf("expected return to lead_collected, got %s", m.Phase())
	}
	if len(retriever.ingested) != 1 || retriever.ingested[0] != "https://www.example.com" {
		t.Fatalf("url not ingested: %v", retriever.ingested)
	}

	// Retrieved context flows into the responder.
	reply = m.HandleMessage(ctx, "when are you open?")
	if !strings.Contains(reply, "We are open 9-5.") {
		t.Fatalf("context not used: %q", reply)
	}

	reply = m.HandleMessage(ctx, "/enable_rag")
	if !strings.Contains(reply, "already enabled") {
		t.Fatalf("expected already-enabled reply, got %q", reply)
	}

	reply = m.HandleMessage(ctx, "/disable_rag")
	if !strings.Contains(reply, "disabled") {
		t.Fatalf("unexpected disable reply: %q", reply)
	}
	reply = m.HandleMessage(ctx, "/disable_rag")
	if !strings.Contains(reply, "not currently enabled") {
		t.Fatalf("unexpected second disable reply: %q", reply)
	}
}

func TestRAGIngestFailureLeavesRAGDisabled(t *testing.T) {
	retriever := &fakeRetriever{ingestErr: apperr.Network("page fetch failed")}
	m := testMachine(&fakeCRM{}, retriever)
	ctx := context.Background()

	m.HandleMessage(ctx, "/set_llm ollama")
	m.HandleMessage(ctx, "/enable_rag")
	reply := m.HandleMessage(ctx, "https://www.example.com")

	if !strings.Contains(reply, "Failed to load knowledge base") {
		t.Fatalf("unexpected reply: %q", reply)
	}
	// No lead yet, so leaving the URL prompt goes back to the start.
	if m.Phase() != PhaseAwaitingName && m.Phase() != PhaseInitial {
		t.Fatalf("unexpected phase %s", m.Phase())
	}
}

func TestEnableRAGWithoutRetriever(t *testing.T) {
	m := testMachine(&fakeCRM{}, nil)

	reply := m.HandleMessage(context.Background(), "/enable_rag")
	if !strings.Contains(reply, "not available") {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if m.Phase() != PhaseInitial {
		t.Fatalf("phase changed without retriever: %s", m.Phase())
	}
}

func TestTextBeforeModelSelectionPromptsForModel(t *testing.T) {
	m := testMachine(&fakeCRM{}, nil)

	reply := m.HandleMessage(context.Background(), "hello")
	if !strings.Contains(reply, "Please choose an LLM first") {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestLLMFailureProducesApology(t *testing.T) {
	registry := llm.NewRegistry()
	registry.Register("gemini", failingResponder{})
	m := NewMachine("lifecode", "15551234567", Deps{
		CRM:    &fakeCRM{found: &lead.Record{FirstName: "Jane", ExternalID: "z-1"}},
		Models: registry,
		Log:    logger.New("development"),
	})
	ctx := context.Background()

	// Greeting falls back when the model errors.
	reply := m.HandleMessage(ctx, "/set_llm gemini")
	if !strings.Contains(reply, "Welcome back, Jane!") {
		t.Fatalf("expected fallback greeting, got %q", reply)
	}

	reply = m.HandleMessage(ctx, "hello")
	if !strings.Contains(reply, "issue processing your request with GEMINI") {
		t.Fatalf("expected apology, got %q", reply)
	}
}
