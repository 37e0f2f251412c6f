// Package conversation drives the per-user chat flow: LLM selection, the
// lead-capture phases, web-RAG setup and plain chat. One Machine exists per
// (tenant, user); the Manager serializes messages into it.
package conversation

import (
	"context"
	"fmt"
	"strings"

	"chatlead_backend/internal/events"
	"chatlead_backend/internal/lead"
	"chatlead_backend/internal/llm"
	"chatlead_backend/internal/rag"
	"chatlead_backend/platform/apperr"
	"chatlead_backend/platform/logger"
)

// Phase is the lead-capture state of one conversation.
type Phase string

const (
	PhaseInitial        Phase = "initial"
	PhaseAwaitingName   Phase = "awaiting_name"
	PhaseAwaitingEmail  Phase = "awaiting_email"
	PhaseLeadCollected  Phase = "lead_collected"
	PhaseRAGAwaitingURL Phase = "rag_awaiting_url"
)

// LeadStore is the slice of the CRM router the machine needs.
type LeadStore interface {
	Provider() string
	SearchLead(ctx context.Context, phone string) (lead.Record, error)
	CreateLead(ctx context.Context, record lead.Record) (lead.Record, error)
}

// Retriever is the slice of the RAG service the machine needs. A nil
// Retriever means web RAG is unavailable.
type Retriever interface {
	Ingest(ctx context.Context, tenantID, userID, url string) (rag.Handle, error)
	Retrieve(ctx context.Context, handle rag.Handle, query string) (string, error)
}

// Deps are the collaborators a Machine talks to.
type Deps struct {
	CRM       LeadStore
	Models    *llm.Registry
	Retriever Retriever
	Bus       events.Bus
	Log       *logger.Logger
}

// Machine holds one user's conversation state. It is not safe for
// concurrent use; the Manager serializes access.
type Machine struct {
	tenantID string
	userID   string
	deps     Deps

	phase         Phase
	name          string
	email         string
	leadID        string
	leadFoundName string
	activeModel   string
	history       []llm.Message

	ragEnabled bool
	ragURL     string
	ragHandle  rag.Handle
}

// NewMachine starts a conversation in the initial phase. The user id doubles
// as the phone number for CRM lookups.
func NewMachine(tenantID, userID string, deps Deps) *Machine {
	return &Machine{
		tenantID: tenantID,
		userID:   userID,
		deps:     deps,
		phase:    PhaseInitial,
	}
}

// Phase reports the current lead-capture phase.
func (m *Machine) Phase() Phase { return m.phase }

// ActiveModel reports the selected LLM, empty when none was chosen.
func (m *Machine) ActiveModel() string { return m.activeModel }

// LeadID reports the CRM id of the captured or identified lead.
func (m *Machine) LeadID() string { return m.leadID }

// HandleMessage processes one user message and returns the reply. Every
// branch returns a user-visible string; failures degrade, never escape.
func (m *Machine) HandleMessage(ctx context.Context, message string) string {
	event := ParseEvent(message)

	switch event.Kind {
	case EventReset:
		return m.handleReset()
	case EventSetModel:
		return m.handleSetModel(ctx, event.Model)
	case EventEnableRAG:
		return m.handleEnableRAG()
	case EventDisableRAG:
		return m.handleDisableRAG()
	default:
		return m.handleText(ctx, event.Text)
	}
}

func (m *Machine) handleReset() string {
	m.phase = PhaseInitial
	m.name = ""
	m.email = ""
	m.leadID = ""
	m.leadFoundName = ""
	m.activeModel = ""
	m.history = nil
	m.ragEnabled = false
	m.ragURL = ""
	m.ragHandle = rag.Handle{}
	return "Chat reset. Please use /set_llm to choose an LLM."
}

func (m *Machine) handleSetModel(ctx context.Context, model string) string {
	if model == "" {
		return "Invalid LLM choice. Please use " + m.modelChoices() + "."
	}
	if _, ok := m.deps.Models.Get(model); !ok {
		return "Invalid LLM choice. Please use " + m.modelChoices() + "."
	}
	m.activeModel = model
	selected := fmt.Sprintf("You've selected %s.", strings.ToUpper(model))

	record, err := m.deps.CRM.SearchLead(ctx, m.userID)
	if err == nil {
		m.phase = PhaseLeadCollected
		m.leadID = record.ExternalID
		m.leadFoundName = leadDisplayName(record)
		m.publish(events.LeadIdentified{
			BaseEvent:  events.NewBaseEvent(),
			TenantID:   m.tenantID,
			UserID:     m.userID,
			Provider:   m.deps.CRM.Provider(),
			ExternalID: record.ExternalID,
		})
		// Prime the history so follow-up questions have a conversational seed.
		m.history = append(m.history, llm.Message{Role: llm.RoleUser, Content: "Start conversation with a greeting."})
		return selected + " " + m.personalizedGreeting(ctx, m.leadFoundName)
	}

	if !apperr.Is(err, apperr.KindNotFound) {
		m.deps.Log.Warn("lead search failed, treating user as new",
			"tenant_id", m.tenantID, "user_id", m.userID, "error", err.Error())
	}
	m.phase = PhaseAwaitingName
	return selected + " Hello! Before we proceed, could you please tell me your full name?"
}

func (m *Machine) handleEnableRAG() string {
	if m.deps.Retriever == nil {
		return "Web RAG is not available right now."
	}
	if m.ragEnabled {
		return fmt.Sprintf("Web RAG is already enabled using %s. Use /disable_rag to change it.", m.ragURL)
	}
	m.phase = PhaseRAGAwaitingURL
	return "Please reply to this message with the URL you want to use for Web RAG. For example: https://www.example.com"
}

func (m *Machine) handleDisableRAG() string {
	if !m.ragEnabled {
		return "Web RAG is not currently enabled."
	}
	m.ragEnabled = false
	m.ragURL = ""
	m.ragHandle = rag.Handle{}
	if m.phase == PhaseRAGAwaitingURL {
		m.phase = m.afterRAGPhase()
	}
	return "Web RAG has been disabled for this session."
}

func (m *Machine) handleText(ctx context.Context, text string) string {
	switch m.phase {
	case PhaseRAGAwaitingURL:
		return m.ingestRAGURL(ctx, strings.TrimSpace(text))

	case PhaseAwaitingName:
		m.name = strings.TrimSpace(text)
		m.phase = PhaseAwaitingEmail
		return fmt.Sprintf("Thanks, %s! Now, please provide your email address.", m.name)

	case PhaseAwaitingEmail:
		m.email = strings.TrimSpace(text)
		return m.createLead(ctx)

	default:
		return m.chat(ctx, text)
	}
}

func (m *Machine) ingestRAGURL(ctx context.Context, url string) string {
	// Whatever happens, the URL prompt phase ends here.
	m.phase = m.afterRAGPhase()

	prefix := fmt.Sprintf("Processing content from %s for RAG. This might take a moment...", url)

	handle, err := m.deps.Retriever.Ingest(ctx, m.tenantID, m.userID, url)
	if err != nil {
		m.deps.Log.Warn("rag ingest failed",
			"tenant_id", m.tenantID, "user_id", m.userID, "url", url, "error", err.Error())
		return prefix + fmt.Sprintf("\nFailed to load knowledge base from %s: %s. Web RAG remains disabled.", url, err.Error())
	}

	m.ragEnabled = true
	m.ragURL = handle.URL
	m.ragHandle = handle
	return prefix + fmt.Sprintf("\nKnowledge base from %s loaded successfully! You can now ask questions related to it.", url)
}

func (m *Machine) createLead(ctx context.Context) string {
	record := lead.Normalize(m.name, m.email, m.userID)

	created, err := m.deps.CRM.CreateLead(ctx, record)
	if err != nil {
		m.deps.Log.Error("lead creation failed",
			"tenant_id", m.tenantID, "user_id", m.userID,
			"provider", m.deps.CRM.Provider(), "error", err.Error())
		m.phase = PhaseInitial
		return "I apologize, but there was an issue creating your lead in our system. Please try again or contact support."
	}

	m.leadID = created.ExternalID
	m.phase = PhaseLeadCollected
	m.publish(events.LeadCreated{
		BaseEvent:  events.NewBaseEvent(),
		TenantID:   m.tenantID,
		UserID:     m.userID,
		Provider:   m.deps.CRM.Provider(),
		ExternalID: created.ExternalID,
	})

	prompt := fmt.Sprintf(
		"A new lead has been created for %s with email %s and phone %s in our CRM. "+
			"Respond with a polite confirmation message to the user, thanking them and "+
			"asking how you can help them now. Keep it concise and friendly.",
		record.FullName(), record.Email, record.Phone)
	m.history = append(m.history, llm.Message{Role: llm.RoleUser, Content: prompt})
	return m.respond(ctx, "")
}

func (m *Machine) chat(ctx context.Context, text string) string {
	contextText := ""
	if m.ragEnabled && m.deps.Retriever != nil {
		retrieved, err := m.deps.Retriever.Retrieve(ctx, m.ragHandle, text)
		if err != nil {
			m.deps.Log.Warn("rag retrieval failed",
				"tenant_id", m.tenantID, "user_id", m.userID, "error", err.Error())
		} else {
			contextText = retrieved
		}
	}

	m.history = append(m.history, llm.Message{Role: llm.RoleUser, Content: text})
	return m.respond(ctx, contextText)
}

// respond runs the active LLM over the history and appends its reply.
func (m *Machine) respond(ctx context.Context, contextText string) string {
	if m.activeModel == "" {
		return "Please choose an LLM first by typing " + m.modelChoices() + "."
	}
	responder, ok := m.deps.Models.Get(m.activeModel)
	if !ok {
		return "Please choose an LLM first by typing " + m.modelChoices() + "."
	}

	result := responder.Respond(ctx, m.history, contextText)
	upper := strings.ToUpper(m.activeModel)

	if result.Err != nil {
		m.deps.Log.Error("llm generation failed",
			"tenant_id", m.tenantID, "user_id", m.userID,
			"model", m.activeModel, "error", result.Err.Error())
		return fmt.Sprintf("I apologize, but there was an issue processing your request with %s. Please try again or rephrase your question.", upper)
	}
	if result.Text == "" {
		return fmt.Sprintf("I'm sorry, %s did not provide a response. Could you please try again?", upper)
	}

	m.deps.Log.Debug("llm reply generated",
		"tenant_id", m.tenantID, "user_id", m.userID, "model", m.activeModel,
		"duration_ms", result.Metrics.Duration.Milliseconds(),
		"input_tokens", result.Metrics.InputTokens,
		"output_tokens", result.Metrics.OutputTokens)

	m.history = append(m.history, llm.Message{Role: llm.RoleAssistant, Content: result.Text})
	return result.Text
}

func (m *Machine) personalizedGreeting(ctx context.Context, name string) string {
	responder, ok := m.deps.Models.Get(m.activeModel)
	if !ok {
		return "Welcome back! It's great to hear from you."
	}

	prompt := fmt.Sprintf("The user's name is %s. Greet them warmly and ask how you can help them today. Keep it concise.", name)
	result := responder.Respond(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, "")
	if result.Err != nil || result.Text == "" {
		return fmt.Sprintf("Welcome back, %s! How can I assist you today?", name)
	}
	return result.Text
}

// afterRAGPhase is where the machine lands when leaving the URL prompt:
// back to normal chat when a lead exists, otherwise the very beginning.
func (m *Machine) afterRAGPhase() Phase {
	if m.leadID != "" {
		return PhaseLeadCollected
	}
	return PhaseInitial
}

func (m *Machine) modelChoices() string {
	names := m.deps.Models.Names()
	if len(names) == 0 {
		return "/set_llm <model>"
	}
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = "/set_llm " + name
	}
	return strings.Join(parts, " or ")
}

func (m *Machine) publish(event events.Event) {
	if m.deps.Bus != nil {
		m.deps.Bus.Publish(context.Background(), event)
	}
}

// leadDisplayName picks the greeting name for an identified lead, preferring
// the fullest name the CRM returned and falling back to a generic form of
// address.
func leadDisplayName(record lead.Record) string {
	if name := record.FullName(); name != "" {
		return name
	}
	return "valued customer"
}
