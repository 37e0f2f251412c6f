// Package llm generates chat replies. Each model is a Responder; a Registry
// maps the user-selectable model names to responders.
package llm

import (
	"context"
	"sort"
	"time"
)

// Chat roles as stored in conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of conversation history.
type Message struct {
	Role    string
	Content string
}

// Metrics describes one generation call.
type Metrics struct {
	Duration     time.Duration
	InputTokens  int
	OutputTokens int
}

// Result carries the reply text together with its generation metrics. Err is
// set instead of Text when generation failed; callers decide the user-facing
// fallback.
type Result struct {
	Text    string
	Metrics Metrics
	Err     error
}

// Responder produces a reply for the conversation so far. contextText, when
// non-empty, is retrieved document context to ground the answer in.
type Responder interface {
	Respond(ctx context.Context, history []Message, contextText string) Result
}

// Registry maps model names to responders.
type Registry struct {
	responders map[string]Responder
}

func NewRegistry() *Registry {
	return &Registry{responders: make(map[string]Responder)}
}

// Register adds a responder under a model name.
func (r *Registry) Register(name string, responder Responder) {
	r.responders[name] = responder
}

// Get returns the responder for a model name.
func (r *Registry) Get(name string) (Responder, bool) {
	responder, ok := r.responders[name]
	return responder, ok
}

// Names lists the registered model names, sorted for stable user output.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.responders))
	for name := range r.responders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
