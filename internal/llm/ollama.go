package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatlead_backend/platform/apperr"
	"chatlead_backend/platform/logger"
)

// OllamaResponder generates replies through a local Ollama server's
// /api/chat endpoint.
type OllamaResponder struct {
	baseURL string
	model   string
	http    *http.Client
	log     *logger.Logger
}

// NewOllamaResponder points at an Ollama server, e.g. http://localhost:11434.
func NewOllamaResponder(baseURL, model string, timeout time.Duration, log *logger.Logger) *OllamaResponder {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OllamaResponder{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Message         ollamaMessage `json:"message"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

func (o *OllamaResponder) Respond(ctx context.Context, history []Message, contextText string) Result {
	start := time.Now()

	messages := make([]ollamaMessage, 0, len(history))
	for i, msg := range history {
		text := msg.Content
		if contextText != "" && i == len(history)-1 && msg.Role == RoleUser {
			text = fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, msg.Content)
		}
		messages = append(messages, ollamaMessage{Role: msg.Role, Content: text})
	}

	payload, err := json.Marshal(ollamaChatRequest{Model: o.model, Messages: messages, Stream: false})
	if err != nil {
		return Result{Err: apperr.Wrap(apperr.KindInternal, "marshal ollama request", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return Result{Err: apperr.Wrap(apperr.KindInternal, "build ollama request", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		o.log.Error("ollama request failed", "model", o.model, "error", err.Error())
		return Result{
			Metrics: Metrics{Duration: time.Since(start)},
			Err:     apperr.Wrap(apperr.KindNetwork, "ollama unreachable", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := apperr.Network(fmt.Sprintf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
		o.log.Error("ollama generation failed", "model", o.model, "error", err.Error())
		return Result{Metrics: Metrics{Duration: time.Since(start)}, Err: err}
	}

	var body ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{
			Metrics: Metrics{Duration: time.Since(start)},
			Err:     apperr.Wrap(apperr.KindNetwork, "ollama returned invalid JSON", err),
		}
	}

	return Result{
		Text: body.Message.Content,
		Metrics: Metrics{
			Duration:     time.Since(start),
			InputTokens:  body.PromptEvalCount,
			OutputTokens: body.EvalCount,
		},
	}
}
