package llm

import (
	"context"
	"fmt"
	"time"

	"chatlead_backend/platform/apperr"
	"chatlead_backend/platform/logger"

	"google.golang.org/genai"
)

// GeminiResponder generates replies through the Gemini API.
type GeminiResponder struct {
	client *genai.Client
	model  string
	log    *logger.Logger
}

// NewGeminiResponder creates an API-key backed Gemini client.
func NewGeminiResponder(ctx context.Context, apiKey, model string, log *logger.Logger) (*GeminiResponder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiResponder{client: client, model: model, log: log}, nil
}

func (g *GeminiResponder) Respond(ctx context.Context, history []Message, contextText string) Result {
	start := time.Now()

	contents := toGenaiContents(history, contextText)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		g.log.Error("gemini generation failed", "model", g.model, "error", err.Error())
		return Result{
			Metrics: Metrics{Duration: time.Since(start)},
			Err:     apperr.Wrap(apperr.KindNetwork, "gemini generation failed", err),
		}
	}

	metrics := Metrics{Duration: time.Since(start)}
	if resp.UsageMetadata != nil {
		metrics.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		metrics.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return Result{Text: resp.Text(), Metrics: metrics}
}

// toGenaiContents maps chat history onto genai contents. Retrieved context
// is prepended to the final user message so the model grounds its answer
// without a separate system turn.
func toGenaiContents(history []Message, contextText string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for i, msg := range history {
		role := genai.Role(genai.RoleUser)
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		text := msg.Content
		if contextText != "" && i == len(history)-1 && msg.Role == RoleUser {
			text = fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, msg.Content)
		}
		contents = append(contents, genai.NewContentFromText(text, role))
	}
	return contents
}
