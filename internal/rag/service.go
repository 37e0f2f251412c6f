// Package rag ingests web pages into a vector store and retrieves relevant
// chunks as grounding context for LLM replies. Document scope is per
// (tenant, user): one user's ingested pages never leak into another's
// answers.
package rag

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatlead_backend/platform/apperr"
	"chatlead_backend/platform/logger"
	"chatlead_backend/platform/qdrant"

	"github.com/google/uuid"
)

const (
	chunkSize    = 1000
	chunkOverlap = 200
	topK         = 3

	// maxDocumentBytes caps how much of a page is read. Pages past this are
	// truncated, not rejected.
	maxDocumentBytes = 2 << 20
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore is the slice of the Qdrant client the service needs.
type VectorStore interface {
	Upsert(ctx context.Context, points []qdrant.Point) error
	Search(ctx context.Context, vector []float32, limit int, filter *qdrant.Filter) ([]qdrant.SearchResult, error)
	DeleteByFilter(ctx context.Context, filter qdrant.Filter) error
}

// Handle identifies one user's ingested document scope.
type Handle struct {
	TenantID string
	UserID   string
	URL      string
	Chunks   int
}

// Service is the retrieval pipeline: fetch, extract, chunk, embed, store.
type Service struct {
	embed Embedder
	store VectorStore
	http  *http.Client
	log   *logger.Logger
}

// NewService wires the pipeline. fetchTimeout bounds the page download.
func NewService(embed Embedder, store VectorStore, fetchTimeout time.Duration, log *logger.Logger) *Service {
	if fetchTimeout == 0 {
		fetchTimeout = 30 * time.Second
	}
	return &Service{
		embed: embed,
		store: store,
		http:  &http.Client{Timeout: fetchTimeout},
		log:   log,
	}
}

// Ingest downloads a page, splits its visible text into overlapping chunks,
// embeds each and upserts the vectors scoped to (tenant, user). A previous
// ingest for the same scope is replaced.
func (s *Service) Ingest(ctx context.Context, tenantID, userID, rawURL string) (Handle, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return Handle{}, apperr.Validation("that does not look like a valid http(s) URL")
	}

	text, err := s.fetchText(ctx, parsed.String())
	if err != nil {
		return Handle{}, err
	}

	chunks := Chunk(text, chunkSize, chunkOverlap)
	if len(chunks) == 0 {
		return Handle{}, apperr.Validation("the page has no readable text")
	}

	// Drop the previous document for this scope before storing the new one.
	if err := s.store.DeleteByFilter(ctx, scopeFilter(tenantID, userID)); err != nil {
		s.log.Warn("failed to clear previous document scope",
			"tenant_id", tenantID, "user_id", userID, "error", err.Error())
	}

	points := make([]qdrant.Point, 0, len(chunks))
	for _, chunk := range chunks {
		vector, err := s.embed.Embed(ctx, chunk)
		if err != nil {
			return Handle{}, apperr.Wrap(apperr.KindNetwork, "embedding failed", err)
		}
		points = append(points, qdrant.Point{
			ID:     uuid.NewString(),
			Vector: vector,
			Payload: map[string]interface{}{
				"tenant_id": tenantID,
				"user_id":   userID,
				"url":       parsed.String(),
				"text":      chunk,
			},
		})
	}

	if err := s.store.Upsert(ctx, points); err != nil {
		return Handle{}, apperr.Wrap(apperr.KindNetwork, "vector upsert failed", err)
	}

	s.log.Info("document ingested",
		"tenant_id", tenantID, "user_id", userID, "url", parsed.String(), "chunks", len(points))
	return Handle{TenantID: tenantID, UserID: userID, URL: parsed.String(), Chunks: len(points)}, nil
}

// Retrieve embeds the query and returns the most relevant chunks for the
// handle's scope, joined by blank lines. Empty string when nothing matches.
func (s *Service) Retrieve(ctx context.Context, handle Handle, query string) (string, error) {
	vector, err := s.embed.Embed(ctx, query)
	if err != nil {
		return "", apperr.Wrap(apperr.KindNetwork, "query embedding failed", err)
	}

	filter := scopeFilter(handle.TenantID, handle.UserID)
	results, err := s.store.Search(ctx, vector, topK, &filter)
	if err != nil {
		return "", apperr.Wrap(apperr.KindNetwork, "vector search failed", err)
	}

	var parts []string
	for _, result := range results {
		if text, ok := result.Payload["text"].(string); ok && text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// Forget removes the handle's document scope from the store.
func (s *Service) Forget(ctx context.Context, handle Handle) error {
	if err := s.store.DeleteByFilter(ctx, scopeFilter(handle.TenantID, handle.UserID)); err != nil {
		return apperr.Wrap(apperr.KindNetwork, "vector delete failed", err)
	}
	return nil
}

func (s *Service) fetchText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "build fetch request", err)
	}
	req.Header.Set("User-Agent", "chatlead-bot/1.0")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindNetwork, "page fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", apperr.Network(fmt.Sprintf("page fetch returned %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return "", apperr.Wrap(apperr.KindNetwork, "page read failed", err)
	}
	return ExtractText(string(data)), nil
}

func scopeFilter(tenantID, userID string) qdrant.Filter {
	return qdrant.Filter{Must: []qdrant.FieldMatch{
		qdrant.MatchValue("tenant_id", tenantID),
		qdrant.MatchValue("user_id", userID),
	}}
}
