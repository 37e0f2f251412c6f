// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// TenantStoreConfig provides settings for the tenant registry.
type TenantStoreConfig interface {
	GetTenantsFile() string
	GetDefaultTenantID() string
}

// TokenStoreConfig provides settings for refresh token persistence.
type TokenStoreConfig interface {
	GetTokenStoreKind() string // "file" or "redis"
	GetTokenDir() string
	GetRedisURL() string
}

// CRMConfig provides settings for outbound CRM and OAuth HTTP calls.
type CRMConfig interface {
	GetCRMTimeout() time.Duration
	GetOAuthTimeout() time.Duration
}

// WhatsAppConfig provides settings for the WhatsApp Cloud API channel.
type WhatsAppConfig interface {
	GetWhatsAppAccessToken() string
	GetWhatsAppPhoneNumberID() string
	GetWhatsAppVerifyToken() string
	GetWhatsAppGraphURL() string
	IsWhatsAppEnabled() bool
}

// LLMConfig provides settings for the language model responders.
type LLMConfig interface {
	GetGeminiAPIKey() string
	GetGeminiModel() string
	GetOllamaURL() string
	GetOllamaModel() string
	GetLLMTimeout() time.Duration
}

// RAGConfig provides settings for web retrieval, embeddings and Qdrant.
type RAGConfig interface {
	GetQdrantURL() string
	GetQdrantAPIKey() string
	GetQdrantCollection() string
	GetEmbeddingAPIURL() string
	GetEmbeddingAPIKey() string
	GetEmbeddingModel() string
	GetEmbeddingDim() int
	GetRAGFetchTimeout() time.Duration
	IsRAGEnabled() bool
}

// SchedulerConfig provides settings for the asynq scheduler and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetTokenWarmupInterval() time.Duration
	GetTenantReloadInterval() time.Duration
	IsSchedulerEnabled() bool
}

// OAuthFlowConfig provides settings for the browser authorization flow.
type OAuthFlowConfig interface {
	GetPublicBaseURL() string
}

// AdminConfig provides settings for the admin endpoints.
type AdminConfig interface {
	GetAdminToken() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                   string
	HTTPAddr              string
	PublicBaseURL         string
	CORSAllowAll          bool
	CORSOrigins           []string
	TenantsFile           string
	DefaultTenantID       string
	TokenStoreKind        string
	TokenDir              string
	RedisURL              string
	RedisTLSInsecure      bool
	AsynqQueueName        string
	AsynqConcurrency      int
	TokenWarmupInterval   time.Duration
	TenantReloadInterval  time.Duration
	CRMTimeout            time.Duration
	OAuthTimeout          time.Duration
	WhatsAppAccessToken   string
	WhatsAppPhoneNumberID string
	WhatsAppVerifyToken   string
	WhatsAppGraphURL      string
	GeminiAPIKey          string
	GeminiModel           string
	OllamaURL             string
	OllamaModel           string
	LLMTimeout            time.Duration
	QdrantURL             string
	QdrantAPIKey          string
	QdrantCollection      string
	EmbeddingAPIURL       string
	EmbeddingAPIKey       string
	EmbeddingModel        string
	EmbeddingDim          int
	RAGFetchTimeout       time.Duration
	AdminToken            string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// TenantStoreConfig implementation
func (c *Config) GetTenantsFile() string     { return c.TenantsFile }
func (c *Config) GetDefaultTenantID() string { return c.DefaultTenantID }

// TokenStoreConfig implementation
func (c *Config) GetTokenStoreKind() string { return c.TokenStoreKind }
func (c *Config) GetTokenDir() string       { return c.TokenDir }
func (c *Config) GetRedisURL() string       { return c.RedisURL }

// CRMConfig implementation
func (c *Config) GetCRMTimeout() time.Duration   { return c.CRMTimeout }
func (c *Config) GetOAuthTimeout() time.Duration { return c.OAuthTimeout }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppAccessToken() string   { return c.WhatsAppAccessToken }
func (c *Config) GetWhatsAppPhoneNumberID() string { return c.WhatsAppPhoneNumberID }
func (c *Config) GetWhatsAppVerifyToken() string   { return c.WhatsAppVerifyToken }
func (c *Config) GetWhatsAppGraphURL() string      { return c.WhatsAppGraphURL }
func (c *Config) IsWhatsAppEnabled() bool {
	return c.WhatsAppAccessToken != "" && c.WhatsAppPhoneNumberID != ""
}

// LLMConfig implementation
func (c *Config) GetGeminiAPIKey() string        { return c.GeminiAPIKey }
func (c *Config) GetGeminiModel() string         { return c.GeminiModel }
func (c *Config) GetOllamaURL() string           { return c.OllamaURL }
func (c *Config) GetOllamaModel() string         { return c.OllamaModel }
func (c *Config) GetLLMTimeout() time.Duration   { return c.LLMTimeout }

// RAGConfig implementation
func (c *Config) GetQdrantURL() string              { return c.QdrantURL }
func (c *Config) GetQdrantAPIKey() string           { return c.QdrantAPIKey }
func (c *Config) GetQdrantCollection() string       { return c.QdrantCollection }
func (c *Config) GetEmbeddingAPIURL() string        { return c.EmbeddingAPIURL }
func (c *Config) GetEmbeddingAPIKey() string        { return c.EmbeddingAPIKey }
func (c *Config) GetEmbeddingModel() string         { return c.EmbeddingModel }
func (c *Config) GetEmbeddingDim() int              { return c.EmbeddingDim }
func (c *Config) GetRAGFetchTimeout() time.Duration { return c.RAGFetchTimeout }
func (c *Config) IsRAGEnabled() bool {
	return c.QdrantURL != "" && c.QdrantCollection != "" && c.EmbeddingAPIURL != ""
}

// SchedulerConfig implementation
func (c *Config) GetRedisTLSInsecure() bool               { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string               { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int                { return c.AsynqConcurrency }
func (c *Config) GetTokenWarmupInterval() time.Duration   { return c.TokenWarmupInterval }
func (c *Config) GetTenantReloadInterval() time.Duration  { return c.TenantReloadInterval }
func (c *Config) IsSchedulerEnabled() bool                { return c.RedisURL != "" }

// OAuthFlowConfig implementation
func (c *Config) GetPublicBaseURL() string { return c.PublicBaseURL }

// AdminConfig implementation
func (c *Config) GetAdminToken() string { return c.AdminToken }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		PublicBaseURL:         getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		CORSAllowAll:          corsAllowAll,
		CORSOrigins:           corsOrigins,
		TenantsFile:           getEnv("TENANTS_FILE", "config/tenants.json"),
		DefaultTenantID:       getEnv("DEFAULT_TENANT_ID", ""),
		TokenStoreKind:        strings.ToLower(getEnv("TOKEN_STORE", "file")),
		TokenDir:              getEnv("TOKEN_DIR", "secrets"),
		RedisURL:              getEnv("REDIS_URL", ""),
		RedisTLSInsecure:      strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:        getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:      mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		TokenWarmupInterval:   mustDuration(getEnv("TOKEN_WARMUP_INTERVAL", "30m")),
		TenantReloadInterval:  mustDuration(getEnv("TENANT_RELOAD_INTERVAL", "5m")),
		CRMTimeout:            mustDuration(getEnv("CRM_TIMEOUT", "15s")),
		OAuthTimeout:          mustDuration(getEnv("OAUTH_TIMEOUT", "15s")),
		WhatsAppAccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppVerifyToken:   getEnv("WHATSAPP_WEBHOOK_VERIFY_TOKEN", ""),
		WhatsAppGraphURL:      getEnv("WHATSAPP_GRAPH_URL", "https://graph.facebook.com/v19.0"),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		OllamaURL:             getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:           getEnv("OLLAMA_MODEL", "phi3:mini"),
		LLMTimeout:            mustDuration(getEnv("LLM_TIMEOUT", "60s")),
		QdrantURL:             getEnv("QDRANT_URL", ""),
		QdrantAPIKey:          getEnv("QDRANT_API_KEY", ""),
		QdrantCollection:      getEnv("QDRANT_COLLECTION", ""),
		EmbeddingAPIURL:       getEnv("EMBEDDING_API_URL", ""),
		EmbeddingAPIKey:       getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingModel:        getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
		EmbeddingDim:          mustInt(getEnv("EMBEDDING_DIM", "768")),
		RAGFetchTimeout:       mustDuration(getEnv("RAG_FETCH_TIMEOUT", "30s")),
		AdminToken:            getEnv("ADMIN_TOKEN", ""),
	}

	if cfg.TenantsFile == "" {
		return nil, fmt.Errorf("TENANTS_FILE is required")
	}
	if cfg.TokenStoreKind != "file" && cfg.TokenStoreKind != "redis" {
		return nil, fmt.Errorf("TOKEN_STORE must be 'file' or 'redis', got %q", cfg.TokenStoreKind)
	}
	if cfg.TokenStoreKind == "redis" && cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required when TOKEN_STORE is redis")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustInt(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
