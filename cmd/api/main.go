package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatlead_backend/internal/admin"
	"chatlead_backend/internal/channel/whatsapp"
	"chatlead_backend/internal/conversation"
	"chatlead_backend/internal/crm"
	"chatlead_backend/internal/events"
	apphttp "chatlead_backend/internal/http"
	"chatlead_backend/internal/http/router"
	"chatlead_backend/internal/llm"
	"chatlead_backend/internal/oauth"
	"chatlead_backend/internal/oauthflow"
	"chatlead_backend/internal/rag"
	"chatlead_backend/internal/tenant"
	"chatlead_backend/platform/ai/embeddingapi"
	"chatlead_backend/platform/config"
	"chatlead_backend/platform/logger"
	"chatlead_backend/platform/qdrant"
	"chatlead_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	tenants := tenant.NewRegistry(cfg.TenantsFile, val, log)
	if err := withRetry(ctx, log, "tenant configuration load", 5, 2*time.Second, func() error {
		return tenants.Load(ctx)
	}); err != nil {
		// Serve with an empty registry; /admin/tenants/reload recovers once
		// the file is fixed.
		log.Error("failed to load tenant configuration, serving with empty registry", "error", err)
	} else {
		log.Info("tenant configuration loaded", "tenants", tenants.Count())
	}

	tokenStore, err := newTokenStore(cfg)
	if err != nil {
		log.Error("failed to initialize token store", "error", err)
		panic("failed to initialize token store: " + err.Error())
	}
	tokenHub := oauth.NewHub(tokenStore, cfg.OAuthTimeout, eventBus, log)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	models := llm.NewRegistry()
	models.Register("ollama", llm.NewOllamaResponder(cfg.OllamaURL, cfg.OllamaModel, cfg.LLMTimeout, log))
	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiResponder(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
		if err != nil {
			log.Error("failed to initialize gemini responder", "error", err)
			panic("failed to initialize gemini responder: " + err.Error())
		}
		models.Register("gemini", gemini)
	}
	log.Info("llm responders registered", "models", models.Names())

	var retriever conversation.Retriever
	if cfg.IsRAGEnabled() {
		vectors := qdrant.NewClient(qdrant.Config{
			BaseURL:    cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
		})
		if err := withRetry(ctx, log, "qdrant collection", 5, 2*time.Second, func() error {
			return vectors.EnsureCollection(ctx, cfg.EmbeddingDim)
		}); err != nil {
			log.Error("failed to ensure qdrant collection", "error", err)
			panic("failed to ensure qdrant collection: " + err.Error())
		}

		embedder := embeddingapi.NewClient(embeddingapi.Config{
			BaseURL: cfg.EmbeddingAPIURL,
			APIKey:  cfg.EmbeddingAPIKey,
			Model:   cfg.EmbeddingModel,
		})
		retriever = rag.NewService(embedder, vectors, cfg.RAGFetchTimeout, log)
		log.Info("web RAG enabled", "collection", cfg.QdrantCollection)
	} else {
		log.Warn("web RAG disabled; QDRANT_URL, QDRANT_COLLECTION and EMBEDDING_API_URL are required")
	}

	conversations := conversation.NewManager(conversation.ManagerDeps{
		Tenants: tenants,
		Routers: func(t tenant.Config) conversation.LeadStore {
			return crm.NewRouter(t, func(t tenant.Config) crm.TokenSource {
				return tokenHub.Zoho(t)
			}, cfg.CRMTimeout, log)
		},
		Models:    models,
		Retriever: retriever,
		Bus:       eventBus,
		Log:       log,
	})

	whatsappClient := whatsapp.NewClient(cfg, log)
	if whatsappClient == nil {
		log.Warn("WhatsApp sending disabled; WHATSAPP_ACCESS_TOKEN and WHATSAPP_PHONE_NUMBER_ID are required")
	}
	whatsappModule := whatsapp.NewModule(cfg, tenants, conversations, whatsappClient, log)

	oauthModule := oauthflow.NewModule(tenants, tokenHub, cfg.PublicBaseURL, log)
	adminModule := admin.NewModule(tenants, conversations, tokenHub, eventBus, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			whatsappModule,
			oauthModule,
			adminModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func newTokenStore(cfg *config.Config) (oauth.TokenStore, error) {
	if cfg.TokenStoreKind == "redis" {
		return oauth.NewRedisStore(cfg.RedisURL)
	}
	return oauth.NewFileStore(cfg.TokenDir)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
