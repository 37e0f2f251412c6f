package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"chatlead_backend/internal/events"
	"chatlead_backend/internal/oauth"
	"chatlead_backend/internal/scheduler"
	"chatlead_backend/internal/tenant"
	"chatlead_backend/platform/config"
	"chatlead_backend/platform/logger"
	"chatlead_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env)

	if !cfg.IsSchedulerEnabled() {
		log.Error("REDIS_URL not configured; worker has nothing to do")
		panic("REDIS_URL not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	tenants := tenant.NewRegistry(cfg.TenantsFile, val, log)
	if err := tenants.Load(ctx); err != nil {
		log.Error("failed to load tenant configuration", "error", err)
		panic("failed to load tenant configuration: " + err.Error())
	}

	tokenStore, err := newTokenStore(cfg)
	if err != nil {
		log.Error("failed to initialize token store", "error", err)
		panic("failed to initialize token store: " + err.Error())
	}
	tokenHub := oauth.NewHub(tokenStore, cfg.OAuthTimeout, eventBus, log)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	dispatcher := scheduler.NewDispatcher(cfg, client, tenants, log)
	go dispatcher.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, tenants, tokenHub, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	log.Info("worker listening",
		"queue", cfg.AsynqQueueName,
		"warmup_interval", cfg.TokenWarmupInterval.String(),
		"reload_interval", cfg.TenantReloadInterval.String())
	worker.Run(ctx)
}

func newTokenStore(cfg *config.Config) (oauth.TokenStore, error) {
	if cfg.TokenStoreKind == "redis" {
		return oauth.NewRedisStore(cfg.RedisURL)
	}
	return oauth.NewFileStore(cfg.TokenDir)
}
