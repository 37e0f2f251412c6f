package scheduler

import (
	"context"
	"fmt"

	"chatlead_backend/internal/tenant"
	"chatlead_backend/platform/apperr"
	"chatlead_backend/platform/config"
	"chatlead_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// TokenWarmer refreshes a tenant's access token ahead of demand.
type TokenWarmer interface {
	Warm(ctx context.Context, t tenant.Config) error
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	tenants *tenant.Registry
	tokens  TokenWarmer
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, tenants *tenant.Registry, tokens TokenWarmer, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		tenants: tenants,
		tokens:  tokens,
		log:     log,
	}

	mux.HandleFunc(TaskTokenWarmup, w.handleTokenWarmup)
	mux.HandleFunc(TaskTenantReload, w.handleTenantReload)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// handleTokenWarmup refreshes one tenant's access token so the first chat
// message after an idle period does not pay the refresh round trip. An
// unauthorized tenant is not an error worth retrying: the token only comes
// back through a human re-authorizing.
func (w *Worker) handleTokenWarmup(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseTokenWarmupPayload(task)
	if err != nil {
		return err
	}

	cfg, err := w.tenants.Get(payload.TenantID)
	if err != nil {
		w.log.Warn("token warmup for unknown tenant", "tenant_id", payload.TenantID)
		return nil
	}
	if cfg.CRM != tenant.CRMZoho || !cfg.Zoho.Complete() {
		return nil
	}

	if err := w.tokens.Warm(ctx, cfg); err != nil {
		if apperr.Is(err, apperr.KindAuth) {
			w.log.Warn("token warmup skipped, tenant not authorized", "tenant_id", payload.TenantID)
			return nil
		}
		return err
	}
	return nil
}

func (w *Worker) handleTenantReload(ctx context.Context, task *asynq.Task) error {
	if err := w.tenants.Reload(ctx); err != nil {
		w.log.Error("scheduled tenant reload failed", "error", err.Error())
		return err
	}
	w.log.Info("tenant configuration reloaded", "tenants", w.tenants.Count())
	return nil
}
