package scheduler

import (
	"context"
	"time"

	"chatlead_backend/internal/tenant"
	"chatlead_backend/platform/config"
	"chatlead_backend/platform/logger"
)

// Dispatcher periodically enqueues the recurring jobs: a token warmup per
// OAuth-configured tenant and a tenant config reload.
type Dispatcher struct {
	client      *Client
	tenants     *tenant.Registry
	warmupEvery time.Duration
	reloadEvery time.Duration
	log         *logger.Logger
}

func NewDispatcher(cfg config.SchedulerConfig, client *Client, tenants *tenant.Registry, log *logger.Logger) *Dispatcher {
	warmup := cfg.GetTokenWarmupInterval()
	if warmup <= 0 {
		warmup = 30 * time.Minute
	}
	reload := cfg.GetTenantReloadInterval()
	if reload <= 0 {
		reload = 5 * time.Minute
	}

	return &Dispatcher{
		client:      client,
		tenants:     tenants,
		warmupEvery: warmup,
		reloadEvery: reload,
		log:         log,
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil {
		return
	}

	warmupTicker := time.NewTicker(d.warmupEvery)
	defer warmupTicker.Stop()
	reloadTicker := time.NewTicker(d.reloadEvery)
	defer reloadTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-warmupTicker.C:
			d.enqueueWarmups(ctx)
		case <-reloadTicker.C:
			if err := d.client.EnqueueTenantReload(ctx); err != nil {
				d.log.Warn("tenant reload enqueue failed", "error", err)
			}
		}
	}
}

func (d *Dispatcher) enqueueWarmups(ctx context.Context) {
	for _, cfg := range d.tenants.All() {
		if cfg.CRM != tenant.CRMZoho || !cfg.Zoho.Complete() {
			continue
		}
		err := d.client.EnqueueTokenWarmup(ctx, TokenWarmupPayload{
			TenantID: cfg.TenantID,
			Provider: "zoho",
		})
		if err != nil {
			d.log.Warn("token warmup enqueue failed", "tenant_id", cfg.TenantID, "error", err)
		}
	}
}
