package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samvad-hq/capsule/internal/config"
	"github.com/samvad-hq/capsule/internal/logger"
	"github.com/samvad-hq/capsule/internal/runner"
	"github.com/samvad-hq/capsule/internal/storage"
	"github.com/samvad-hq/capsule/pkg/httpclient"
	"github.com/samvad-hq/capsule/pkg/publishers"
	"github.com/samvad-hq/capsule/pkg/requests"
)

// App is the batch runtime. It loads request definitions, runs them once or
// on an interval, and hands results to the store and publishers.
type App struct {
	cfg      *config.Config
	reqReg   *requests.Registry
	fanout   *publishers.Fanout
	runner   *runner.Service
	interval time.Duration
	log      logger.Logger
	store    storage.Store
}

// New builds the runtime from config files.
func New(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...httpclient.Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	reqReg, err := requests.LoadRegistry(cfg.RequestsFile)
	if err != nil {
		return nil, fmt.Errorf("load requests registry: %w", err)
	}
	all := reqReg.All()
	ids := make([]string, 0, len(all))
	for _, def := range all {
		ids = append(ids, def.ID)
	}
	log.InfoObj("requests registry loaded", "requests_meta", map[string]any{
		"count": len(ids),
		"ids":   ids,
	})

	fanout, err := buildFanout(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	storeOpts := storage.Options{
		RecordTTL:       cfg.StorageTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	}
	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storeOpts)
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"record_ttl_seconds":       int(cfg.StorageTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	if cfg.StrictMethods {
		opts = append(opts, httpclient.WithStrictMethods())
	}
	dispatcher := httpclient.NewDispatcher(opts...)

	return &App{
		cfg:      cfg,
		reqReg:   reqReg,
		fanout:   fanout,
		runner:   runner.NewService(dispatcher, fanout, log, store),
		interval: cfg.RunInterval,
		log:      log,
		store:    store,
	}, nil
}

// buildFanout loads publishers; an empty publishers_file means none.
func buildFanout(ctx context.Context, cfg *config.Config, log logger.Logger) (*publishers.Fanout, error) {
	if strings.TrimSpace(cfg.PublishersFile) == "" {
		return publishers.NewFanout(nil), nil
	}

	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabled := publisherReg.Enabled()
	pubClients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, pubCfg := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return publishers.NewFanout(pubClients), nil
}

// Run executes the enabled requests once, or on every tick when an interval
// is configured, until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.runner == nil {
		return fmt.Errorf("app is not initialized")
	}
	defer a.close()

	defs := a.reqReg.Enabled()
	if len(defs) == 0 {
		a.log.WarnObj("no enabled requests; nothing to run", "requests_file", a.cfg.RequestsFile)
		return nil
	}

	if a.interval <= 0 {
		return a.runOnce(ctx, defs)
	}

	a.log.InfoObj("run loop starting", "run_state", map[string]any{
		"requests_count":   len(defs),
		"publishers_count": a.fanout.Size(),
		"run_interval":     a.interval.String(),
	})

	if err := a.runOnce(ctx, defs); err != nil {
		a.log.ErrorObj("initial run failed", "error", err)
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.InfoObj("run loop exiting", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if err := a.runOnce(ctx, defs); err != nil {
				a.log.ErrorObj("scheduled run failed", "error", err)
			}
		}
	}
}

// runOnce performs a single pass over all definitions.
func (a *App) runOnce(ctx context.Context, defs []requests.Definition) error {
	start := time.Now()
	a.log.InfoObj("run started", "run_meta", map[string]any{
		"requests_count": len(defs),
		"started_at":     start.UTC(),
	})
	results, err := a.runner.Run(ctx, defs)
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	a.log.InfoObj("run completed", "run_meta", map[string]any{
		"requests_count": len(defs),
		"failed":         failed,
		"elapsed_ms":     time.Since(start).Milliseconds(),
	})
	return err
}

// close releases the store and publisher clients, logging any errors encountered.
func (a *App) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.ErrorObj("storage close failed", "error", err)
		}
	}
	if err := a.fanout.Close(); err != nil {
		a.log.ErrorObj("publishers close failed", "error", err)
	}
}
