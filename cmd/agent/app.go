package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"webmaster-monitor/internal/auth"
	"webmaster-monitor/internal/catalog"
	"webmaster-monitor/internal/collect"
	"webmaster-monitor/internal/config"
	"webmaster-monitor/internal/host"
	"webmaster-monitor/internal/hub"
	"webmaster-monitor/internal/install"
	"webmaster-monitor/internal/logging"
	"webmaster-monitor/internal/metrics"
	"webmaster-monitor/internal/schedule"
	"webmaster-monitor/internal/selfupdate"
	"webmaster-monitor/internal/server"
	"webmaster-monitor/internal/settings"
	"webmaster-monitor/internal/status"
	"webmaster-monitor/internal/update"
)

// app is the fully wired agent. Every subcommand builds one and closes it on
// exit.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	settings settings.Store
	redis    *redis.Client
	catalog  *catalog.Catalog
	creds    *auth.CredentialStore
	pipeline *install.Pipeline
	poller   *selfupdate.Poller
	coord    *update.Coordinator
	hub      *hub.Hub
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	runner   *schedule.Runner
	hooks    selfupdate.Registration
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, hub: hub.New()}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	switch cfg.SettingsBackend {
	case "redis":
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		rs := settings.NewRedisStore(a.redis)
		if err := rs.Ping(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("settings: %w", err)
		}
		a.settings = rs
	default:
		fs, err := settings.NewFileStore(cfg.SettingsFile)
		if err != nil {
			a.close()
			return nil, err
		}
		a.settings = fs
	}

	a.catalog, err = catalog.Open(ctx, catalog.Options{
		Driver:  cfg.DatabaseDriver,
		DSN:     cfg.DatabaseDSN,
		Prefix:  cfg.TablePrefix,
		SiteID:  cfg.SiteID,
		SiteURL: cfg.SiteURL,
		HomeURL: cfg.HomeURL,
		Logger:  logger,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	a.creds = auth.NewCredentialStore(a.settings)
	a.pipeline = install.NewPipeline(a.catalog, install.Layout{
		PluginsDir: cfg.PluginsDir,
		ThemesDir:  cfg.ThemesDir,
		CoreDir:    cfg.CoreDir,
		StagingDir: cfg.StagingDir,
	}, cfg.HTTPTimeout, logger)

	a.poller = selfupdate.NewPoller(a.settings, a.catalog, selfupdate.Options{
		MetadataURL:    cfg.MetadataURL,
		Slug:           cfg.AgentSlug,
		Basename:       cfg.AgentBasename,
		CurrentVersion: cfg.AgentVersion,
		HostName:       cfg.HostName,
		HomeURL:        cfg.HomeURL,
		PluginsDir:     cfg.PluginsDir,
		TTL:            cfg.UpdateCacheTTL,
		Timeout:        cfg.HTTPTimeout,
	}, a.metrics, a.hub, logger)
	a.hooks = a.poller.Register(a.pipeline)

	a.coord = update.NewCoordinator(a.catalog, a.pipeline, a.hub, a.metrics, cfg.Locale, logger)

	a.runner = schedule.New(cfg.CronDisabled, logger)
	for _, kind := range []host.Kind{host.KindPlugin, host.KindTheme, host.KindCore} {
		kind := kind
		err :=a.runner.Register("update-check-"+string(kind), cfg.CronInterval, func(ctx context.Context) error {
			_, err := a.catalog.RefreshUpdates(ctx, kind)
			return err
		})
		if err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

// activate mirrors the host activation hook: the credential is created on
// first start and kept afterwards, and the activation time is refreshed.
func (a *app) activate(ctx context.Context) error {
	_, created, err := a.creds.Activate(ctx)
	if err != nil {
		return err
	}
	if created {
		a.logger.Info("api key created; run `wm-agent key show` to read it")
	}
	return nil
}

func (a *app) deps() server.Deps {
	srv := collect.NewServerCollector(a.catalog, a.cfg.SiteURL, a.cfg.ContentRoot, a.cfg.UploadsDir, a.logger)
	return server.Deps{
		Config:      a.cfg,
		Credentials: a.creds,
		Aggregator: &status.Aggregator{
			Server:       srv,
			Platform:     &collect.PlatformCollector{Host: a.catalog},
			Tenant:       &collect.TenantCollector{Host: a.catalog},
			AgentVersion: a.cfg.AgentVersion,
		},
		Database:    a.catalog,
		Coordinator: a.coord,
		Details:     a.catalog,
		Poller:      a.poller,
		Hub:         a.hub,
		Metrics:     a.metrics,
		Gatherer:    a.registry,
		Logger:      a.logger,
	}
}

func (a *app) close() {
	a.hooks.Unregister()
	var errs []error
	if a.catalog != nil {
		errs = append(errs, a.catalog.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("close", zap.Error(err))
	}
	_ = a.logger.Sync()
}
