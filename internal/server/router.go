package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"webmaster-monitor/internal/config"
	"webmaster-monitor/internal/handler"
	"webmaster-monitor/internal/hub"
	"webmaster-monitor/internal/logging"
	"webmaster-monitor/internal/metrics"
	"webmaster-monitor/internal/middleware"
)

type Deps struct {
	Config      config.Config
	Credentials middleware.Verifier
	Aggregator  handler.Assembler
	Database    handler.Pinger
	Coordinator handler.Applier
	Details     handler.DetailsSource
	Poller      handler.VersionChecker
	Hub         *hub.Hub
	Metrics     *metrics.Metrics

	// Gatherer backs /metrics. The route is not mounted when nil.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(logging.GinLogger(logger))
	r.Use(middleware.Instrument(deps.Metrics))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, middleware.ErrorBody("rest_no_route", "No route was found matching the URL and request method", http.StatusNotFound))
	})

	api := r.Group(cfg.APIPrefix)

	healthHandler := &handler.HealthHandler{
		Database:     deps.Database,
		ContentRoot:  cfg.ContentRoot,
		CronDisabled: cfg.CronDisabled,
		Logger:       logger.Named("health"),
	}
	api.GET("/health", healthHandler.Check)

	protected := api.Group("")
	protected.Use(middleware.RequireAPIKey(middleware.APIKeyOptions{
		Verifier: deps.Credentials,
		Locale:   cfg.Locale,
		Failures: middleware.NewRateLimiter(cfg.AuthFailureLimit, cfg.AuthFailureWindow),
		Metrics:  deps.Metrics,
	}))

	statusHandler := &handler.StatusHandler{Aggregator: deps.Aggregator, Logger: logger.Named("status")}
	protected.GET("/status", statusHandler.Full)
	protected.GET("/server", statusHandler.Server)
	protected.GET("/wordpress", statusHandler.Platform)

	pingHandler := &handler.PingHandler{AgentVersion: cfg.AgentVersion, SiteURL: cfg.SiteURL, Locale: cfg.Locale}
	protected.GET("/ping", pingHandler.Ping)

	// Installs and forced checks share one budget per client.
	throttle := middleware.RateLimitMiddleware(middleware.NewRateLimiter(cfg.UpdateRateLimit, cfg.UpdateRateWindow), cfg.Locale)

	updateHandler := &handler.UpdateHandler{Coordinator: deps.Coordinator, Locale: cfg.Locale}
	protected.POST("/apply-update", throttle, updateHandler.Apply)

	if deps.Details != nil {
		detailsHandler := &handler.DetailsHandler{Catalog: deps.Details, Locale: cfg.Locale, Logger: logger.Named("details")}
		protected.GET("/details/:slug", detailsHandler.Get)
	}

	if deps.Poller != nil {
		selfHandler := &handler.SelfUpdateHandler{Poller: deps.Poller, CurrentVersion: cfg.AgentVersion, Basename: cfg.AgentBasename}
		protected.GET("/self-update", selfHandler.Info)
		protected.POST("/self-update/check", throttle, selfHandler.Check)
	}

	if deps.Hub != nil {
		eventsHandler := &handler.EventsHandler{Hub: deps.Hub, Logger: logger.Named("events")}
		protected.GET("/events", eventsHandler.Serve)
	}

	if deps.Gatherer != nil {
		protected.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	return r
}
