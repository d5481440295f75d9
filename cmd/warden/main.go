package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/cache"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/permissions"
	"github.com/platinummonkey/warden/pkg/rbac"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warden: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("warden stopped")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("init opentelemetry: %w", err)
	}

	db, err := connectDatabase(cfg.Database)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		rdb, err = cache.NewRedisClient(ctx, cfg.Redis.Options())
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		logger.Info("Redis role cache enabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	catalog, err := loadCatalog(ctx, cfg.Catalog, metrics)
	if err != nil {
		return err
	}

	dbAudit, err := audit.NewDBLogger(db)
	if err != nil {
		return fmt.Errorf("create audit logger: %w", err)
	}
	var auditLogger audit.Logger = dbAudit
	if cfg.Audit.LogEvents {
		auditLogger = audit.NewMultiLogger(dbAudit, audit.NewSlogLogger(logger.WithField("component", "audit")))
	}

	manager := rbac.NewManager(db, rdb, catalog, auditLogger, metrics, rbac.Config{Cache: cfg.Cache})
	if err := manager.Initialize(ctx, logger); err != nil {
		return err
	}

	router := mux.NewRouter()
	router.Use(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware(logger),
		observability.HTTPMetricsMiddleware(metrics),
	)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(
		httputil.MaxBytesMiddleware(1<<20),
		middleware.NewAuthMiddleware(auth.NewTokenStore(db), false).Handler,
	)
	if cfg.RateLimit.Enabled {
		api.Use(middleware.RateLimit(newLimiter(ctx, rdb, cfg.RateLimit.RateLimitConfig)))
	}
	manager.RegisterRoutes(api)
	audit.NewHandlers(dbAudit).RegisterRoutes(api, mux.MiddlewareFunc(manager.GetMiddleware().RequirePermission(rbac.PermAuditView)))

	var handler http.Handler = router
	if cfg.Observability.OTelEnabled {
		handler = observability.HTTPTracingMiddleware("warden")(router)
	}

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, rdb, func() int { return catalog.Catalog().Len() }, version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthSrv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.UpdateDBStats(db)
			}
		}
	}()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, srv, healthSrv)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		cancel()
		return observability.ShutdownOTel(ctx, providers, logger)
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		if rdb == nil {
			return nil
		}
		return rdb.Close()
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return db.Close()
	})

	for _, s := range []*http.Server{srv, healthSrv} {
		go func(s *http.Server) {
			logger.Infof("Listening on %s", s.Addr)
			if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Errorf("server on %s failed", s.Addr)
				os.Exit(1)
			}
		}(s)
	}

	return shutdown.WaitForShutdown()
}

func connectDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// loadCatalog returns the embedded catalog, or the configured file kept
// current by a watcher when Watch is set.
func loadCatalog(ctx context.Context, cfg config.CatalogConfig, metrics *observability.Metrics) (*permissions.LiveCatalog, error) {
	initial := permissions.DefaultCatalog()
	if cfg.Path != "" {
		c, err := permissions.LoadCatalogFile(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		initial = c
	}

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	live := permissions.NewLiveCatalog(initial, log)
	live.OnReload(func(c *permissions.Catalog) { metrics.SetCatalogSize(c.Len()) })
	metrics.SetCatalogSize(initial.Len())

	if cfg.Watch {
		if err := live.Watch(ctx, cfg.Path); err != nil {
			return nil, fmt.Errorf("watch catalog: %w", err)
		}
	}
	return live, nil
}

func newLimiter(ctx context.Context, rdb *redis.Client, cfg middleware.RateLimitConfig) middleware.Limiter {
	if rdb != nil {
		return middleware.NewRedisLimiter(rdb, cfg, "warden:ratelimit")
	}
	limiter := middleware.NewMemoryLimiter(cfg)
	limiter.StartCleanup(ctx)
	return limiter
}
