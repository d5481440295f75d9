package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/jobs"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/permissions"
	"github.com/platinummonkey/warden/pkg/rbac"
)

var (
	logLevel    = flag.String("log-level", getEnv("WARDEN_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	runOnce     = flag.Bool("run-once", false, "Scan once and exit")
	prune       = flag.Bool("prune", false, "Remove retired keys from stored overrides (overrides WARDEN_SCANNER_PRUNE)")
	jobTimeout  = flag.Duration("job-timeout", 10*time.Minute, "Maximum duration of a single job run")
	metricsAddr = flag.String("metrics-addr", getEnv("WARDEN_SCANNER_METRICS_ADDR", ":9091"), "Address serving /metrics; empty disables it")
)

func main() {
	flag.Parse()

	logger := setupLogger(*logLevel)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := connectDatabase(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	catalog := permissions.DefaultCatalog()
	if cfg.Catalog.Path != "" {
		catalog, err = permissions.LoadCatalogFile(cfg.Catalog.Path)
		if err != nil {
			logger.Fatalf("Failed to load catalog: %v", err)
		}
	}
	live := permissions.NewLiveCatalog(catalog, logger)

	auditLogger, err := audit.NewDBLogger(db)
	if err != nil {
		logger.Fatalf("Failed to create audit logger: %v", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	metrics.SetCatalogSize(catalog.Len())
	live.OnReload(func(c *permissions.Catalog) { metrics.SetCatalogSize(c.Len()) })

	scanner := jobs.NewStaleOverrideScanner(rbac.NewStore(db), live, auditLogger, metrics, logger, cfg.Scanner.Prune || *prune)
	scheduler := jobs.NewScheduler(logger, *jobTimeout)

	if *runOnce {
		if err := scheduler.RunNow(scanner); err != nil {
			logger.Fatalf("Scan failed: %v", err)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Catalog.Watch {
		if err := live.Watch(ctx, cfg.Catalog.Path); err != nil {
			logger.Fatalf("Failed to watch catalog: %v", err)
		}
	}

	if err := scheduler.Add(cfg.Scanner.Schedule, scanner); err != nil {
		logger.Fatalf("Failed to schedule scanner: %v", err)
	}
	logger.Infof("Scheduled %s: %s", scanner.Name(), cfg.Scanner.Schedule)

	if cfg.Scanner.AuditCleanupSchedule != "" {
		cleanup := jobs.NewAuditCleanup(auditLogger, cfg.Audit.Retention, logger)
		if err := scheduler.Add(cfg.Scanner.AuditCleanupSchedule, cleanup); err != nil {
			logger.Fatalf("Failed to schedule audit cleanup: %v", err)
		}
		logger.Infof("Scheduled %s: %s", cleanup.Name(), cfg.Scanner.AuditCleanupSchedule)
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		observability.RegisterMetricsEndpoint(mux, registry)
		srv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("Metrics server failed: %v", err)
			}
		}()
		defer srv.Close()
	}

	scheduler.Start()
	logger.Info("Warden scanner started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Received shutdown signal, stopping scheduler...")
	scheduler.Stop()
	logger.Info("Warden scanner stopped")
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func connectDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
