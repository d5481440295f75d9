// Package observability provides structured logging, Prometheus metrics,
// health checks and OpenTelemetry tracing for warden.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("role_id", id).Info("role updated")
//
// Request-scoped logging picks up the request, user and organization IDs
// stored by the HTTP middleware:
//
//	observability.FromContext(ctx).Warn("permission denied")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.RecordDecision("api", "allowed")
//	metrics.RecordCache("l1", true)
//
// All Record helpers are safe on a nil *Metrics, so components can be built
// without instrumentation in tests.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, catalog.Len, version)
//	observability.RegisterHealthRoutes(healthMux, checker)
//
// Redis failures degrade readiness; database failures and an empty catalog
// fail it.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "warden",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
