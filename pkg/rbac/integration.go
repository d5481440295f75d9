package rbac

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/cache"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/permissions"
)

// Config holds RBAC configuration
type Config struct {
	// Cache configures the role defaults cache
	Cache cache.Config
}

// DefaultConfig returns default RBAC configuration
func DefaultConfig() Config {
	return Config{
		Cache: cache.DefaultConfig(),
	}
}

// Manager wires the store, cache, checker, service, middleware and handlers
type Manager struct {
	store      *Store
	roles      *cache.RoleDefaults
	checker    *Checker
	service    *Service
	middleware *PermissionMiddleware
	handlers   *Handlers
	config     Config
}

// NewManager creates a new RBAC manager. rdb, auditLogger and metrics may
// be nil; without Redis the role cache is in-process only.
func NewManager(db *sql.DB, rdb *redis.Client, catalog permissions.CatalogProvider, auditLogger audit.Logger, metrics *observability.Metrics, config Config) *Manager {
	store := NewStore(db)
	roles := cache.NewRoleDefaults(config.Cache, rdb, store.RolePermissions, metrics)
	checker := NewChecker(store, roles, permissions.NewCalculator(catalog), metrics)
	service := NewService(store, checker, roles, auditLogger, metrics)
	middleware := NewPermissionMiddleware(checker, auditLogger, metrics)

	return &Manager{
		store:      store,
		roles:      roles,
		checker:    checker,
		service:    service,
		middleware: middleware,
		handlers:   NewHandlers(service, checker, middleware),
		config:     config,
	}
}

// Initialize runs the database migrations
func (m *Manager) Initialize(ctx context.Context, logger *observability.Logger) error {
	if err := RunMigrations(ctx, m.store.db, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// RegisterRoutes registers RBAC routes with a router
func (m *Manager) RegisterRoutes(router *mux.Router) {
	m.handlers.RegisterRoutes(router)
}

// GetStore returns the RBAC store
func (m *Manager) GetStore() *Store {
	return m.store
}

// GetChecker returns the permission checker
func (m *Manager) GetChecker() *Checker {
	return m.checker
}

// GetService returns the role and override service
func (m *Manager) GetService() *Service {
	return m.service
}

// GetMiddleware returns the permission middleware
func (m *Manager) GetMiddleware() *PermissionMiddleware {
	return m.middleware
}

// GetRoleCache returns the role defaults cache
func (m *Manager) GetRoleCache() *cache.RoleDefaults {
	return m.roles
}
