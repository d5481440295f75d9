package rbac

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/cache"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/permissions"
)

// MatchMode selects how a list of required keys is combined
type MatchMode int

const (
	// MatchAll requires every key
	MatchAll MatchMode = iota
	// MatchAny requires at least one key
	MatchAny
)

func (m MatchMode) String() string {
	if m == MatchAny {
		return "any"
	}
	return "all"
}

// Decision is the outcome of a server-side check
type Decision struct {
	Allowed  bool
	Subject  *auth.User
	Required []string
	Mode     MatchMode
}

// Checker answers permission questions from authoritative records. It
// never trusts the role defaults a client presents; it reloads the user and
// resolves the role through the defaults cache.
type Checker struct {
	store   *Store
	roles   *cache.RoleDefaults
	calc    *permissions.Calculator
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewChecker creates a checker. roles may be built with any loader, usually
// Store.RolePermissions.
func NewChecker(store *Store, roles *cache.RoleDefaults, calc *permissions.Calculator, metrics *observability.Metrics) *Checker {
	return &Checker{
		store:   store,
		roles:   roles,
		calc:    calc,
		metrics: metrics,
		tracer:  observability.Tracer(),
	}
}

// Calculator returns the calculator the checker uses
func (c *Checker) Calculator() *permissions.Calculator {
	return c.calc
}

// Resolve fills user.RolePermissions from the role defaults cache
func (c *Checker) Resolve(ctx context.Context, user *auth.User) error {
	if permissions.IsAdmin(user.Role) {
		user.RolePermissions = permissions.Set{}
		return nil
	}
	defaults, err := c.roles.Get(ctx, user.OrganizationID, user.Role)
	if err != nil {
		return fmt.Errorf("failed to resolve role %q: %w", user.Role, err)
	}
	user.RolePermissions = defaults
	return nil
}

// LoadSubject loads the authoritative user record with its role defaults
func (c *Checker) LoadSubject(ctx context.Context, orgID, userID int64) (*auth.User, error) {
	user, err := c.store.GetUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if err := c.Resolve(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Permissions builds the permission view of an already resolved user. The
// override is reported normalized against the current role defaults, so a
// role edit since it was stored never shows a key in both lists.
func (c *Checker) Permissions(user *auth.User) *UserPermissions {
	return &UserPermissions{
		UserID:          user.ID,
		Role:            user.Role,
		RolePermissions: user.RolePermissions,
		Permissions:     user.Permissions.Normalize(user.RolePermissions),
		Effective:       c.calc.For(user),
		Version:         user.PermissionsVersion,
	}
}

// Check reloads the user and evaluates keys with mode. A user that no
// longer exists or is inactive is denied.
func (c *Checker) Check(ctx context.Context, orgID, userID int64, mode MatchMode, keys ...string) (*Decision, error) {
	start := time.Now()
	defer c.metrics.ObserveCheck(start)

	ctx, span := c.tracer.Start(ctx, "rbac.Check", trace.WithAttributes(
		attribute.Int64("warden.organization_id", orgID),
		attribute.Int64("warden.user_id", userID),
		attribute.StringSlice("warden.permissions", keys),
		attribute.String("warden.match", mode.String()),
	))
	defer span.End()

	decision := &Decision{Required: keys, Mode: mode}

	user, err := c.LoadSubject(ctx, orgID, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load subject")
		return nil, err
	}
	decision.Subject = user

	if user.IsActive {
		switch mode {
		case MatchAny:
			decision.Allowed = c.calc.HasAny(user, keys...)
		default:
			decision.Allowed = c.calc.HasAll(user, keys...)
		}
	}

	span.SetAttributes(
		attribute.String("warden.role", user.Role),
		attribute.Bool("warden.allowed", decision.Allowed),
	)
	return decision, nil
}
