package rbac

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
)

const guardName = "server"

// PermissionMiddleware enforces permissions on the server. It reloads the
// caller from the database on every request instead of trusting the role
// snapshot carried by the token.
type PermissionMiddleware struct {
	checker *Checker
	audit   audit.Logger
	metrics *observability.Metrics
}

// NewPermissionMiddleware creates a new permission middleware
func NewPermissionMiddleware(checker *Checker, auditLogger audit.Logger, metrics *observability.Metrics) *PermissionMiddleware {
	return &PermissionMiddleware{
		checker: checker,
		audit:   auditLogger,
		metrics: metrics,
	}
}

// RequirePermission requires a single permission key
func (pm *PermissionMiddleware) RequirePermission(key string) func(http.Handler) http.Handler {
	return pm.require(MatchAll, key)
}

// RequireAnyPermission requires at least one of keys
func (pm *PermissionMiddleware) RequireAnyPermission(keys ...string) func(http.Handler) http.Handler {
	return pm.require(MatchAny, keys...)
}

// RequireAllPermissions requires every one of keys
func (pm *PermissionMiddleware) RequireAllPermissions(keys ...string) func(http.Handler) http.Handler {
	return pm.require(MatchAll, keys...)
}

func (pm *PermissionMiddleware) require(mode MatchMode, keys ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := middleware.GetAuthContext(r)
			if authCtx == nil || authCtx.User == nil {
				pm.metrics.RecordDecision(guardName, "unauthenticated")
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			decision, err := pm.checker.Check(r.Context(), authCtx.OrgID(), authCtx.UserID(), mode, keys...)
			if errors.Is(err, apperrors.ErrNotFound) {
				// The token outlived its user
				pm.metrics.RecordDecision(guardName, "unauthenticated")
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if err != nil {
				pm.metrics.RecordDecision(guardName, "error")
				httputil.WriteServiceError(w, r, err)
				return
			}

			if !decision.Allowed {
				pm.metrics.RecordDecision(guardName, "denied")
				pm.recordDenied(r, authCtx, decision)
				httputil.WriteServiceError(w, r, apperrors.Denied(strings.Join(keys, ", ")))
				return
			}

			pm.metrics.RecordDecision(guardName, "allowed")
			ctx := WithSubject(r.Context(), decision.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (pm *PermissionMiddleware) recordDenied(r *http.Request, authCtx *auth.AuthContext, decision *Decision) {
	actor := authCtx.UserID()
	audit.Record(r.Context(), pm.audit, &audit.Event{
		EventType:      audit.EventAccessDenied,
		Status:         audit.StatusDenied,
		OrganizationID: authCtx.OrgID(),
		ActorID:        &actor,
		ResourceType:   audit.ResourcePermission,
		ResourceID:     strings.Join(decision.Required, ","),
		Message:        r.Method + " " + r.URL.Path + " denied for user " + strconv.FormatInt(actor, 10),
	})
}
