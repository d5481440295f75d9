package rbac

import (
	"context"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/contextkeys"
)

// WithSubject stores the caller as resolved by the server-side check
func WithSubject(ctx context.Context, user *auth.User) context.Context {
	return contextkeys.WithSubject(ctx, user)
}

// SubjectFromContext returns the caller resolved by PermissionMiddleware, or
// nil when the route was not guarded
func SubjectFromContext(ctx context.Context) *auth.User {
	user, _ := ctx.Value(contextkeys.SubjectKey).(*auth.User)
	return user
}
