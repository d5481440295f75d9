package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/contextkeys"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/observability"
)

// TokenValidator resolves a bearer token to the authenticated principal
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.AuthContext, error)
}

// AuthMiddleware authenticates requests with bearer tokens
type AuthMiddleware struct {
	validator TokenValidator
	optional  bool
}

// NewAuthMiddleware creates a new authentication middleware. When optional
// is true, requests without an Authorization header pass through
// unauthenticated.
func NewAuthMiddleware(validator TokenValidator, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		optional:  optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			if m.optional && r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing or malformed authorization header")
			return
		}

		authCtx, err := m.validator.ValidateToken(r.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				observability.FromContext(r.Context()).WithError(err).Error("token validation failed")
			}
			httputil.WriteUnauthorized(w, auth.ErrInvalidToken.Error())
			return
		}

		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		ctx = contextkeys.WithOrgID(ctx, authCtx.OrgID())
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(authCtx.UserID(), 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken extracts the token from "Authorization: Bearer <token>"
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// GetAuthContext extracts auth context from the request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	return AuthFromContext(r.Context())
}

// AuthFromContext extracts auth context from ctx
func AuthFromContext(ctx context.Context) *auth.AuthContext {
	authCtx, _ := ctx.Value(contextkeys.AuthKey).(*auth.AuthContext)
	return authCtx
}

// RequireAuth rejects requests that carry no authenticated user
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authCtx := GetAuthContext(r); authCtx == nil || authCtx.User == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
