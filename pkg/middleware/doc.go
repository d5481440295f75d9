// Package middleware provides request authentication and write rate
// limiting for the warden API.
//
// AuthMiddleware resolves "Authorization: Bearer wdn_..." to an
// auth.AuthContext and stores it, the organization ID and the user ID in the
// request context. Permission checks live in the rbac package.
//
//	authMW := middleware.NewAuthMiddleware(tokenStore, false)
//	api.Use(authMW.Handler)
//	api.Use(middleware.RateLimit(middleware.NewRedisLimiter(rdb, cfg, "")))
package middleware
