// Package httputil provides the JSON response helpers, request parsing and
// middleware shared by the warden HTTP handlers.
//
// Service errors are mapped onto statuses in one place:
//
//	if err != nil {
//		httputil.WriteServiceError(w, r, err)
//		return
//	}
//
// ValidationError becomes 422 with {"error", "field"}, ErrNotFound 404,
// ErrPermissionDenied 403, ErrConflict 409 and anything else a logged 500.
//
// Middleware composes with Chain, outermost first:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//	)(router)
package httputil
