// Package auth defines the authenticated principal of a request and the
// bearer tokens that identify it.
//
// Tokens have the form wdn_<base64url>. Only a SHA256 hash is stored; the
// plaintext is shown once at creation.
//
//	store := auth.NewTokenStore(db)
//	_, token, err := store.CreateToken(ctx, userID, "ci", nil)
//	authCtx, err := store.ValidateToken(ctx, token)
//
// User implements permissions.Subject. RolePermissions is filled in by the
// rbac package when permissions are resolved; ValidateToken only loads the
// role slug.
package auth
