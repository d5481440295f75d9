// Package rbac provides role storage, per-user permission overrides and
// server-side enforcement for the warden admin API.
//
// # Overview
//
// Every user belongs to one organization and holds exactly one role. A role
// carries a default permission set; a user additionally carries an override
// made of a grant list and a revoke list. The effective set is
//
//	(role defaults ∪ grant) \ revoke
//
// except for the admin role, which bypasses the calculation and holds every
// key in the catalog.
//
// # Roles
//
// System roles (admin, manager, agent, viewer) are seeded per organization
// by Service.BootstrapOrganization. They cannot be modified or deleted: an
// update returns an apperrors.ValidationError and leaves the row untouched.
// Custom roles are created, edited and deleted through the Service; a role
// still assigned to users cannot be deleted (apperrors.ErrConflict).
//
// # Overrides
//
// Service.UpdateUserPermissions replaces both override lists with a single
// UPDATE, so a save is never half applied. Keys are validated against the
// catalog, a key may not appear in both lists, and the stored pair is
// normalized against the role defaults. Each save bumps the user's
// permissions_version. Clients that send the version they last read get a
// 409 when someone else saved in between; clients that omit it get last
// write wins.
//
// # Enforcement
//
// PermissionMiddleware reloads the caller on every request and re-runs the
// calculator against the stored role and override. Role defaults come from
// the two-tier cache in pkg/cache and are invalidated on every role write.
//
//	api := router.PathPrefix("/api/v1").Subrouter()
//	api.Use(authMiddleware.Handler)
//	manager.RegisterRoutes(api)
//
//	// Or guard a single handler
//	guard := manager.GetMiddleware()
//	router.Handle("/export", guard.RequirePermission("contacts.export")(exportHandler))
//
// Denied requests receive 403 and are written to the audit log; requests
// without an authenticated user receive 401.
//
// # Database
//
// RunMigrations creates organizations, roles, users, api_tokens and
// audit_logs on PostgreSQL. Permission sets are stored as JSON arrays.
package rbac
