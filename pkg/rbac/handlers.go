package rbac

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/matrix"
	"github.com/platinummonkey/warden/pkg/permissions"
)

// Permission keys guarding the admin API
const (
	PermRolesView   = "roles.view"
	PermRolesCreate = "roles.create"
	PermRolesEdit   = "roles.edit"
	PermRolesDelete = "roles.delete"
	PermTeamView    = "team.view"
	PermTeamManage  = "team.manage"
	// PermAuditView guards the audit trail, which is mounted outside this
	// package
	PermAuditView   = "settings.view"
)

// Handlers provides HTTP handlers for roles and user permissions
type Handlers struct {
	service *Service
	checker *Checker
	guard   *PermissionMiddleware
}

// NewHandlers creates new RBAC handlers
func NewHandlers(service *Service, checker *Checker, guard *PermissionMiddleware) *Handlers {
	return &Handlers{
		service: service,
		checker: checker,
		guard:   guard,
	}
}

// AvailablePermissionsResponse is the body of GET /available-permissions
type AvailablePermissionsResponse struct {
	Groups map[string]permissions.Group `json:"groups"`
}

// MeResponse is the body of GET /me
type MeResponse struct {
	User      *auth.User      `json:"user"`
	Effective permissions.Set `json:"effective"`
}

// RegisterRoutes registers the RBAC routes. Callers mount router behind
// the authentication middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	handle := func(path, key string, fn http.HandlerFunc, methods ...string) {
		router.Handle(path, h.guard.RequirePermission(key)(fn)).Methods(methods...)
	}

	handle("/available-permissions", PermRolesView, h.availablePermissions, http.MethodGet)

	// Role management
	handle("/roles", PermRolesView, h.listRoles, http.MethodGet)
	handle("/roles", PermRolesCreate, h.createRole, http.MethodPost)
	handle("/roles/{id:[0-9]+}", PermRolesView, h.getRole, http.MethodGet)
	handle("/roles/{id:[0-9]+}", PermRolesEdit, h.updateRole, http.MethodPatch, http.MethodPut)
	handle("/roles/{id:[0-9]+}", PermRolesDelete, h.deleteRole, http.MethodDelete)

	// User permissions
	handle("/users", PermTeamView, h.listUsers, http.MethodGet)
	handle("/users/{id:[0-9]+}/permissions", PermTeamView, h.getUserPermissions, http.MethodGet)
	handle("/users/{id:[0-9]+}/permissions", PermTeamManage, h.updateUserPermissions, http.MethodPatch)
	handle("/users/{id:[0-9]+}/role", PermTeamManage, h.assignRole, http.MethodPut)
	handle("/users/{id:[0-9]+}/matrix/{module}", PermTeamView, h.getUserMatrix, http.MethodGet)

	// Any authenticated user may refresh their own snapshot
	router.Handle("/me", h.guard.RequireAllPermissions()(http.HandlerFunc(h.me))).Methods(http.MethodGet)
}

func (h *Handlers) availablePermissions(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, AvailablePermissionsResponse{Groups: h.service.Catalog().Groups()})
}

func (h *Handlers) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context(), callerOrg(r))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

func (h *Handlers) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.service.GetRole(r.Context(), callerOrg(r), id)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

func (h *Handlers) createRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := h.service.CreateRole(r.Context(), callerOrg(r), req)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, role)
}

func (h *Handlers) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := h.service.UpdateRole(r.Context(), callerOrg(r), id, req)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

func (h *Handlers) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteRole(r.Context(), callerOrg(r), id); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context(), callerOrg(r))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, users)
}

func (h *Handlers) getUserPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	view, err := h.service.UserPermissions(r.Context(), callerOrg(r), id)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, view)
}

func (h *Handlers) updateUserPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdatePermissionsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	view, err := h.service.UpdateUserPermissions(r.Context(), callerOrg(r), id, req)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, view)
}

func (h *Handlers) assignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req AssignRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	view, err := h.service.AssignRole(r.Context(), callerOrg(r), id, req)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, view)
}

func (h *Handlers) getUserMatrix(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	module, err := httputil.ParsePathString(r, "module")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	target, err := h.checker.LoadSubject(r.Context(), callerOrg(r), id)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	caller := SubjectFromContext(r.Context())
	canEdit := caller != nil && h.checker.Calculator().HasPermission(caller, PermTeamManage)

	m, err := matrix.Build(h.service.Catalog(), module, matrix.Input{
		Role:     target.Role,
		Defaults: target.RolePermissions,
		Override: target.Permissions,
		CanEdit:  canEdit,
	})
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	user := SubjectFromContext(r.Context())
	if user == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	httputil.WriteSuccess(w, MeResponse{
		User:      user,
		Effective: h.checker.Calculator().For(user),
	})
}

// callerOrg is the tenant of the request. Every route is behind the auth
// middleware, so a zero value only reaches stores that will match nothing.
func callerOrg(r *http.Request) int64 {
	if user := SubjectFromContext(r.Context()); user != nil {
		return user.OrganizationID
	}
	return 0
}
