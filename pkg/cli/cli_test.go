package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/guard"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/matrix"
	"github.com/platinummonkey/warden/pkg/permissions"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// fakeAPI serves just enough of the admin API for the commands. Tokens
// "owner", "manager" and "agent" map to users; anything else is
// unauthenticated.
type fakeAPI struct {
	mu      sync.Mutex
	hits    []string
	target  *rbac.UserPermissions
	patched *rbac.UpdatePermissionsRequest
	server  *httptest.Server
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{
		target: &rbac.UserPermissions{
			UserID:          3,
			Role:            "agent",
			RolePermissions: permissions.SetOf("contacts.view", "contacts.edit"),
			Permissions:     permissions.Override{Grant: permissions.SetOf(), Revoke: permissions.SetOf()},
			Effective:       permissions.SetOf("contacts.view", "contacts.edit"),
			Version:         2,
		},
	}

	r := mux.NewRouter()
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(api.record)
	v1.HandleFunc("/me", api.me).Methods(http.MethodGet)
	v1.HandleFunc("/available-permissions", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteSuccess(w, rbac.AvailablePermissionsResponse{Groups: permissions.DefaultCatalog().Groups()})
	}).Methods(http.MethodGet)
	v1.HandleFunc("/roles", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteSuccess(w, []rbac.Role{
			{ID: 1, Slug: "admin", Name: "Administrator", IsSystem: true, UserCount: 1},
			{ID: 9, Slug: "sales-rep", Name: "Sales Rep", UserCount: 2, PermissionCount: 3},
		})
	}).Methods(http.MethodGet)
	v1.HandleFunc("/roles", func(w http.ResponseWriter, r *http.Request) {
		var req rbac.CreateRoleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		httputil.WriteJSON(w, http.StatusCreated, rbac.Role{
			ID: 12, Slug: "field-sales", Name: req.Name, Permissions: permissions.SetOf(req.Permissions...),
		})
	}).Methods(http.MethodPost)
	v1.HandleFunc("/roles/{id}", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteServiceError(w, r, apperrors.Conflict("role is assigned to 2 user(s)"))
	}).Methods(http.MethodDelete)
	v1.HandleFunc("/roles/{id}", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteServiceError(w, r, apperrors.NewValidation("role", "system role %q cannot be modified", "viewer"))
	}).Methods(http.MethodPatch)
	v1.HandleFunc("/users/3/permissions", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		defer api.mu.Unlock()
		httputil.WriteSuccess(w, api.target)
	}).Methods(http.MethodGet)
	v1.HandleFunc("/users/3/permissions", api.patchPermissions).Methods(http.MethodPatch)
	v1.HandleFunc("/users/3/matrix/{module}", func(w http.ResponseWriter, r *http.Request) {
		m, err := matrix.Build(permissions.DefaultCatalog(), mux.Vars(r)["module"], matrix.Input{
			Role:     "agent",
			Defaults: permissions.SetOf("contacts.view", "contacts.edit"),
			Override: permissions.Override{Grant: permissions.SetOf("contacts.delete"), Revoke: permissions.SetOf("contacts.edit")},
			CanEdit:  true,
		})
		if err != nil {
			httputil.WriteServiceError(w, r, err)
			return
		}
		httputil.WriteSuccess(w, m)
	}).Methods(http.MethodGet)
	v1.HandleFunc("/audit/events", func(w http.ResponseWriter, r *http.Request) {
		actor := int64(1)
		httputil.WriteSuccess(w, map[string]interface{}{
			"events": []audit.Event{{
				ID: 4, EventType: audit.EventPermissionsUpdate, Status: audit.StatusSuccess,
				ActorID: &actor, ResourceType: audit.ResourceUser, ResourceID: "3",
				Message: "updated permissions",
			}},
			"count": 1,
		})
	}).Methods(http.MethodGet)

	api.server = httptest.NewServer(r)
	t.Cleanup(api.server.Close)
	return api
}

func (a *fakeAPI) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.hits = append(a.hits, r.Method+" "+r.URL.Path)
		a.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (a *fakeAPI) me(w http.ResponseWriter, r *http.Request) {
	var user *auth.User
	switch r.Header.Get("Authorization") {
	case "Bearer owner":
		user = &auth.User{ID: 1, Name: "Owner", Email: "owner@acme.test", Role: permissions.AdminRole}
	case "Bearer manager":
		user = &auth.User{
			ID: 2, Name: "Mona", Email: "mona@acme.test", Role: "manager",
			RolePermissions: permissions.SetOf("roles.view", "team.view", "team.manage", "contacts.view"),
		}
	case "Bearer agent":
		user = &auth.User{
			ID: 3, Name: "Adel", Email: "adel@acme.test", Role: "agent",
			RolePermissions: permissions.SetOf("contacts.view", "contacts.edit", "team.view"),
			Permissions:     permissions.Override{Revoke: permissions.SetOf("team.view")},
		}
	default:
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "authentication required"})
		return
	}
	calc := permissions.NewCalculator(permissions.DefaultCatalog())
	httputil.WriteSuccess(w, rbac.MeResponse{User: user, Effective: calc.For(user)})
}

func (a *fakeAPI) patchPermissions(w http.ResponseWriter, r *http.Request) {
	var req rbac.UpdatePermissionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteServiceError(w, r, apperrors.NewValidation("body", "invalid"))
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.patched = &req
	if req.Version != nil && *req.Version != a.target.Version {
		httputil.WriteServiceError(w, r, apperrors.Conflict("permissions were changed by someone else"))
		return
	}
	o := permissions.Override{Grant: permissions.SetOf(req.Grant...), Revoke: permissions.SetOf(req.Revoke...)}
	a.target.Permissions = o
	a.target.Effective = permissions.Effective(a.target.RolePermissions, o.Grant, o.Revoke)
	a.target.Version++
	httputil.WriteSuccess(w, a.target)
}

func (a *fakeAPI) hit(call string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, h := range a.hits {
		if h == call {
			return true
		}
	}
	return false
}

// run executes a root command with the fake server's URL and token and
// returns what it printed
func (a *fakeAPI) run(t *testing.T, token string, args ...string) (string, error) {
	t.Helper()
	args = append(args, "-api", a.server.URL+"/api/v1", "-token", token)
	return capture(t, func() error { return NewRootCommand().ExecuteArgs(args) })
}

func capture(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	old := output
	output = &buf
	defer func() { output = old }()
	err := fn()
	return buf.String(), err
}

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()

	assert.Equal(t, "warden", root.Name)
	assert.NotNil(t, root.Flags)

	expected := []string{"me", "catalog", "roles", "users", "permissions", "toggle", "matrix", "assign", "audit"}
	for _, name := range expected {
		assert.Contains(t, root.Subcommands, name)
	}
	assert.Len(t, root.Subcommands, len(expected))
}

func TestCommandUsage(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}, {"--HELP"}, {"help"}} {
		out, err := capture(t, func() error { return NewRootCommand().ExecuteArgs(args) })
		require.NoError(t, err)
		assert.Contains(t, out, "Usage: warden <command> [args]")
		assert.Contains(t, out, "toggle")
	}
}

func TestCommandExecute_Unknown(t *testing.T) {
	err := NewRootCommand().ExecuteArgs([]string{"frobnicate"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command: frobnicate")
}

func TestRolesCommand_Usage(t *testing.T) {
	out, err := capture(t, func() error { return NewRootCommand().ExecuteArgs([]string{"roles"}) })
	require.NoError(t, err)
	assert.Contains(t, out, "Usage: roles <command> [args]")
	assert.Contains(t, out, "delete")
}

func TestMe(t *testing.T) {
	api := newFakeAPI(t)

	out, err := api.run(t, "agent", "me")
	require.NoError(t, err)
	assert.Contains(t, out, "Adel <adel@acme.test>")
	assert.Contains(t, out, "Revoked: team.view")
	assert.Contains(t, out, "Effective (2):")
	assert.NotContains(t, out, "  team.view")
}

func TestGuard_RedirectsToLoginWithoutToken(t *testing.T) {
	api := newFakeAPI(t)

	_, err := api.run(t, "", "roles", "list")
	require.Error(t, err)
	assert.True(t, errors.Is(err, guard.ErrLoginRequired))
	assert.False(t, api.hit("GET /api/v1/roles"))
}

func TestGuard_DeniedViewIsNeverFetched(t *testing.T) {
	api := newFakeAPI(t)

	_, err := api.run(t, "agent", "users")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPermissionDenied))
	assert.Contains(t, err.Error(), "team.view")
	assert.False(t, api.hit("GET /api/v1/users"))
}

func TestCatalog(t *testing.T) {
	api := newFakeAPI(t)

	out, err := api.run(t, "manager", "catalog", "-lang", "ar")
	require.NoError(t, err)
	assert.Contains(t, out, "contacts.view")
	assert.Contains(t, out, "الفريق")

	_, err = api.run(t, "manager", "catalog", "-lang", "fr")
	assert.Error(t, err)
}

func TestRolesList(t *testing.T) {
	api := newFakeAPI(t)

	out, err := api.run(t, "manager", "roles", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "SLUG")
	assert.Contains(t, lines[1], "system")
	assert.Contains(t, lines[2], "sales-rep")
}

func TestRolesCreate_RequiresPermission(t *testing.T) {
	api := newFakeAPI(t)

	_, err := api.run(t, "manager", "roles", "create", "-name", "Field Sales", "-permissions", "deals.view")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPermissionDenied))
	assert.False(t, api.hit("POST /api/v1/roles"))
}

func TestRolesUpdate_RequiresAField(t *testing.T) {
	api := newFakeAPI(t)

	_, err := api.run(t, "owner", "roles", "update", "-id", "4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to update")
	assert.False(t, api.hit("PATCH /api/v1/roles/4"))
}

func TestRolesUpdate_SystemRoleIsRejected(t *testing.T) {
	api := newFakeAPI(t)

	_, err := api.run(t, "owner", "roles", "update", "-id", "4", "-name", "Support")
	require.Error(t, err)
	ve, ok := apperrors.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "role", ve.Field)
}

func TestRolesCreate(t *testing.T) {
	api := newFakeAPI(t)

	out, err := api.run(t, "owner", "roles", "create", "-name", "Field Sales", "-permissions", "deals.view, deals.edit")
	require.NoError(t, err)
	assert.Contains(t, out, "Created role field-sales (id 12)")
	assert.Contains(t, out, "Permissions (2):")
}

func TestRolesDelete_AssignedRole(t *testing.T) {
	api := newFakeAPI(t)

	_, err := api.run(t, "owner", "roles", "delete", "-id", "9")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestRolesDelete_Validation(t *testing.T) {
	_, err := capture(t, func() error {
		return NewRootCommand().ExecuteArgs([]string{"roles", "delete", "-id", "abc"})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-id must be a positive integer")
}

func TestPermissions(t *testing.T) {
	api := newFakeAPI(t)

	out, err := api.run(t, "manager", "permissions", "-user", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Role defaults: contacts.edit, contacts.view")
	assert.Contains(t, out, "Granted: -")
	assert.Contains(t, out, "Version: 2")
	assert.NotContains(t, out, "read-only")
}

func TestToggle_SavesBothLists(t *testing.T) {
	api := newFakeAPI(t)

	out, err := api.run(t, "manager", "toggle", "-user", "3", "-keys", "contacts.delete,contacts.edit")
	require.NoError(t, err)
	assert.Contains(t, out, "contacts.delete: granted")
	assert.Contains(t, out, "contacts.edit: revoked")
	assert.Contains(t, out, "Saved (version 3)")
	assert.Contains(t, out, "Effective: contacts.delete, contacts.view")

	require.NotNil(t, api.patched)
	require.NotNil(t, api.patched.Version)
	assert.Equal(t, int64(2), *api.patched.Version)
	assert.Equal(t, []string{"contacts.delete"}, api.patched.Grant)
	assert.Equal(t, []string{"contacts.edit"}, api.patched.Revoke)
}

func TestToggle_DryRun(t *testing.T) {
	api := newFakeAPI(t)

	out, err := api.run(t, "manager", "toggle", "-user", "3", "-keys", "contacts.view", "-dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "contacts.view: revoked")
	assert.Contains(t, out, "Dry run")
	assert.Nil(t, api.patched)
}

func TestToggle_UnknownKey(t *testing.T) {
	api := newFakeAPI(t)

	_, err := api.run(t, "manager", "toggle", "-user", "3", "-keys", "invoices.view")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Nil(t, api.patched)
}

func TestMatrix(t *testing.T) {
	api := newFakeAPI(t)

	out, err := api.run(t, "manager", "matrix", "-user", "3", "-module", "crm")
	require.NoError(t, err)
	assert.Contains(t, out, "CRM")
	assert.Contains(t, out, "[+]")
	assert.Contains(t, out, "[-]")
	assert.Contains(t, out, "Customized for this user")

	_, err = api.run(t, "manager", "matrix", "-user", "3", "-module", "invoices")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestAudit_RequiresSettingsView(t *testing.T) {
	api := newFakeAPI(t)

	_, err := api.run(t, "manager", "audit")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPermissionDenied))
	assert.False(t, api.hit("GET /api/v1/audit/events"))
}

func TestAudit(t *testing.T) {
	api := newFakeAPI(t)

	out, err := api.run(t, "owner", "audit", "-limit", "5", "-type", "permissions.update")
	require.NoError(t, err)
	assert.Contains(t, out, "permissions.update")
	assert.Contains(t, out, "user/3")
	assert.True(t, api.hit("GET /api/v1/audit/events"))
}
