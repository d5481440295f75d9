package rbac

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/permissions"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Each connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE organizations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			slug TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			is_system BOOLEAN NOT NULL DEFAULT 0,
			permissions TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(organization_id, slug)
		);

		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			email TEXT NOT NULL,
			name TEXT NOT NULL,
			role_id INTEGER NOT NULL REFERENCES roles(id),
			permissions_grant TEXT NOT NULL DEFAULT '[]',
			permissions_revoke TEXT NOT NULL DEFAULT '[]',
			permissions_version INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(organization_id, email)
		);
	`)
	require.NoError(t, err)

	return db
}

// recordingAudit keeps events in memory
type recordingAudit struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (a *recordingAudit) Log(ctx context.Context, event *audit.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *recordingAudit) Close() error { return nil }

func (a *recordingAudit) ofType(eventType audit.EventType) []*audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*audit.Event
	for _, e := range a.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// testEnv is a provisioned organization with the system roles and an admin
type testEnv struct {
	db      *sql.DB
	manager *Manager
	audit   *recordingAudit
	org     *auth.Organization
	admin   *auth.User
	roles   map[string]*Role
	seq     int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	recorder := &recordingAudit{}
	manager := NewManager(db, nil, permissions.DefaultCatalog(), recorder, nil, DefaultConfig())

	env := &testEnv{
		db:      db,
		manager: manager,
		audit:   recorder,
		org:     &auth.Organization{Name: "Acme", Slug: "acme"},
		admin:   &auth.User{Email: "owner@acme.test", Name: "Owner"},
		roles:   map[string]*Role{},
	}
	require.NoError(t, manager.GetService().BootstrapOrganization(context.Background(), env.org, env.admin))
	env.reloadRoles(t)
	return env
}

func (e *testEnv) reloadRoles(t *testing.T) {
	t.Helper()
	roles, err := e.manager.GetStore().ListRoles(context.Background(), e.org.ID)
	require.NoError(t, err)
	for _, r := range roles {
		e.roles[r.Slug] = r
	}
}

func (e *testEnv) addRole(t *testing.T, name string, keys ...string) *Role {
	t.Helper()
	role, err := e.manager.GetService().CreateRole(context.Background(), e.org.ID, CreateRoleRequest{
		Name:        name,
		Permissions: keys,
	})
	require.NoError(t, err)
	e.roles[role.Slug] = role
	return role
}

func (e *testEnv) addUser(t *testing.T, slug string) *auth.User {
	t.Helper()
	role, ok := e.roles[slug]
	require.True(t, ok, "unknown role %s", slug)

	e.seq++
	user := &auth.User{
		OrganizationID: e.org.ID,
		Email:          fmt.Sprintf("%s%d@acme.test", slug, e.seq),
		Name:           fmt.Sprintf("%s %d", slug, e.seq),
		RoleID:         role.ID,
		Role:           role.Slug,
		IsActive:       true,
	}
	require.NoError(t, e.manager.GetStore().CreateUser(context.Background(), user))
	return user
}

// ValidateToken accepts "user-<id>" tokens for users of the test organization
func (e *testEnv) ValidateToken(ctx context.Context, token string) (*auth.AuthContext, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(token, "user-"), 10, 64)
	if err != nil {
		return nil, auth.ErrInvalidToken
	}
	user, err := e.manager.GetStore().GetUser(ctx, e.org.ID, id)
	if err != nil {
		return nil, auth.ErrInvalidToken
	}
	return &auth.AuthContext{User: user, Organization: e.org}, nil
}

func (e *testEnv) router() http.Handler {
	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.NewAuthMiddleware(e, false).Handler)
	e.manager.RegisterRoutes(api)
	return router
}

// do sends a request as user (0 for anonymous) and returns the recorder
func (e *testEnv) do(t *testing.T, method, path string, as int64, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, "/api/v1"+path, reader)
	req.Header.Set("Content-Type", "application/json")
	if as != 0 {
		req.Header.Set("Authorization", "Bearer user-"+strconv.FormatInt(as, 10))
	}

	w := httptest.NewRecorder()
	e.router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dest), w.Body.String())
}
