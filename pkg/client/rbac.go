package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/matrix"
	"github.com/platinummonkey/warden/pkg/permissions"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// Me refreshes the caller's snapshot
func (c *Client) Me(ctx context.Context) (*rbac.MeResponse, error) {
	var resp rbac.MeResponse
	if err := c.do(ctx, http.MethodGet, "/me", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AvailablePermissions returns the catalog grouped by module
func (c *Client) AvailablePermissions(ctx context.Context) (map[string]permissions.Group, error) {
	var resp rbac.AvailablePermissionsResponse
	if err := c.do(ctx, http.MethodGet, "/available-permissions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

// ListRoles lists the roles of the caller's organization
func (c *Client) ListRoles(ctx context.Context) ([]*rbac.Role, error) {
	var roles []*rbac.Role
	if err := c.do(ctx, http.MethodGet, "/roles", nil, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole returns one role
func (c *Client) GetRole(ctx context.Context, id int64) (*rbac.Role, error) {
	var role rbac.Role
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/roles/%d", id), nil, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

// CreateRole creates a custom role
func (c *Client) CreateRole(ctx context.Context, req rbac.CreateRoleRequest) (*rbac.Role, error) {
	var role rbac.Role
	if err := c.do(ctx, http.MethodPost, "/roles", req, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

// UpdateRole edits a custom role
func (c *Client) UpdateRole(ctx context.Context, id int64, req rbac.UpdateRoleRequest) (*rbac.Role, error) {
	var role rbac.Role
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/roles/%d", id), req, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

// DeleteRole deletes a custom role
func (c *Client) DeleteRole(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/roles/%d", id), nil, nil)
}

// ListUsers lists the members of the caller's organization
func (c *Client) ListUsers(ctx context.Context) ([]*auth.User, error) {
	var users []*auth.User
	if err := c.do(ctx, http.MethodGet, "/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// UserPermissions returns a user's override, role defaults and effective set
func (c *Client) UserPermissions(ctx context.Context, userID int64) (*rbac.UserPermissions, error) {
	var view rbac.UserPermissions
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%d/permissions", userID), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// UpdateUserPermissions replaces both override lists of a user
func (c *Client) UpdateUserPermissions(ctx context.Context, userID int64, req rbac.UpdatePermissionsRequest) (*rbac.UserPermissions, error) {
	if req.Grant == nil {
		req.Grant = []string{}
	}
	if req.Revoke == nil {
		req.Revoke = []string{}
	}
	var view rbac.UserPermissions
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/users/%d/permissions", userID), req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// SaveUserPermissions implements matrix.Saver
func (c *Client) SaveUserPermissions(ctx context.Context, userID int64, o permissions.Override, version *int64) (*matrix.SaveResult, error) {
	view, err := c.UpdateUserPermissions(ctx, userID, rbac.UpdatePermissionsRequest{
		Grant:   o.Grant.Strings(),
		Revoke:  o.Revoke.Strings(),
		Version: version,
	})
	if err != nil {
		return nil, err
	}
	return &matrix.SaveResult{
		Override:  view.Permissions,
		Effective: view.Effective,
		Version:   view.Version,
	}, nil
}

// AssignRole moves a user to another role
func (c *Client) AssignRole(ctx context.Context, userID, roleID int64) (*rbac.UserPermissions, error) {
	var view rbac.UserPermissions
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/users/%d/role", userID), rbac.AssignRoleRequest{RoleID: roleID}, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// UserMatrix returns the permission grid of a user for one module
func (c *Client) UserMatrix(ctx context.Context, userID int64, module string) (*matrix.Matrix, error) {
	var m matrix.Matrix
	path := fmt.Sprintf("/users/%d/matrix/%s", userID, url.PathEscape(module))
	if err := c.do(ctx, http.MethodGet, path, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// AuditEvents lists recent audit events of the caller's organization
func (c *Client) AuditEvents(ctx context.Context, limit int, eventTypes ...audit.EventType) ([]*audit.Event, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	for _, t := range eventTypes {
		q.Add("event_type", string(t))
	}
	path := "/audit/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Events []*audit.Event `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

var _ matrix.Saver = (*Client)(nil)
