package rbac

import (
	"time"

	"github.com/platinummonkey/warden/pkg/permissions"
)

// Role is a named default permission set within one organization
type Role struct {
	ID              int64           `json:"id"`
	OrganizationID  int64           `json:"organization_id"`
	Slug            string          `json:"slug"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	IsSystem        bool            `json:"is_system"`
	Permissions     permissions.Set `json:"permissions"`
	UserCount       int             `json:"user_count"`
	PermissionCount int             `json:"permission_count"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SystemRole is a role template seeded into every organization
type SystemRole struct {
	Slug        string
	Name        string
	Description string
	// Permissions is nil for admin, which bypasses the calculator
	Permissions []string
}

// SystemRoles returns the templates seeded at organization provisioning
func SystemRoles() []SystemRole {
	return []SystemRole{
		{
			Slug:        permissions.AdminRole,
			Name:        "Administrator",
			Description: "Full access to every module",
		},
		{
			Slug:        "manager",
			Name:        "Manager",
			Description: "Manages the CRM, tickets and team members",
			Permissions: []string{
				"contacts.view", "contacts.create", "contacts.edit", "contacts.delete", "contacts.export",
				"companies.view", "companies.create", "companies.edit", "companies.delete", "companies.export",
				"deals.view", "deals.create", "deals.edit", "deals.delete", "deals.export",
				"tickets.view", "tickets.create", "tickets.edit", "tickets.delete", "tickets.assign",
				"team.view", "team.invite", "team.manage",
				"roles.view",
				"settings.view",
			},
		},
		{
			Slug:        "agent",
			Name:        "Agent",
			Description: "Works contacts, deals and tickets",
			Permissions: []string{
				"contacts.view", "contacts.create", "contacts.edit",
				"companies.view", "companies.create", "companies.edit",
				"deals.view", "deals.create", "deals.edit",
				"tickets.view", "tickets.create", "tickets.edit",
				"team.view",
			},
		},
		{
			Slug:        "viewer",
			Name:        "Viewer",
			Description: "Read-only access to the CRM and tickets",
			Permissions: []string{
				"contacts.view",
				"companies.view",
				"deals.view",
				"tickets.view",
			},
		},
	}
}

// CreateRoleRequest is the body of POST /roles
type CreateRoleRequest struct {
	Name        string   `json:"name" validate:"required,notblank,max=100"`
	Slug        string   `json:"slug,omitempty" validate:"omitempty,slug,max=64"`
	Description string   `json:"description" validate:"max=500"`
	Permissions []string `json:"permissions" validate:"max=500"`
}

// UpdateRoleRequest is the body of PATCH /roles/{id}. Absent fields are
// left unchanged.
type UpdateRoleRequest struct {
	Name        *string   `json:"name,omitempty" validate:"omitempty,notblank,max=100"`
	Description *string   `json:"description,omitempty" validate:"omitempty,max=500"`
	Permissions *[]string `json:"permissions,omitempty" validate:"omitempty,max=500"`
}

// UpdatePermissionsRequest is the body of PATCH /users/{id}/permissions.
// Both lists are always replaced together. Version, when set, must match
// the stored permissions_version.
type UpdatePermissionsRequest struct {
	Grant   []string `json:"grant" validate:"max=500"`
	Revoke  []string `json:"revoke" validate:"max=500"`
	Version *int64   `json:"version,omitempty" validate:"omitempty,gte=0"`
}

// AssignRoleRequest is the body of PUT /users/{id}/role
type AssignRoleRequest struct {
	RoleID int64 `json:"role_id" validate:"required,gt=0"`
}

// UserPermissions is the permission view of one user
type UserPermissions struct {
	UserID          int64                `json:"user_id"`
	Role            string               `json:"role"`
	RolePermissions permissions.Set      `json:"role_permissions"`
	Permissions     permissions.Override `json:"permissions"`
	Effective       permissions.Set      `json:"effective"`
	Version         int64                `json:"version"`
}

// OverrideRecord is a stored override as seen by maintenance jobs
type OverrideRecord struct {
	UserID         int64
	OrganizationID int64
	Override       permissions.Override
	Version        int64
}
