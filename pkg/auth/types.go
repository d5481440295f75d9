package auth

import (
	"time"

	"github.com/platinummonkey/warden/pkg/permissions"
)

// User is a member of exactly one organization
type User struct {
	ID                 int64                `json:"id"`
	OrganizationID     int64                `json:"organization_id"`
	Email              string               `json:"email"`
	Name               string               `json:"name"`
	RoleID             int64                `json:"role_id"`
	Role               string               `json:"role"`
	RolePermissions    permissions.Set      `json:"role_permissions"`
	Permissions        permissions.Override `json:"permissions"`
	PermissionsVersion int64                `json:"permissions_version"`
	IsActive           bool                 `json:"is_active"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// RoleSlug implements permissions.Subject
func (u *User) RoleSlug() string { return u.Role }

// RoleDefaults implements permissions.Subject
func (u *User) RoleDefaults() permissions.Set { return u.RolePermissions }

// Overrides implements permissions.Subject
func (u *User) Overrides() permissions.Override { return u.Permissions }

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u != nil && permissions.IsAdmin(u.Role)
}

// Organization is a tenant
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// APIToken is a bearer credential bound to one user
type APIToken struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	TokenHash   string     `json:"-"`
	TokenPrefix string     `json:"token_prefix"`
	Name        string     `json:"name"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// Expired reports whether the token is past its expiry at now
func (t *APIToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// AuthContext holds the authenticated principal of a request
type AuthContext struct {
	User         *User
	Organization *Organization
	Token        *APIToken
}

// OrgID returns the tenant of the request, or 0 when unauthenticated
func (ac *AuthContext) OrgID() int64 {
	if ac == nil || ac.User == nil {
		return 0
	}
	return ac.User.OrganizationID
}

// UserID returns the authenticated user's ID, or 0
func (ac *AuthContext) UserID() int64 {
	if ac == nil || ac.User == nil {
		return 0
	}
	return ac.User.ID
}
