package rbac

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/cache"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/permissions"
)

// Service applies the role and override rules on top of the Store:
// payload validation, catalog validation, system role immutability, cache
// invalidation and auditing.
type Service struct {
	store    *Store
	checker  *Checker
	roles    *cache.RoleDefaults
	audit    audit.Logger
	metrics  *observability.Metrics
	validate *validator.Validate
}

// NewService creates a service. auditLogger and metrics may be nil.
func NewService(store *Store, checker *Checker, roles *cache.RoleDefaults, auditLogger audit.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:    store,
		checker:  checker,
		roles:    roles,
		audit:    auditLogger,
		metrics:  metrics,
		validate: newValidator(),
	}
}

// Catalog returns the permission catalog currently in effect
func (s *Service) Catalog() *permissions.Catalog {
	return s.checker.Calculator().Catalog()
}

// ListRoles lists the roles of an organization
func (s *Service) ListRoles(ctx context.Context, orgID int64) ([]*Role, error) {
	return s.store.ListRoles(ctx, orgID)
}

// GetRole returns one role
func (s *Service) GetRole(ctx context.Context, orgID, roleID int64) (*Role, error) {
	return s.store.GetRole(ctx, orgID, roleID)
}

// CreateRole creates a custom role. The slug is derived from the name when
// not given.
func (s *Service) CreateRole(ctx context.Context, orgID int64, req CreateRoleRequest) (role *Role, err error) {
	defer func() { s.metrics.RecordMutation("create", err) }()

	if err := validatePayload(s.validate, req); err != nil {
		return nil, err
	}

	slug := req.Slug
	if slug == "" {
		slug = Slugify(req.Name)
		if slug == "" {
			return nil, apperrors.NewValidation("slug", "could not derive a slug from the name")
		}
	}
	for _, sys := range SystemRoles() {
		if sys.Slug == slug {
			return nil, apperrors.NewValidation("slug", "%q is reserved for a system role", slug)
		}
	}

	perms, err := s.Catalog().Validate("permissions", req.Permissions)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.GetRoleBySlug(ctx, orgID, slug); err == nil {
		return nil, apperrors.Conflict("a role with slug %q already exists", slug)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	role = &Role{
		OrganizationID: orgID,
		Slug:           slug,
		Name:           req.Name,
		Description:    req.Description,
		Permissions:    perms,
	}
	if err := s.store.CreateRole(ctx, role); err != nil {
		return nil, err
	}

	audit.Record(ctx, s.audit, &audit.Event{
		EventType:      audit.EventRoleCreate,
		OrganizationID: orgID,
		ResourceType:   audit.ResourceRole,
		ResourceID:     strconv.FormatInt(role.ID, 10),
		Message:        fmt.Sprintf("Created role %s", role.Slug),
		Changes:        &audit.Changes{After: role.Permissions},
	})
	return role, nil
}

// UpdateRole edits a custom role. System roles are rejected with a
// ValidationError and left untouched.
func (s *Service) UpdateRole(ctx context.Context, orgID, roleID int64, req UpdateRoleRequest) (role *Role, err error) {
	defer func() { s.metrics.RecordMutation("update", err) }()

	if err := validatePayload(s.validate, req); err != nil {
		return nil, err
	}

	role, err = s.store.GetRole(ctx, orgID, roleID)
	if err != nil {
		return nil, err
	}
	if role.IsSystem {
		audit.Record(ctx, s.audit, &audit.Event{
			EventType:      audit.EventRoleUpdate,
			Status:         audit.StatusFailure,
			OrganizationID: orgID,
			ResourceType:   audit.ResourceRole,
			ResourceID:     strconv.FormatInt(role.ID, 10),
			Message:        fmt.Sprintf("Rejected update of system role %s", role.Slug),
		})
		return nil, apperrors.NewValidation("role", "system role %q cannot be modified", role.Slug)
	}

	before := role.Permissions.Clone()
	if req.Name != nil {
		role.Name = *req.Name
	}
	if req.Description != nil {
		role.Description = *req.Description
	}
	if req.Permissions != nil {
		perms, err := s.Catalog().Validate("permissions", *req.Permissions)
		if err != nil {
			return nil, err
		}
		role.Permissions = perms
	}

	if err := s.store.UpdateRole(ctx, role); err != nil {
		return nil, err
	}
	if err := s.roles.Invalidate(ctx, orgID, role.Slug); err != nil {
		observability.FromContext(ctx).WithError(err).WithField("role", role.Slug).Warn("failed to invalidate role cache")
	}

	audit.Record(ctx, s.audit, &audit.Event{
		EventType:      audit.EventRoleUpdate,
		OrganizationID: orgID,
		ResourceType:   audit.ResourceRole,
		ResourceID:     strconv.FormatInt(role.ID, 10),
		Message:        fmt.Sprintf("Updated role %s", role.Slug),
		Changes:        &audit.Changes{Before: before, After: role.Permissions},
	})
	return role, nil
}

// DeleteRole deletes a custom role that has no users
func (s *Service) DeleteRole(ctx context.Context, orgID, roleID int64) (err error) {
	defer func() { s.metrics.RecordMutation("delete", err) }()

	role, err := s.store.GetRole(ctx, orgID, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return apperrors.NewValidation("role", "system role %q cannot be deleted", role.Slug)
	}

	if err := s.store.DeleteRole(ctx, orgID, roleID); err != nil {
		return err
	}
	if err := s.roles.Invalidate(ctx, orgID, role.Slug); err != nil {
		observability.FromContext(ctx).WithError(err).WithField("role", role.Slug).Warn("failed to invalidate role cache")
	}

	audit.Record(ctx, s.audit, &audit.Event{
		EventType:      audit.EventRoleDelete,
		OrganizationID: orgID,
		ResourceType:   audit.ResourceRole,
		ResourceID:     strconv.FormatInt(roleID, 10),
		Message:        fmt.Sprintf("Deleted role %s", role.Slug),
		Changes:        &audit.Changes{Before: role.Permissions},
	})
	return nil
}

// ListUsers lists the members of an organization
func (s *Service) ListUsers(ctx context.Context, orgID int64) ([]*auth.User, error) {
	return s.store.ListUsers(ctx, orgID)
}

// UserPermissions returns the stored override and effective set of a user
func (s *Service) UserPermissions(ctx context.Context, orgID, userID int64) (*UserPermissions, error) {
	user, err := s.checker.LoadSubject(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	return s.checker.Permissions(user), nil
}

// UpdateUserPermissions replaces a user's grant and revoke lists together.
// Keys are validated against the catalog, overlapping lists are rejected
// and the stored pair is normalized against the role defaults. Retired keys
// that were already stored are dropped instead of failing the save.
func (s *Service) UpdateUserPermissions(ctx context.Context, orgID, userID int64, req UpdatePermissionsRequest) (result *UserPermissions, err error) {
	defer func() { s.metrics.RecordOverrideSave(err) }()

	if err := validatePayload(s.validate, req); err != nil {
		return nil, err
	}

	user, err := s.checker.LoadSubject(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeChange(ctx, user); err != nil {
		return nil, err
	}
	if user.IsAdmin() {
		return nil, apperrors.NewValidation("permissions", "the admin role cannot carry overrides")
	}

	catalog := s.Catalog()
	grant, err := catalog.Validate("grant", dropRetired(catalog, req.Grant, user.Permissions.Grant))
	if err != nil {
		return nil, err
	}
	revoke, err := catalog.Validate("revoke", dropRetired(catalog, req.Revoke, user.Permissions.Revoke))
	if err != nil {
		return nil, err
	}
	if both := grant.Intersect(revoke); both.Len() > 0 {
		return nil, apperrors.NewValidation("revoke", "%q cannot be both granted and revoked", both.Sorted()[0])
	}

	before := user.Permissions
	next := permissions.Override{Grant: grant, Revoke: revoke}.Normalize(user.RolePermissions)
	if err := s.authorizeKeys(ctx, next.Grant.Difference(before.Grant)); err != nil {
		return nil, err
	}

	version, err := s.store.ReplaceOverrides(ctx, orgID, userID, next, req.Version)
	if err != nil {
		return nil, err
	}
	user.Permissions = next
	user.PermissionsVersion = version

	audit.Record(ctx, s.audit, &audit.Event{
		EventType:      audit.EventPermissionsUpdate,
		OrganizationID: orgID,
		ResourceType:   audit.ResourceUser,
		ResourceID:     strconv.FormatInt(userID, 10),
		Message:        fmt.Sprintf("Updated permission overrides (version %d)", version),
		Changes:        &audit.Changes{Before: before, After: next},
	})
	return s.checker.Permissions(user), nil
}

// dropRetired removes well-formed keys the catalog no longer knows when they
// were already part of the stored list
func dropRetired(catalog *permissions.Catalog, values []string, stored permissions.Set) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		k := permissions.Key(v)
		if k.Valid() && !catalog.Contains(k) && stored.Has(k) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// AssignRole moves a user to another role of the same organization
func (s *Service) AssignRole(ctx context.Context, orgID, userID int64, req AssignRoleRequest) (*UserPermissions, error) {
	if err := validatePayload(s.validate, req); err != nil {
		return nil, err
	}

	role, err := s.store.GetRole(ctx, orgID, req.RoleID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NewValidation("role_id", "role %d does not exist", req.RoleID)
	}
	if err != nil {
		return nil, err
	}

	before, err := s.checker.LoadSubject(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeChange(ctx, before); err != nil {
		return nil, err
	}
	if caller := SubjectFromContext(ctx); caller != nil && !caller.IsAdmin() {
		if permissions.IsAdmin(role.Slug) {
			return nil, fmt.Errorf("only an administrator can assign the %s role: %w", role.Slug, apperrors.ErrPermissionDenied)
		}
		if err := s.authorizeKeys(ctx, role.Permissions); err != nil {
			return nil, err
		}
	}

	// Entries that no longer apply under the new defaults are dropped, and
	// the admin role carries no overrides at all.
	next := permissions.Override{Grant: permissions.NewSet(), Revoke: permissions.NewSet()}
	if !permissions.IsAdmin(role.Slug) {
		next = before.Permissions.Normalize(role.Permissions)
	}
	if err := s.store.AssignRole(ctx, orgID, userID, role.ID, next); err != nil {
		return nil, err
	}

	audit.Record(ctx, s.audit, &audit.Event{
		EventType:      audit.EventRoleAssign,
		OrganizationID: orgID,
		ResourceType:   audit.ResourceUser,
		ResourceID:     strconv.FormatInt(userID, 10),
		Message:        fmt.Sprintf("Assigned role %s", role.Slug),
		Changes:        &audit.Changes{Before: before.Role, After: role.Slug},
	})
	return s.UserPermissions(ctx, orgID, userID)
}

// authorizeChange rejects a caller changing their own role or overrides, and
// a non-admin changing an administrator. Without a caller in ctx the change
// comes from inside the process and is allowed.
func (s *Service) authorizeChange(ctx context.Context, target *auth.User) error {
	caller := SubjectFromContext(ctx)
	if caller == nil || caller.IsAdmin() {
		return nil
	}
	if caller.ID == target.ID {
		return fmt.Errorf("cannot change your own role or permissions: %w", apperrors.ErrPermissionDenied)
	}
	if target.IsAdmin() {
		return fmt.Errorf("only an administrator can change another administrator: %w", apperrors.ErrPermissionDenied)
	}
	return nil
}

// authorizeKeys rejects handing out keys the caller does not hold
func (s *Service) authorizeKeys(ctx context.Context, keys permissions.Set) error {
	caller := SubjectFromContext(ctx)
	if caller == nil || caller.IsAdmin() {
		return nil
	}
	missing := keys.Difference(s.checker.Calculator().For(caller))
	if missing.Len() > 0 {
		return apperrors.Denied(strings.Join(missing.Strings(), ", "))
	}
	return nil
}

// BootstrapOrganization provisions a tenant: the organization row, the
// system roles and a first user holding the admin role.
func (s *Service) BootstrapOrganization(ctx context.Context, org *auth.Organization, admin *auth.User) error {
	org.IsActive = true
	if err := s.store.CreateOrganization(ctx, org); err != nil {
		return err
	}

	catalog := s.Catalog()
	var adminRoleID int64
	for _, sys := range SystemRoles() {
		role := &Role{
			OrganizationID: org.ID,
			Slug:           sys.Slug,
			Name:           sys.Name,
			Description:    sys.Description,
			IsSystem:       true,
			Permissions:    catalog.Known(permissions.SetOf(sys.Permissions...)),
		}
		if err := s.store.CreateRole(ctx, role); err != nil {
			return fmt.Errorf("failed to seed system role %s: %w", sys.Slug, err)
		}
		if sys.Slug == permissions.AdminRole {
			adminRoleID = role.ID
		}
	}

	admin.OrganizationID = org.ID
	admin.RoleID = adminRoleID
	admin.Role = permissions.AdminRole
	admin.IsActive = true
	if err := s.store.CreateUser(ctx, admin); err != nil {
		return err
	}

	audit.Record(ctx, s.audit, &audit.Event{
		EventType:      audit.EventOrgBootstrap,
		OrganizationID: org.ID,
		ActorID:        &admin.ID,
		ResourceType:   audit.ResourceOrganization,
		ResourceID:     strconv.FormatInt(org.ID, 10),
		Message:        fmt.Sprintf("Provisioned organization %s", org.Slug),
	})
	return nil
}
