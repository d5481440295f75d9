package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/permissions"
)

// Store handles role, user and override persistence. Every query is scoped
// by organization.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// DB returns the underlying connection pool
func (s *Store) DB() *sql.DB {
	return s.db
}

func encodeSet(set permissions.Set) (string, error) {
	data, err := json.Marshal(set)
	if err != nil {
		return "", fmt.Errorf("failed to marshal permissions: %w", err)
	}
	return string(data), nil
}

func decodeSet(raw string) (permissions.Set, error) {
	set := permissions.Set{}
	if raw == "" {
		return set, nil
	}
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	if set == nil {
		set = permissions.Set{}
	}
	return set, nil
}

const roleColumns = `
	r.id, r.organization_id, r.slug, r.name, r.description, r.is_system, r.permissions,
	(SELECT COUNT(*) FROM users u WHERE u.role_id = r.id) AS user_count,
	r.created_at, r.updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRole(row rowScanner) (*Role, error) {
	var (
		role            Role
		description     sql.NullString
		permissionsJSON string
	)
	err := row.Scan(
		&role.ID,
		&role.OrganizationID,
		&role.Slug,
		&role.Name,
		&description,
		&role.IsSystem,
		&permissionsJSON,
		&role.UserCount,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	role.Description = description.String
	if role.Permissions, err = decodeSet(permissionsJSON); err != nil {
		return nil, err
	}
	role.PermissionCount = role.Permissions.Len()
	return &role, nil
}

// CreateRole inserts a role and fills in its ID and timestamps
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	permissionsJSON, err := encodeSet(role.Permissions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO roles (organization_id, slug, name, description, is_system, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	now := s.now().UTC()
	err = s.db.QueryRowContext(ctx, query,
		role.OrganizationID,
		role.Slug,
		role.Name,
		role.Description,
		role.IsSystem,
		permissionsJSON,
		now,
		now,
	).Scan(&role.ID)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	role.PermissionCount = role.Permissions.Len()
	return nil
}

// GetRole retrieves a role by ID
func (s *Store) GetRole(ctx context.Context, orgID, roleID int64) (*Role, error) {
	query := `SELECT ` + roleColumns + `
		FROM roles r
		WHERE r.organization_id = $1 AND r.id = $2
	`

	role, err := scanRole(s.db.QueryRowContext(ctx, query, orgID, roleID))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("role", roleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// GetRoleBySlug retrieves a role by slug
func (s *Store) GetRoleBySlug(ctx context.Context, orgID int64, slug string) (*Role, error) {
	query := `SELECT ` + roleColumns + `
		FROM roles r
		WHERE r.organization_id = $1 AND r.slug = $2
	`

	role, err := scanRole(s.db.QueryRowContext(ctx, query, orgID, slug))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("role", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// RolePermissions returns the default permission set of a role. It is the
// loader behind the role defaults cache.
func (s *Store) RolePermissions(ctx context.Context, orgID int64, slug string) (permissions.Set, error) {
	var permissionsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT permissions FROM roles WHERE organization_id = $1 AND slug = $2
	`, orgID, slug).Scan(&permissionsJSON)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("role", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load role permissions: %w", err)
	}
	return decodeSet(permissionsJSON)
}

// ListRoles lists the roles of an organization, system roles first
func (s *Store) ListRoles(ctx context.Context, orgID int64) ([]*Role, error) {
	query := `SELECT ` + roleColumns + `
		FROM roles r
		WHERE r.organization_id = $1
		ORDER BY r.is_system DESC, r.name ASC, r.id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	roles := []*Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}
	return roles, nil
}

// UpdateRole writes name, description and permissions of a custom role.
// System roles are never matched.
func (s *Store) UpdateRole(ctx context.Context, role *Role) error {
	permissionsJSON, err := encodeSet(role.Permissions)
	if err != nil {
		return err
	}

	query := `
		UPDATE roles
		SET name = $1, description = $2, permissions = $3, updated_at = $4
		WHERE id = $5 AND organization_id = $6 AND is_system = FALSE
	`

	now := s.now().UTC()
	result, err := s.db.ExecContext(ctx, query,
		role.Name,
		role.Description,
		permissionsJSON,
		now,
		role.ID,
		role.OrganizationID,
	)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("role", role.ID)
	}

	role.UpdatedAt = now
	role.PermissionCount = role.Permissions.Len()
	return nil
}

// DeleteRole removes a custom role that no user references. The check and
// the delete run in one transaction.
func (s *Store) DeleteRole(ctx context.Context, orgID, roleID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		isSystem  bool
		userCount int
	)
	err = tx.QueryRowContext(ctx, `
		SELECT r.is_system, (SELECT COUNT(*) FROM users u WHERE u.role_id = r.id)
		FROM roles r
		WHERE r.organization_id = $1 AND r.id = $2
	`, orgID, roleID).Scan(&isSystem, &userCount)
	if err == sql.ErrNoRows {
		return apperrors.NotFound("role", roleID)
	}
	if err != nil {
		return fmt.Errorf("failed to check role: %w", err)
	}

	if isSystem {
		return apperrors.NewValidation("role", "system roles cannot be deleted")
	}
	if userCount > 0 {
		return apperrors.Conflict("role is assigned to %d user(s)", userCount)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateOrganization inserts a tenant
func (s *Store) CreateOrganization(ctx context.Context, org *auth.Organization) error {
	now := s.now().UTC()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO organizations (name, slug, is_active, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, org.Name, org.Slug, org.IsActive, now).Scan(&org.ID)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	org.CreatedAt = now
	return nil
}

// ListOrganizationIDs returns the IDs of all active organizations
func (s *Store) ListOrganizationIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM organizations WHERE is_active = TRUE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateUser inserts a user with an empty override
func (s *Store) CreateUser(ctx context.Context, user *auth.User) error {
	now := s.now().UTC()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (organization_id, email, name, role_id, permissions_grant, permissions_revoke, permissions_version, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '[]', '[]', 0, $5, $6, $7)
		RETURNING id
	`, user.OrganizationID, user.Email, user.Name, user.RoleID, user.IsActive, now, now).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.Permissions = permissions.Override{Grant: permissions.Set{}, Revoke: permissions.Set{}}
	user.PermissionsVersion = 0
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

const userColumns = `
	u.id, u.organization_id, u.email, u.name, u.role_id, r.slug,
	u.permissions_grant, u.permissions_revoke, u.permissions_version, u.is_active,
	u.created_at, u.updated_at`

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		user       auth.User
		grantJSON  string
		revokeJSON string
	)
	err := row.Scan(
		&user.ID,
		&user.OrganizationID,
		&user.Email,
		&user.Name,
		&user.RoleID,
		&user.Role,
		&grantJSON,
		&revokeJSON,
		&user.PermissionsVersion,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if user.Permissions.Grant, err = decodeSet(grantJSON); err != nil {
		return nil, err
	}
	if user.Permissions.Revoke, err = decodeSet(revokeJSON); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUser retrieves a user with its role slug and stored override. Role
// defaults are not loaded here.
func (s *Store) GetUser(ctx context.Context, orgID, userID int64) (*auth.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE u.organization_id = $1 AND u.id = $2
	`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, orgID, userID))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("user", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ListUsers lists the users of an organization
func (s *Store) ListUsers(ctx context.Context, orgID int64) ([]*auth.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE u.organization_id = $1
		ORDER BY u.id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*auth.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// AssignRole moves a user to another role of the same organization and
// stores o, the override already normalized for that role, in the same
// statement. The version is bumped so open editors see the change.
func (s *Store) AssignRole(ctx context.Context, orgID, userID, roleID int64, o permissions.Override) error {
	grantJSON, err := encodeSet(o.Grant)
	if err != nil {
		return err
	}
	revokeJSON, err := encodeSet(o.Revoke)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET role_id = $1, permissions_grant = $2, permissions_revoke = $3,
			permissions_version = permissions_version + 1, updated_at = $4
		WHERE organization_id = $5 AND id = $6
	`, roleID, grantJSON, revokeJSON, s.now().UTC(), orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("user", userID)
	}
	return nil
}

// ReplaceOverrides writes both override lists in a single statement and
// returns the new version. With expectedVersion set the write only applies
// when the stored version matches; otherwise the last write wins.
func (s *Store) ReplaceOverrides(ctx context.Context, orgID, userID int64, o permissions.Override, expectedVersion *int64) (int64, error) {
	grantJSON, err := encodeSet(o.Grant)
	if err != nil {
		return 0, err
	}
	revokeJSON, err := encodeSet(o.Revoke)
	if err != nil {
		return 0, err
	}

	now := s.now().UTC()
	var version int64
	if expectedVersion == nil {
		err = s.db.QueryRowContext(ctx, `
			UPDATE users
			SET permissions_grant = $1, permissions_revoke = $2, permissions_version = permissions_version + 1, updated_at = $3
			WHERE organization_id = $4 AND id = $5
			RETURNING permissions_version
		`, grantJSON, revokeJSON, now, orgID, userID).Scan(&version)
	} else {
		err = s.db.QueryRowContext(ctx, `
			UPDATE users
			SET permissions_grant = $1, permissions_revoke = $2, permissions_version = permissions_version + 1, updated_at = $3
			WHERE organization_id = $4 AND id = $5 AND permissions_version = $6
			RETURNING permissions_version
		`, grantJSON, revokeJSON, now, orgID, userID, *expectedVersion).Scan(&version)
	}

	if err == sql.ErrNoRows {
		current, lookupErr := s.overrideVersion(ctx, orgID, userID)
		if lookupErr != nil {
			return 0, lookupErr
		}
		if expectedVersion == nil {
			return 0, apperrors.NotFound("user", userID)
		}
		return 0, apperrors.Conflict("permissions were changed by someone else (version %d, expected %d)", current, *expectedVersion)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update user permissions: %w", err)
	}
	return version, nil
}

func (s *Store) overrideVersion(ctx context.Context, orgID, userID int64) (int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx, `
		SELECT permissions_version FROM users WHERE organization_id = $1 AND id = $2
	`, orgID, userID).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, apperrors.NotFound("user", userID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get permissions version: %w", err)
	}
	return version, nil
}

// ListOverrides returns every user of an organization that carries a
// non-empty override
func (s *Store) ListOverrides(ctx context.Context, orgID int64) ([]OverrideRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, permissions_grant, permissions_revoke, permissions_version
		FROM users
		WHERE organization_id = $1 AND (permissions_grant <> '[]' OR permissions_revoke <> '[]')
		ORDER BY id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	defer rows.Close()

	var records []OverrideRecord
	for rows.Next() {
		var (
			rec        OverrideRecord
			grantJSON  string
			revokeJSON string
		)
		if err := rows.Scan(&rec.UserID, &rec.OrganizationID, &grantJSON, &revokeJSON, &rec.Version); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		if rec.Override.Grant, err = decodeSet(grantJSON); err != nil {
			return nil, err
		}
		if rec.Override.Revoke, err = decodeSet(revokeJSON); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate overrides: %w", err)
	}
	return records, nil
}
