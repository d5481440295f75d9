package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// TokenPrefix identifies warden tokens
	TokenPrefix = "wdn_"
	// TokenLength is the number of random bytes in a token
	TokenLength = 32
)

// ErrInvalidToken is returned for malformed, unknown, revoked or expired
// tokens. Callers never learn which.
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenGenerator generates and hashes API tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new token.
// Format: wdn_<base64url(32 random bytes)>
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	token = TokenPrefix + encoded
	return token, tg.HashToken(token), TokenPrefix + encoded[:8], nil
}

// HashToken computes the SHA256 hash used for storage and lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks the prefix and encoding of a token
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encoded := strings.TrimPrefix(token, TokenPrefix)
	if encoded == "" {
		return fmt.Errorf("token is too short")
	}
	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}
	return nil
}

// TokenStore persists API tokens and resolves them to an AuthContext
type TokenStore struct {
	db        *sql.DB
	generator *TokenGenerator
	now       func() time.Time
}

// NewTokenStore creates a token store backed by db
func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{
		db:        db,
		generator: NewTokenGenerator(),
		now:       time.Now,
	}
}

// CreateToken issues a token for the user. The plaintext token is returned
// once and never stored.
func (s *TokenStore) CreateToken(ctx context.Context, userID int64, name string, expiresAt *time.Time) (*APIToken, string, error) {
	token, hash, prefix, err := s.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	apiToken := &APIToken{
		UserID:      userID,
		TokenHash:   hash,
		TokenPrefix: prefix,
		Name:        name,
		ExpiresAt:   expiresAt,
		CreatedAt:   s.now().UTC(),
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO api_tokens (user_id, token_hash, token_prefix, name, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, userID, hash, prefix, name, expiresAt, apiToken.CreatedAt).Scan(&apiToken.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}

	return apiToken, token, nil
}

// ValidateToken resolves a bearer token to its user and organization.
// Inactive users, inactive organizations, revoked and expired tokens are all
// rejected with ErrInvalidToken.
func (s *TokenStore) ValidateToken(ctx context.Context, token string) (*AuthContext, error) {
	if err := s.generator.ValidateTokenFormat(token); err != nil {
		return nil, ErrInvalidToken
	}

	var (
		t         APIToken
		u         User
		o         Organization
		expiresAt sql.NullTime
		revokedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT t.id, t.user_id, t.token_prefix, t.name, t.expires_at, t.revoked_at, t.created_at,
		       u.id, u.organization_id, u.email, u.name, u.role_id, r.slug, u.permissions_version, u.is_active,
		       o.id, o.name, o.slug, o.is_active
		FROM api_tokens t
		JOIN users u ON u.id = t.user_id
		JOIN roles r ON r.id = u.role_id
		JOIN organizations o ON o.id = u.organization_id
		WHERE t.token_hash = $1
	`, s.generator.HashToken(token)).Scan(
		&t.ID, &t.UserID, &t.TokenPrefix, &t.Name, &expiresAt, &revokedAt, &t.CreatedAt,
		&u.ID, &u.OrganizationID, &u.Email, &u.Name, &u.RoleID, &u.Role, &u.PermissionsVersion, &u.IsActive,
		&o.ID, &o.Name, &o.Slug, &o.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	if expiresAt.Valid {
		t.ExpiresAt = &expiresAt.Time
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}

	now := s.now()
	if t.RevokedAt != nil || t.Expired(now) || !u.IsActive || !o.IsActive {
		return nil, ErrInvalidToken
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE api_tokens SET last_used_at = $1 WHERE id = $2`, now.UTC(), t.ID); err != nil {
		return nil, fmt.Errorf("failed to touch token: %w", err)
	}

	return &AuthContext{User: &u, Organization: &o, Token: &t}, nil
}

// RevokeToken marks a token revoked. Revoking twice is a no-op.
func (s *TokenStore) RevokeToken(ctx context.Context, tokenID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE api_tokens SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL
	`, s.now().UTC(), tokenID)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}
