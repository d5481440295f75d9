package auth

import (
	"context"
	"database/sql/driver"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenGenerator_GenerateToken(t *testing.T) {
	tg := NewTokenGenerator()

	token, hash, prefix, err := tg.GenerateToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(token, TokenPrefix))
	assert.Len(t, hash, 64)
	assert.Equal(t, tg.HashToken(token), hash)
	assert.Len(t, prefix, len(TokenPrefix)+8)
	assert.True(t, strings.HasPrefix(token, prefix))
	assert.NoError(t, tg.ValidateTokenFormat(token))
}

func TestTokenGenerator_Uniqueness(t *testing.T) {
	tg := NewTokenGenerator()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, _, _, err := tg.GenerateToken()
		require.NoError(t, err)
		assert.False(t, seen[token], "duplicate token generated")
		seen[token] = true
	}
}

func TestTokenGenerator_ValidateTokenFormat(t *testing.T) {
	tg := NewTokenGenerator()
	tests := []struct {
		name  string
		token string
	}{
		{"wrong prefix", "ghp_abcdef"},
		{"prefix only", TokenPrefix},
		{"bad encoding", TokenPrefix + "!!!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tg.ValidateTokenFormat(tt.token))
		})
	}
}

var tokenColumns = []string{
	"id", "user_id", "token_prefix", "name", "expires_at", "revoked_at", "created_at",
	"id", "organization_id", "email", "name", "role_id", "slug", "permissions_version", "is_active",
	"id", "name", "slug", "is_active",
}

func newTokenStore(t *testing.T, now time.Time) (*TokenStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewTokenStore(db)
	store.now = func() time.Time { return now }
	return store, mock
}

func TestTokenStore_ValidateToken(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	token, hash, _, err := NewTokenGenerator().GenerateToken()
	require.NoError(t, err)

	lookup := regexp.QuoteMeta("FROM api_tokens t")
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	t.Run("valid token", func(t *testing.T) {
		store, mock := newTokenStore(t, now)
		mock.ExpectQuery(lookup).WithArgs(hash).WillReturnRows(sqlmock.NewRows(tokenColumns).AddRow(
			9, 3, "wdn_abcdefgh", "cli", future, nil, past,
			3, 1, "ana@example.com", "Ana", 4, "agent", 2, true,
			1, "Acme", "acme", true,
		))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE api_tokens SET last_used_at")).
			WithArgs(now, int64(9)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		authCtx, err := store.ValidateToken(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, int64(3), authCtx.UserID())
		assert.Equal(t, int64(1), authCtx.OrgID())
		assert.Equal(t, "agent", authCtx.User.RoleSlug())
		assert.Equal(t, int64(2), authCtx.User.PermissionsVersion)
		assert.Equal(t, "acme", authCtx.Organization.Slug)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	rejected := []struct {
		name string
		row  []interface{}
	}{
		{"revoked", []interface{}{
			9, 3, "p", "cli", nil, past, past,
			3, 1, "a@x", "A", 4, "agent", 0, true,
			1, "Acme", "acme", true,
		}},
		{"expired", []interface{}{
			9, 3, "p", "cli", past, nil, past,
			3, 1, "a@x", "A", 4, "agent", 0, true,
			1, "Acme", "acme", true,
		}},
		{"inactive user", []interface{}{
			9, 3, "p", "cli", nil, nil, past,
			3, 1, "a@x", "A", 4, "agent", 0, false,
			1, "Acme", "acme", true,
		}},
		{"inactive organization", []interface{}{
			9, 3, "p", "cli", nil, nil, past,
			3, 1, "a@x", "A", 4, "agent", 0, true,
			1, "Acme", "acme", false,
		}},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newTokenStore(t, now)
			rows := sqlmock.NewRows(tokenColumns)
			values := make([]driver.Value, len(tt.row))
			for i, v := range tt.row {
				values[i] = v
			}
			rows.AddRow(values...)
			mock.ExpectQuery(lookup).WithArgs(hash).WillReturnRows(rows)

			_, err := store.ValidateToken(context.Background(), token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	t.Run("unknown token", func(t *testing.T) {
		store, mock := newTokenStore(t, now)
		mock.ExpectQuery(lookup).WithArgs(hash).WillReturnRows(sqlmock.NewRows(tokenColumns))

		_, err := store.ValidateToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("malformed token never hits the database", func(t *testing.T) {
		store, mock := newTokenStore(t, now)
		_, err := store.ValidateToken(context.Background(), "Bearer nope")
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTokenStore_CreateToken(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store, mock := newTokenStore(t, now)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO api_tokens")).
		WithArgs(int64(3), sqlmock.AnyArg(), sqlmock.AnyArg(), "ci", sqlmock.AnyArg(), now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	apiToken, token, err := store.CreateToken(context.Background(), 3, "ci", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(11), apiToken.ID)
	assert.Equal(t, store.generator.HashToken(token), apiToken.TokenHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenStore_RevokeToken(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store, mock := newTokenStore(t, now)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE api_tokens SET revoked_at")).
		WithArgs(now, int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.RevokeToken(context.Background(), 11))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUser_Subject(t *testing.T) {
	u := &User{Role: "admin"}
	assert.True(t, u.IsAdmin())
	assert.Equal(t, "admin", u.RoleSlug())

	var nilUser *User
	assert.False(t, nilUser.IsAdmin())

	var nilCtx *AuthContext
	assert.Zero(t, nilCtx.OrgID())
	assert.Zero(t, nilCtx.UserID())
}
