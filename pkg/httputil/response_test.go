package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/apperrors"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", apperrors.NewValidation("name", "is required"), http.StatusUnprocessableEntity},
		{"wrapped validation", fmt.Errorf("create: %w", apperrors.NewValidation("permissions", "bad")), http.StatusUnprocessableEntity},
		{"not found", apperrors.NotFound("role", 3), http.StatusNotFound},
		{"denied", apperrors.Denied("roles.edit"), http.StatusForbidden},
		{"conflict", apperrors.Conflict("role has users"), http.StatusConflict},
		{"other", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestWriteServiceError(t *testing.T) {
	t.Run("validation carries field", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/roles", nil)
		WriteServiceError(rr, req, apperrors.NewValidation("permissions", "unknown permission key %q", "x.y"))

		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		var body ErrorResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.Equal(t, "permissions", body.Field)
		assert.Equal(t, `unknown permission key "x.y"`, body.Error)
	})

	t.Run("internal errors are masked", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/roles", nil)
		WriteServiceError(rr, req, errors.New("pq: password authentication failed"))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.JSONEq(t, `{"error":"internal server error"}`, rr.Body.String())
	})

	t.Run("conflict keeps message", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/roles/1", nil)
		WriteServiceError(rr, req, apperrors.Conflict("role is assigned to 2 users"))

		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Contains(t, rr.Body.String(), "role is assigned to 2 users")
	})
}

func TestWriteHelpers(t *testing.T) {
	rr := httptest.NewRecorder()
	require.NoError(t, WriteCreated(rr, map[string]int{"id": 1}))
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	rr = httptest.NewRecorder()
	WriteNoContent(rr)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
}
