package matrix

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/platinummonkey/warden/pkg/permissions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSaver records calls and can block until released
type mockSaver struct {
	mu       sync.Mutex
	calls    []permissions.Override
	versions []*int64
	err      error
	started  chan struct{}
	release  chan struct{}
}

func (m *mockSaver) SaveUserPermissions(ctx context.Context, userID int64, o permissions.Override, version *int64) (*SaveResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, o.Clone())
	m.versions = append(m.versions, version)
	m.mu.Unlock()

	if m.started != nil {
		close(m.started)
	}
	if m.release != nil {
		<-m.release
	}
	if m.err != nil {
		return nil, m.err
	}

	defaults := permissions.NewSet("contacts.view", "contacts.edit")
	next := int64(1)
	if version != nil {
		next = *version + 1
	}
	return &SaveResult{
		Override:  o,
		Effective: permissions.Effective(defaults, o.Grant, o.Revoke),
		Version:   next,
	}, nil
}

func newTestEditor(canEdit bool) *Editor {
	calc := permissions.NewCalculator(permissions.DefaultCatalog())
	return NewEditor(calc, Session{
		UserID:   7,
		Role:     "agent",
		Defaults: permissions.NewSet("contacts.view", "contacts.edit"),
		Version:  3,
		CanEdit:  canEdit,
	})
}

func TestEditorToggleAndDiscard(t *testing.T) {
	e := newTestEditor(true)
	assert.False(t, e.Dirty())

	state, err := e.Toggle("contacts.edit")
	require.NoError(t, err)
	assert.Equal(t, permissions.StateRevoked, state)
	assert.True(t, e.Dirty())

	state, err = e.Toggle("deals.view")
	require.NoError(t, err)
	assert.Equal(t, permissions.StateGranted, state)

	m, err := e.Matrix("crm")
	require.NoError(t, err)
	cell, _ := m.Cell("deals", "view")
	assert.Equal(t, "granted", cell.State)

	e.Discard()
	assert.False(t, e.Dirty())
	assert.False(t, e.Working().IsCustomized())
}

func TestEditorNormalizesStaleOverride(t *testing.T) {
	// contacts.edit was granted under the previous role and is now a default;
	// deals.edit was revoked under a role that conferred it
	calc := permissions.NewCalculator(permissions.DefaultCatalog())
	e := NewEditor(calc, Session{
		UserID:   7,
		Role:     "agent",
		Defaults: permissions.NewSet("contacts.view", "contacts.edit"),
		Override: permissions.Override{
			Grant:  permissions.NewSet("contacts.edit"),
			Revoke: permissions.NewSet("deals.edit"),
		},
		Version: 5,
		CanEdit: true,
	})
	assert.False(t, e.Dirty())
	assert.False(t, e.Confirmed().IsCustomized())

	state, err := e.Toggle("contacts.edit")
	require.NoError(t, err)
	assert.Equal(t, permissions.StateRevoked, state)

	state, err = e.Toggle("deals.edit")
	require.NoError(t, err)
	assert.Equal(t, permissions.StateGranted, state)

	saver := &mockSaver{}
	_, err = e.Save(context.Background(), saver)
	require.NoError(t, err)
	require.Len(t, saver.calls, 1)
	sent := saver.calls[0]
	assert.True(t, sent.Grant.Equal(permissions.NewSet("deals.edit")), "grant %v", sent.Grant.Strings())
	assert.True(t, sent.Revoke.Equal(permissions.NewSet("contacts.edit")), "revoke %v", sent.Revoke.Strings())
	assert.Equal(t, 0, sent.Grant.Intersect(sent.Revoke).Len())
}

func TestEditorRejectsUnknownKey(t *testing.T) {
	e := newTestEditor(true)
	_, err := e.Toggle("warehouse.view")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestEditorReadOnly(t *testing.T) {
	e := newTestEditor(false)
	assert.True(t, e.Disabled())

	_, err := e.Toggle("contacts.view")
	assert.ErrorIs(t, err, ErrReadOnly)

	_, err = e.Save(context.Background(), &mockSaver{})
	assert.ErrorIs(t, err, ErrReadOnly)

	calc := permissions.NewCalculator(permissions.DefaultCatalog())
	admin := NewEditor(calc, Session{UserID: 1, Role: permissions.AdminRole, CanEdit: true})
	assert.True(t, admin.Disabled())
	_, err = admin.Toggle("contacts.view")
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestEditorSaveSendsBothListsOnce(t *testing.T) {
	e := newTestEditor(true)
	_, err := e.Toggle("contacts.edit")
	require.NoError(t, err)
	_, err = e.Toggle("contacts.delete")
	require.NoError(t, err)

	saver := &mockSaver{}
	result, err := e.Save(context.Background(), saver)
	require.NoError(t, err)

	require.Len(t, saver.calls, 1)
	assert.True(t, saver.calls[0].Grant.Equal(permissions.NewSet("contacts.delete")))
	assert.True(t, saver.calls[0].Revoke.Equal(permissions.NewSet("contacts.edit")))
	require.NotNil(t, saver.versions[0])
	assert.Equal(t, int64(3), *saver.versions[0])

	assert.Equal(t, int64(4), result.Version)
	assert.Equal(t, int64(4), e.Version())
	assert.False(t, e.Dirty())
	assert.True(t, e.Effective().Equal(permissions.NewSet("contacts.view", "contacts.delete")))
	assert.True(t, e.Confirmed().Equal(saver.calls[0]))
}

func TestEditorSaveWithoutChangesSkipsNetwork(t *testing.T) {
	e := newTestEditor(true)
	saver := &mockSaver{}

	result, err := e.Save(context.Background(), saver)
	require.NoError(t, err)
	assert.Empty(t, saver.calls)
	assert.Equal(t, int64(3), result.Version)
}

func TestEditorFailedSaveKeepsState(t *testing.T) {
	e := newTestEditor(true)
	_, err := e.Toggle("contacts.edit")
	require.NoError(t, err)
	working := e.Working()
	confirmed := e.Confirmed()

	saver := &mockSaver{err: apperrors.Conflict("stale version")}
	_, err = e.Save(context.Background(), saver)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	assert.True(t, e.Working().Equal(working))
	assert.True(t, e.Confirmed().Equal(confirmed))
	assert.True(t, e.Dirty())
	assert.False(t, e.Saving())
	assert.Equal(t, int64(3), e.Version())
}

func TestEditorBlocksConcurrentSave(t *testing.T) {
	e := newTestEditor(true)
	_, err := e.Toggle("deals.view")
	require.NoError(t, err)

	saver := &mockSaver{started: make(chan struct{}), release: make(chan struct{})}

	done := make(chan error, 1)
	go func() {
		_, err := e.Save(context.Background(), saver)
		done <- err
	}()

	<-saver.started
	assert.True(t, e.Saving())

	_, err = e.Save(context.Background(), saver)
	assert.ErrorIs(t, err, ErrSaveInFlight)

	_, err = e.Toggle("deals.edit")
	assert.ErrorIs(t, err, ErrSaveInFlight)

	m, err := e.Matrix("crm")
	require.NoError(t, err)
	assert.True(t, m.Disabled)

	close(saver.release)
	require.NoError(t, <-done)
	assert.False(t, e.Saving())
	assert.Len(t, saver.calls, 1)
}
