package matrix

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/platinummonkey/warden/pkg/permissions"
)

var (
	// ErrSaveInFlight is returned when a save or toggle arrives while a
	// previous save has not completed
	ErrSaveInFlight = errors.New("a save is already in progress")
	// ErrReadOnly is returned when editing a disabled matrix
	ErrReadOnly = errors.New("permissions are read-only for this user")
)

// SaveResult is the server's answer to an override save
type SaveResult struct {
	Override  permissions.Override `json:"permissions"`
	Effective permissions.Set      `json:"effective"`
	Version   int64                `json:"version"`
}

// Saver persists a user's override pair in a single request. A nil version
// means last write wins.
type Saver interface {
	SaveUserPermissions(ctx context.Context, userID int64, o permissions.Override, version *int64) (*SaveResult, error)
}

// Session is the state an editor is opened with
type Session struct {
	UserID   int64
	Role     string
	Defaults permissions.Set
	Override permissions.Override
	Version  int64
	CanEdit  bool
}

// Editor tracks unsaved toggles for one user. The confirmed override only
// changes after the server accepts a save.
type Editor struct {
	mu sync.Mutex

	calc      *permissions.Calculator
	session   Session
	working   permissions.Override
	effective permissions.Set
	saving    bool
}

// NewEditor opens an editing session. The override is normalized against
// the session defaults, since a role change can leave stored entries that
// no longer apply.
func NewEditor(calc *permissions.Calculator, session Session) *Editor {
	session.Override = session.Override.Normalize(session.Defaults)
	return &Editor{
		calc:      calc,
		session:   session,
		working:   session.Override.Clone(),
		effective: calc.EffectivePermissions(session.Role, session.Defaults, session.Override),
	}
}

// Disabled reports whether the editor refuses all toggles
func (e *Editor) Disabled() bool {
	return permissions.IsAdmin(e.session.Role) || !e.session.CanEdit
}

// Toggle flips the checkbox for key in the working copy
func (e *Editor) Toggle(key permissions.Key) (permissions.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Disabled() {
		return permissions.StateOff, ErrReadOnly
	}
	if e.saving {
		return permissions.StateOff, ErrSaveInFlight
	}
	if !e.calc.Catalog().Contains(key) {
		return permissions.StateOff, apperrors.NewValidation("permission", "unknown permission key %q", key)
	}

	e.working = e.working.Toggle(key, e.session.Defaults)
	return permissions.StateOf(key, e.session.Defaults, e.working), nil
}

// Working returns a copy of the unsaved override
func (e *Editor) Working() permissions.Override {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.working.Clone()
}

// Confirmed returns a copy of the last override the server accepted
func (e *Editor) Confirmed() permissions.Override {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Override.Clone()
}

// Effective returns the effective set the server last reported
func (e *Editor) Effective() permissions.Set {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.effective.Clone()
}

// Version returns the concurrency token of the confirmed override
func (e *Editor) Version() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Version
}

// Dirty reports whether the working copy differs from the confirmed override
func (e *Editor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.working.Equal(e.session.Override)
}

// Saving reports whether a save is in flight
func (e *Editor) Saving() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saving
}

// Discard drops unsaved toggles
func (e *Editor) Discard() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.working = e.session.Override.Clone()
}

// Matrix renders moduleKey from the working copy
func (e *Editor) Matrix(moduleKey string) (*Matrix, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Build(e.calc.Catalog(), moduleKey, Input{
		Role:     e.session.Role,
		Defaults: e.session.Defaults,
		Override: e.working,
		CanEdit:  e.session.CanEdit && !e.saving,
	})
}

// Save sends the full working override in one call. On failure nothing the
// editor shows changes; on success the server's answer becomes the
// confirmed state.
func (e *Editor) Save(ctx context.Context, saver Saver) (*SaveResult, error) {
	e.mu.Lock()
	if e.Disabled() {
		e.mu.Unlock()
		return nil, ErrReadOnly
	}
	if e.saving {
		e.mu.Unlock()
		return nil, ErrSaveInFlight
	}
	if e.working.Equal(e.session.Override) {
		result := &SaveResult{
			Override:  e.session.Override.Clone(),
			Effective: e.effective.Clone(),
			Version:   e.session.Version,
		}
		e.mu.Unlock()
		return result, nil
	}

	e.saving = true
	pending := e.working.Clone()
	version := e.session.Version
	userID := e.session.UserID
	e.mu.Unlock()

	result, err := saver.SaveUserPermissions(ctx, userID, pending, &version)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.saving = false
	if err != nil {
		return nil, fmt.Errorf("failed to save permissions for user %d: %w", userID, err)
	}

	e.session.Override = result.Override.Clone()
	e.session.Version = result.Version
	e.working = result.Override.Clone()
	e.effective = result.Effective.Clone()
	return result, nil
}
