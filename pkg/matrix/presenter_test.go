package matrix

import (
	"errors"
	"testing"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/platinummonkey/warden/pkg/permissions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderActions(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "known actions use fixed priority",
			input: []string{"manage", "delete", "view", "invite", "export", "create", "edit"},
			want:  []string{"view", "create", "edit", "delete", "export", "invite", "manage"},
		},
		{
			name:  "unknown actions sort last alphabetically",
			input: []string{"merge", "view", "assign", "edit"},
			want:  []string{"view", "edit", "assign", "merge"},
		},
		{
			name:  "duplicates collapse",
			input: []string{"view", "edit", "view", "edit"},
			want:  []string{"view", "edit"},
		},
		{
			name:  "empty",
			input: nil,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OrderActions(tt.input))
		})
	}
}

func TestBuildColumnsAreUnionOfModuleActions(t *testing.T) {
	catalog := permissions.DefaultCatalog()

	m, err := Build(catalog, "team", Input{Role: "manager", CanEdit: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"view", "invite", "manage"}, m.Columns)

	m, err = Build(catalog, "settings", Input{Role: "manager", CanEdit: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"view", "create", "edit", "delete"}, m.Columns)

	// settings.settings only supports view and edit
	cell, ok := m.Cell("settings", "create")
	require.True(t, ok)
	assert.False(t, cell.Supported)
	assert.Empty(t, cell.Key)
	assert.Empty(t, cell.State)
	assert.False(t, cell.Checked)
	assert.True(t, cell.Disabled)

	m, err = Build(catalog, "tickets", Input{Role: "agent", CanEdit: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"view", "create", "edit", "delete", "assign"}, m.Columns)
}

func TestBuildCellStates(t *testing.T) {
	catalog := permissions.DefaultCatalog()
	in := Input{
		Role:     "agent",
		Defaults: permissions.NewSet("contacts.view", "contacts.edit"),
		Override: permissions.Override{
			Grant:  permissions.NewSet("contacts.delete"),
			Revoke: permissions.NewSet("contacts.edit"),
		},
		CanEdit: true,
	}

	m, err := Build(catalog, "crm", in)
	require.NoError(t, err)
	assert.False(t, m.Disabled)
	assert.True(t, m.Customized)
	assert.Len(t, m.Rows, 3)
	assert.Equal(t, "contacts", m.Rows[0].Resource)

	tests := []struct {
		action  string
		state   string
		checked bool
		custom  bool
	}{
		{"view", "default", true, false},
		{"edit", "revoked", false, true},
		{"delete", "granted", true, true},
		{"create", "off", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			cell, ok := m.Cell("contacts", tt.action)
			require.True(t, ok)
			assert.True(t, cell.Supported)
			assert.Equal(t, permissions.NewKey("contacts", tt.action), cell.Key)
			assert.Equal(t, tt.state, cell.State)
			assert.Equal(t, tt.checked, cell.Checked)
			assert.Equal(t, tt.custom, cell.Custom)
			assert.False(t, cell.Disabled)
			assert.NotEmpty(t, cell.LabelEN)
			assert.NotEmpty(t, cell.LabelAR)
		})
	}
}

func TestBuildDisabledModes(t *testing.T) {
	catalog := permissions.DefaultCatalog()
	override := permissions.Override{Revoke: permissions.NewSet("contacts.view")}

	t.Run("admin role", func(t *testing.T) {
		m, err := Build(catalog, "crm", Input{Role: permissions.AdminRole, Override: override, CanEdit: true})
		require.NoError(t, err)
		assert.True(t, m.Disabled)
		for _, row := range m.Rows {
			for _, c := range row.Cells {
				assert.True(t, c.Disabled, "%s/%s should be disabled for admin", row.Resource, c.Action)
				if c.Supported {
					assert.True(t, c.Checked, "%s should render checked for admin", c.Key)
				}
			}
		}
	})

	t.Run("viewer without edit rights keeps states", func(t *testing.T) {
		m, err := Build(catalog, "crm", Input{
			Role:     "agent",
			Defaults: permissions.NewSet("contacts.view"),
			Override: override,
			CanEdit:  false,
		})
		require.NoError(t, err)
		assert.True(t, m.Disabled)

		cell, ok := m.Cell("contacts", "view")
		require.True(t, ok)
		assert.Equal(t, "revoked", cell.State)
		assert.True(t, cell.Disabled)
	})
}

func TestBuildUnknownModule(t *testing.T) {
	_, err := Build(permissions.DefaultCatalog(), "warehouse", Input{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
