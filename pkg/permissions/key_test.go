package permissions

import (
	"encoding/json"
	"testing"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"contacts.view", false},
		{"team_members.invite", false},
		{"a1.b2", false},
		{"contacts", true},
		{"contacts.", true},
		{".view", true},
		{"Contacts.view", true},
		{"contacts.View", true},
		{"1contacts.view", true},
		{"contacts.view.all", true},
		{"contacts-view", true},
		{"contacts .view", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			k, err := ParseKey(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Key(tt.input), k)
		})
	}
}

func TestKeyParts(t *testing.T) {
	k := NewKey("contacts", "export")
	assert.Equal(t, "contacts.export", k.String())
	assert.Equal(t, "contacts", k.Resource())
	assert.Equal(t, "export", k.Action())
	assert.True(t, k.Valid())
}

func TestParseKeysReportsField(t *testing.T) {
	_, err := ParseKeys("grant", []string{"contacts.view", "bad key"})
	require.Error(t, err)
	ve, ok := apperrors.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "grant", ve.Field)
}

func TestSetOperationsDoNotMutate(t *testing.T) {
	a := NewSet("contacts.view", "contacts.edit")
	b := NewSet("contacts.edit", "deals.view")

	union := a.Union(b)
	diff := a.Difference(b)
	inter := a.Intersect(b)

	assert.True(t, union.Equal(NewSet("contacts.view", "contacts.edit", "deals.view")))
	assert.True(t, diff.Equal(NewSet("contacts.view")))
	assert.True(t, inter.Equal(NewSet("contacts.edit")))
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 2, b.Len())

	with := a.With("deals.delete")
	assert.False(t, a.Has("deals.delete"))
	assert.True(t, with.Has("deals.delete"))

	without := a.Without("contacts.view")
	assert.True(t, a.Has("contacts.view"))
	assert.False(t, without.Has("contacts.view"))
}

func TestSetJSON(t *testing.T) {
	data, err := json.Marshal(NewSet("deals.view", "contacts.view"))
	require.NoError(t, err)
	assert.JSONEq(t, `["contacts.view","deals.view"]`, string(data))

	var empty Set
	data, err = json.Marshal(struct {
		Grant Set `json:"grant"`
	}{Grant: empty})
	require.NoError(t, err)
	assert.JSONEq(t, `{"grant":[]}`, string(data))

	var decoded Set
	require.NoError(t, json.Unmarshal([]byte(`["contacts.view","legacy.key"]`), &decoded))
	assert.True(t, decoded.Has("legacy.key"))

	require.NoError(t, json.Unmarshal([]byte(`null`), &decoded))
	assert.Equal(t, 0, decoded.Len())
}
