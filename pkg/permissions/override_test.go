package permissions

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateOf(t *testing.T) {
	defaults := NewSet("contacts.view", "contacts.edit")
	o := Override{Grant: NewSet("contacts.delete"), Revoke: NewSet("contacts.edit")}

	assert.Equal(t, StateDefault, StateOf("contacts.view", defaults, o))
	assert.Equal(t, StateRevoked, StateOf("contacts.edit", defaults, o))
	assert.Equal(t, StateGranted, StateOf("contacts.delete", defaults, o))
	assert.Equal(t, StateOff, StateOf("contacts.export", defaults, o))

	assert.True(t, StateDefault.Checked())
	assert.True(t, StateGranted.Checked())
	assert.False(t, StateRevoked.Checked())
	assert.False(t, StateOff.Checked())
}

func TestToggleTable(t *testing.T) {
	defaults := NewSet("contacts.view")

	tests := []struct {
		name       string
		key        Key
		start      Override
		wantGrant  Set
		wantRevoke Set
		wantState  State
	}{
		{"off checks into grant", "deals.view", Override{}, NewSet("deals.view"), NewSet(), StateGranted},
		{"default unchecks into revoke", "contacts.view", Override{}, NewSet(), NewSet("contacts.view"), StateRevoked},
		{"granted unchecks out of grant", "deals.view", Override{Grant: NewSet("deals.view")}, NewSet(), NewSet(), StateOff},
		{"revoked checks out of revoke", "contacts.view", Override{Revoke: NewSet("contacts.view")}, NewSet(), NewSet(), StateDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.start.Clone()
			got := tt.start.Toggle(tt.key, defaults)

			assert.True(t, got.Grant.Equal(tt.wantGrant), "grant %v", got.Grant.Strings())
			assert.True(t, got.Revoke.Equal(tt.wantRevoke), "revoke %v", got.Revoke.Strings())
			assert.Equal(t, tt.wantState, StateOf(tt.key, defaults, got))
			assert.True(t, tt.start.Equal(before), "toggle must not mutate its receiver")
		})
	}
}

func TestToggleRoundTripFromEveryState(t *testing.T) {
	defaults := NewSet("contacts.view", "contacts.edit")
	start := Override{Grant: NewSet("deals.view"), Revoke: NewSet("contacts.edit")}

	for _, key := range []Key{"contacts.view", "contacts.edit", "deals.view", "deals.edit"} {
		once := start.Toggle(key, defaults)
		twice := once.Toggle(key, defaults)
		assert.True(t, twice.Equal(start), "round trip of %s (%s) changed the override", key, StateOf(key, defaults, start))
	}
}

func TestToggleDefaultOffAndOnLeavesNoCustomization(t *testing.T) {
	defaults := NewSet("contacts.view")

	o := Override{}.Toggle("contacts.view", defaults)
	assert.True(t, o.HasCustom("contacts.view"))

	o = o.Toggle("contacts.view", defaults)
	assert.Equal(t, 0, o.Grant.Len())
	assert.Equal(t, 0, o.Revoke.Len())
	assert.False(t, o.IsCustomized())

	data, err := json.Marshal(o)
	require.NoError(t, err)
	assert.JSONEq(t, `{"grant":[],"revoke":[]}`, string(data))
}

func TestToggleSequencesKeepGrantAndRevokeDisjoint(t *testing.T) {
	defaults := NewSet("contacts.view", "contacts.edit", "tickets.view")
	keys := []Key{"contacts.view", "contacts.edit", "contacts.delete", "tickets.view", "tickets.assign", "deals.view"}
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		o := Override{}
		for step := 0; step < 30; step++ {
			o = o.Toggle(keys[rng.Intn(len(keys))], defaults)
			assert.Equal(t, 0, o.Grant.Intersect(o.Revoke).Len(), "run %d step %d", run, step)
			for k := range o.Grant {
				assert.False(t, defaults.Has(k), "grant holds role default %s", k)
			}
			for k := range o.Revoke {
				assert.True(t, defaults.Has(k), "revoke holds non-default %s", k)
			}
		}
	}
}

func TestToggleSettlesStaleEntries(t *testing.T) {
	// defaults after a role change; the override was written for the old role
	defaults := NewSet("contacts.view", "contacts.edit")

	tests := []struct {
		name       string
		key        Key
		start      Override
		wantGrant  Set
		wantRevoke Set
		wantState  State
	}{
		{"grant of a new default unchecks into revoke", "contacts.edit", Override{Grant: NewSet("contacts.edit")}, NewSet(), NewSet("contacts.edit"), StateRevoked},
		{"revoke of a lost default checks into grant", "deals.edit", Override{Revoke: NewSet("deals.edit")}, NewSet("deals.edit"), NewSet(), StateGranted},
		{"default in both lists checks back to default", "contacts.view", Override{Grant: NewSet("contacts.view"), Revoke: NewSet("contacts.view")}, NewSet(), NewSet(), StateDefault},
		{"non-default in both lists checks into grant", "deals.view", Override{Grant: NewSet("deals.view"), Revoke: NewSet("deals.view")}, NewSet("deals.view"), NewSet(), StateGranted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := StateOf(tt.key, defaults, tt.start)
			assert.Equal(t, Effective(defaults, tt.start.Grant, tt.start.Revoke).Has(tt.key), before.Checked(),
				"state %s disagrees with the effective set", before)

			got := tt.start.Toggle(tt.key, defaults)
			assert.True(t, got.Grant.Equal(tt.wantGrant), "grant %v", got.Grant.Strings())
			assert.True(t, got.Revoke.Equal(tt.wantRevoke), "revoke %v", got.Revoke.Strings())
			assert.Equal(t, 0, got.Grant.Intersect(got.Revoke).Len())
			assert.Equal(t, tt.wantState, StateOf(tt.key, defaults, got))
			assert.Equal(t, Effective(defaults, got.Grant, got.Revoke).Has(tt.key), tt.wantState.Checked())
		})
	}
}

func TestSetChecked(t *testing.T) {
	defaults := NewSet("contacts.view")

	o, changed := Override{}.SetChecked("contacts.view", defaults, true)
	assert.False(t, changed)
	assert.False(t, o.IsCustomized())

	o, changed = o.SetChecked("contacts.view", defaults, false)
	assert.True(t, changed)
	assert.True(t, o.Revoke.Has("contacts.view"))

	o, changed = o.SetChecked("deals.view", defaults, true)
	assert.True(t, changed)
	assert.True(t, o.Grant.Has("deals.view"))
}

func TestNormalize(t *testing.T) {
	defaults := NewSet("contacts.view", "contacts.edit")
	o := Override{
		Grant:  NewSet("contacts.view", "deals.view", "tickets.view"),
		Revoke: NewSet("contacts.edit", "deals.edit", "tickets.view"),
	}

	got := o.Normalize(defaults)
	assert.True(t, got.Grant.Equal(NewSet("deals.view")))
	assert.True(t, got.Revoke.Equal(NewSet("contacts.edit")))
}

func TestNormalizeKeepsEffectiveSet(t *testing.T) {
	defaults := NewSet("contacts.view", "contacts.edit")
	o := Override{
		Grant:  NewSet("contacts.view", "contacts.edit", "deals.view", "tickets.view"),
		Revoke: NewSet("contacts.edit", "deals.edit", "tickets.view"),
	}

	got := o.Normalize(defaults)
	assert.True(t, got.Grant.Equal(NewSet("deals.view")))
	assert.True(t, got.Revoke.Equal(NewSet("contacts.edit")))
	assert.True(t, Effective(defaults, got.Grant, got.Revoke).Equal(Effective(defaults, o.Grant, o.Revoke)))
}

func TestStateMarshalText(t *testing.T) {
	data, err := json.Marshal(map[string]State{"a": StateGranted, "b": StateOff})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"granted","b":"off"}`, string(data))
}
