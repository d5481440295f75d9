// Package matrix renders the permission catalog for one module as a grid of
// resources × actions and edits a user's overrides through it.
package matrix

import (
	"sort"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/platinummonkey/warden/pkg/permissions"
)

// actionPriority fixes left-to-right column order. Actions not listed sort
// after these, alphabetically.
var actionPriority = map[string]int{
	"view":   0,
	"create": 1,
	"edit":   2,
	"delete": 3,
	"export": 4,
	"invite": 5,
	"manage": 6,
}

// OrderActions deduplicates actions and sorts them by column priority
func OrderActions(actions []string) []string {
	seen := make(map[string]struct{}, len(actions))
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		pi, iKnown := actionPriority[out[i]]
		pj, jKnown := actionPriority[out[j]]
		switch {
		case iKnown && jKnown:
			return pi < pj
		case iKnown != jKnown:
			return iKnown
		default:
			return out[i] < out[j]
		}
	})
	return out
}

// Input is what the presenter renders against
type Input struct {
	Role     string
	Defaults permissions.Set
	Override permissions.Override
	// CanEdit is false when the viewer lacks rights to change overrides
	CanEdit bool
}

// Cell is one checkbox, or a placeholder when the resource does not support
// the column's action. Placeholders are always disabled.
type Cell struct {
	Action    string          `json:"action"`
	Supported bool            `json:"supported"`
	Key       permissions.Key `json:"key,omitempty"`
	State     string          `json:"state,omitempty"`
	Checked   bool            `json:"checked"`
	Custom    bool            `json:"custom"`
	Disabled  bool            `json:"disabled"`
	LabelEN   string          `json:"label_en,omitempty"`
	LabelAR   string          `json:"label_ar,omitempty"`
}

// Row is one resource
type Row struct {
	Resource string            `json:"resource"`
	Label    permissions.Label `json:"label"`
	Cells    []Cell            `json:"cells"`
}

// Matrix is the rendered grid for a module
type Matrix struct {
	Module     string            `json:"module"`
	Label      permissions.Label `json:"label"`
	Columns    []string          `json:"columns"`
	Rows       []Row             `json:"rows"`
	Disabled   bool              `json:"disabled"`
	Customized bool              `json:"customized"`
}

// Build renders moduleKey. Every control is disabled when the role is admin
// or the viewer cannot edit; disabled cells still carry their state.
func Build(catalog *permissions.Catalog, moduleKey string, in Input) (*Matrix, error) {
	module, ok := catalog.Module(moduleKey)
	if !ok {
		return nil, apperrors.NotFound("module", moduleKey)
	}

	admin := permissions.IsAdmin(in.Role)
	m := &Matrix{
		Module:   module.Key,
		Label:    module.Label,
		Disabled: admin || !in.CanEdit,
		Rows:     make([]Row, 0, len(module.Resources)),
	}

	var actions []string
	for _, r := range module.Resources {
		actions = append(actions, r.Actions...)
	}
	m.Columns = OrderActions(actions)

	for _, r := range module.Resources {
		row := Row{Resource: r.Key, Label: r.Label, Cells: make([]Cell, 0, len(m.Columns))}
		for _, action := range m.Columns {
			if !r.Supports(action) {
				row.Cells = append(row.Cells, Cell{Action: action, Disabled: true})
				continue
			}

			key := permissions.NewKey(r.Key, action)
			state := permissions.StateDefault
			if !admin {
				state = permissions.StateOf(key, in.Defaults, in.Override)
			}

			cell := Cell{
				Action:    action,
				Supported: true,
				Key:       key,
				State:     state.String(),
				Checked:   state.Checked(),
				Custom:    state.Custom(),
				Disabled:  m.Disabled,
			}
			if d, ok := catalog.Descriptor(key); ok {
				cell.LabelEN = d.LabelEN
				cell.LabelAR = d.LabelAR
			}
			if cell.Custom {
				m.Customized = true
			}
			row.Cells = append(row.Cells, cell)
		}
		m.Rows = append(m.Rows, row)
	}

	return m, nil
}

// Cell looks up the cell for resource and action
func (m *Matrix) Cell(resource, action string) (Cell, bool) {
	for _, row := range m.Rows {
		if row.Resource != resource {
			continue
		}
		for _, c := range row.Cells {
			if c.Action == action {
				return c, true
			}
		}
	}
	return Cell{}, false
}
