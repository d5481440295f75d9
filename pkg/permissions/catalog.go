package permissions

import (
	"fmt"

	"github.com/platinummonkey/warden/pkg/apperrors"
)

// Label is a bilingual display string
type Label struct {
	EN string `json:"en" yaml:"en"`
	AR string `json:"ar" yaml:"ar"`
}

// Descriptor is the catalog entry for one permission key
type Descriptor struct {
	Key     Key    `json:"key"`
	LabelEN string `json:"label_en"`
	LabelAR string `json:"label_ar"`
}

// Resource groups the descriptors sharing a resource prefix. Actions lists
// the actions this resource supports, in catalog order.
type Resource struct {
	Key         string       `json:"key"`
	Label       Label        `json:"label"`
	Actions     []string     `json:"actions"`
	Permissions []Descriptor `json:"permissions"`
}

// Supports reports whether the resource declares action
func (r Resource) Supports(action string) bool {
	for _, a := range r.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Module is a named, ordered group of resources (crm, settings, team, ...)
type Module struct {
	Key       string     `json:"key"`
	Label     Label      `json:"label"`
	Resources []Resource `json:"resources"`
}

// Group is the wire form of a module in the available-permissions response
type Group struct {
	Label       Label        `json:"label"`
	Permissions []Descriptor `json:"permissions"`
}

// CatalogProvider returns the catalog in effect. Both *Catalog and
// *LiveCatalog implement it.
type CatalogProvider interface {
	Catalog() *Catalog
}

// Catalog is the immutable taxonomy of all permission keys
type Catalog struct {
	modules     []Module
	moduleIndex map[string]int
	descriptors map[Key]Descriptor
	moduleOf    map[Key]string
}

// NewCatalog indexes modules. Every descriptor key must be well formed,
// unique across the catalog, and prefixed by its resource key.
func NewCatalog(modules []Module) (*Catalog, error) {
	c := &Catalog{
		modules:     modules,
		moduleIndex: make(map[string]int, len(modules)),
		descriptors: make(map[Key]Descriptor),
		moduleOf:    make(map[Key]string),
	}

	resources := make(map[string]string)
	for i, m := range modules {
		if m.Key == "" {
			return nil, fmt.Errorf("module %d has no key", i)
		}
		if _, dup := c.moduleIndex[m.Key]; dup {
			return nil, fmt.Errorf("duplicate module %q", m.Key)
		}
		c.moduleIndex[m.Key] = i

		for _, r := range m.Resources {
			if owner, dup := resources[r.Key]; dup {
				return nil, fmt.Errorf("resource %q declared in both %q and %q", r.Key, owner, m.Key)
			}
			resources[r.Key] = m.Key

			for _, d := range r.Permissions {
				if !d.Key.Valid() {
					return nil, fmt.Errorf("invalid permission key %q in module %q", d.Key, m.Key)
				}
				if d.Key.Resource() != r.Key {
					return nil, fmt.Errorf("permission %q does not belong to resource %q", d.Key, r.Key)
				}
				if !r.Supports(d.Key.Action()) {
					return nil, fmt.Errorf("permission %q uses undeclared action %q", d.Key, d.Key.Action())
				}
				if _, dup := c.descriptors[d.Key]; dup {
					return nil, fmt.Errorf("duplicate permission key %q", d.Key)
				}
				c.descriptors[d.Key] = d
				c.moduleOf[d.Key] = m.Key
			}
		}
	}

	return c, nil
}

// Catalog implements CatalogProvider
func (c *Catalog) Catalog() *Catalog {
	return c
}

// Modules returns the modules in catalog order
func (c *Catalog) Modules() []Module {
	return c.modules
}

// Module looks up a module by key
func (c *Catalog) Module(key string) (Module, bool) {
	i, ok := c.moduleIndex[key]
	if !ok {
		return Module{}, false
	}
	return c.modules[i], true
}

// ModuleOf returns the module key that owns k
func (c *Catalog) ModuleOf(k Key) (string, bool) {
	m, ok := c.moduleOf[k]
	return m, ok
}

// Descriptor looks up the descriptor for k
func (c *Catalog) Descriptor(k Key) (Descriptor, bool) {
	d, ok := c.descriptors[k]
	return d, ok
}

// Contains reports whether k is a recognized permission key
func (c *Catalog) Contains(k Key) bool {
	if c == nil {
		return false
	}
	_, ok := c.descriptors[k]
	return ok
}

// Len returns the number of permission keys
func (c *Catalog) Len() int {
	return len(c.descriptors)
}

// Keys returns every permission key in the catalog
func (c *Catalog) Keys() Set {
	out := make(Set, len(c.descriptors))
	for k := range c.descriptors {
		out[k] = struct{}{}
	}
	return out
}

// Known keeps only the keys the catalog recognizes
func (c *Catalog) Known(s Set) Set {
	return s.Filter(c.Contains)
}

// Unknown returns the keys the catalog does not recognize
func (c *Catalog) Unknown(s Set) Set {
	return s.Filter(func(k Key) bool { return !c.Contains(k) })
}

// Validate parses values and rejects malformed or unrecognized keys. It is
// used on every write path; reads tolerate unknown keys.
func (c *Catalog) Validate(field string, values []string) (Set, error) {
	set, err := ParseKeys(field, values)
	if err != nil {
		return nil, err
	}
	for _, k := range set.Sorted() {
		if !c.Contains(k) {
			return nil, apperrors.NewValidation(field, "unknown permission key %q", k)
		}
	}
	return set, nil
}

// Groups returns the catalog keyed by module, flattened to descriptors
func (c *Catalog) Groups() map[string]Group {
	groups := make(map[string]Group, len(c.modules))
	for _, m := range c.modules {
		g := Group{Label: m.Label, Permissions: []Descriptor{}}
		for _, r := range m.Resources {
			g.Permissions = append(g.Permissions, r.Permissions...)
		}
		groups[m.Key] = g
	}
	return groups
}
