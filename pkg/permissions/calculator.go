package permissions

// AdminRole is the role slug that bypasses every permission check
const AdminRole = "admin"

// IsAdmin reports whether role is the universal bypass role
func IsAdmin(role string) bool {
	return role == AdminRole
}

// Effective returns (defaults ∪ grant) \ revoke
func Effective(defaults, grant, revoke Set) Set {
	return defaults.Union(grant).Difference(revoke)
}

// Subject is anything the calculator can answer for: a user snapshot held
// by a client or an authoritative record loaded on the server.
type Subject interface {
	RoleSlug() string
	RoleDefaults() Set
	Overrides() Override
}

// Calculator computes effective permission sets against a catalog
type Calculator struct {
	catalog CatalogProvider
}

// NewCalculator creates a calculator bound to catalog
func NewCalculator(catalog CatalogProvider) *Calculator {
	return &Calculator{catalog: catalog}
}

// Catalog returns the catalog in effect
func (c *Calculator) Catalog() *Catalog {
	return c.catalog.Catalog()
}

// EffectivePermissions computes the effective set for a role and override.
// Admin yields every catalog key. Keys the catalog does not know are
// ignored wherever they appear.
func (c *Calculator) EffectivePermissions(role string, defaults Set, o Override) Set {
	catalog := c.catalog.Catalog()
	if IsAdmin(role) {
		return catalog.Keys()
	}
	return catalog.Known(Effective(defaults, o.Grant, o.Revoke))
}

// For computes the effective set of s
func (c *Calculator) For(s Subject) Set {
	return c.EffectivePermissions(s.RoleSlug(), s.RoleDefaults(), s.Overrides())
}

// HasPermission reports whether s holds key. Malformed or unrecognized keys
// and a nil subject yield false.
func (c *Calculator) HasPermission(s Subject, key string) bool {
	if s == nil {
		return false
	}
	k := Key(key)
	catalog := c.catalog.Catalog()
	if !k.Valid() || !catalog.Contains(k) {
		return false
	}
	if IsAdmin(s.RoleSlug()) {
		return true
	}
	o := s.Overrides()
	if o.Revoke.Has(k) {
		return false
	}
	return s.RoleDefaults().Has(k) || o.Grant.Has(k)
}

// HasAny reports whether s holds at least one of keys
func (c *Calculator) HasAny(s Subject, keys ...string) bool {
	for _, k := range keys {
		if c.HasPermission(s, k) {
			return true
		}
	}
	return false
}

// HasAll reports whether s holds every key. An empty list is allowed.
func (c *Calculator) HasAll(s Subject, keys ...string) bool {
	for _, k := range keys {
		if !c.HasPermission(s, k) {
			return false
		}
	}
	return true
}
