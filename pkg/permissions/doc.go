// Package permissions is the pure core of Warden's authorization model.
//
// # Keys and the catalog
//
// A permission key is a resource.action string such as "contacts.view". The
// Catalog groups keys module → resource → action and carries bilingual
// labels. The default catalog is compiled in from catalog.yaml; a
// LiveCatalog can reload a file from disk while the server runs.
//
// # Effective permissions
//
//	effective = (roleDefaults ∪ grant) \ revoke
//
// The "admin" role short-circuits to every key in the catalog. Keys the
// catalog no longer knows are ignored, so a renamed key in a stored override
// simply stops having an effect.
//
//	calc := permissions.NewCalculator(permissions.DefaultCatalog())
//	calc.HasPermission(user, "contacts.delete")
//
// # Overrides
//
// Each checkbox in the permission matrix is in one of four states (Default,
// Granted, Revoked, Off). Override.Toggle moves between them without ever
// placing a key in both Grant and Revoke, and toggling twice restores the
// original override.
package permissions
