// Package cli provides the warden command-line interface for role and
// permission administration.
//
// # Overview
//
// Every command talks to the warden REST API with a bearer token. Before a
// command fetches anything it refreshes the caller's snapshot from /me and
// runs the navigation guard for the command's route: without a token the
// command stops with a login error, and without the route's permission it
// stops with a permission denied error. The server re-checks every request.
//
// # Connection
//
//	export WARDEN_API_URL=https://crm.example.com/api/v1
//	export WARDEN_TOKEN=wdn_...
//
// Both can be overridden per command with -api and -token.
//
// # Commands
//
// me: Show your role and effective permissions
//
//	warden me
//
// catalog: List grantable permissions by module (roles.view)
//
//	warden catalog -lang ar
//
// roles: Manage roles (roles.view, roles.create, roles.edit, roles.delete)
//
//	warden roles list
//	warden roles create -name "Field Sales" -permissions deals.view,deals.edit
//	warden roles update -id 12 -permissions deals.view
//	warden roles delete -id 12
//
// users, permissions, matrix: Inspect members (team.view)
//
//	warden users
//	warden permissions -user 42
//	warden matrix -user 42 -module crm
//
// toggle, assign: Change a member's permissions or role (team.manage)
//
//	warden toggle -user 42 -keys contacts.delete,contacts.edit
//	warden toggle -user 42 -keys deals.export -dry-run
//	warden assign -user 42 -role-id 7
//
// audit: Show recent changes (settings.view)
//
//	warden audit -type permissions.update,role.delete -limit 20
//
// toggle flips checkboxes the way the permission matrix does: a role default
// becomes revoked, a granted key becomes off, and so on. Both override lists
// are then saved in one request carrying the version the command read, so a
// concurrent edit fails with a conflict instead of being overwritten.
package cli
