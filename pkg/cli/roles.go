package cli

import (
	"flag"
	"fmt"
	"strings"

	"github.com/platinummonkey/warden/pkg/guard"
	"github.com/platinummonkey/warden/pkg/rbac"
)

func newRolesCommand() *Command {
	cmd := &Command{
		Name:        "roles",
		Description: "List, create, update and delete roles",
		Subcommands: map[string]*Command{
			"list":   newRolesListCommand(),
			"show":   newRolesShowCommand(),
			"create": newRolesCreateCommand(),
			"update": newRolesUpdateCommand(),
			"delete": newRolesDeleteCommand(),
		},
	}
	cmd.Run = func(args []string) error {
		if len(args) == 0 {
			return cmd.usage()
		}
		return cmd.ExecuteArgs(args)
	}
	return cmd
}

func newRolesListCommand() *Command {
	cmd := &Command{
		Name:        "list",
		Description: "List roles with their user and permission counts",
		Flags:       flag.NewFlagSet("roles list", flag.ExitOnError),
		Run:         runRolesList,
	}
	addConnectionFlags(cmd.Flags)
	return cmd
}

func runRolesList(args []string) error {
	cmd := newRolesListCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	s, err := open(cmd.Flags, guard.Route{Name: "roles", Permission: rbac.PermRolesView})
	if err != nil {
		return err
	}

	roles, err := s.client.ListRoles(s.ctx)
	if err != nil {
		return err
	}

	w := newTable()
	fmt.Fprintln(w, "ID\tSLUG\tNAME\tTYPE\tUSERS\tPERMISSIONS")
	for _, r := range roles {
		kind := "custom"
		if r.IsSystem {
			kind = "system"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\n", r.ID, r.Slug, r.Name, kind, r.UserCount, r.PermissionCount)
	}
	return w.Flush()
}

func newRolesShowCommand() *Command {
	cmd := &Command{
		Name:        "show",
		Description: "Show one role and its default permissions",
		Flags:       flag.NewFlagSet("roles show", flag.ExitOnError),
		Run:         runRolesShow,
	}
	addConnectionFlags(cmd.Flags)
	cmd.Flags.String("id", "", "Role ID")
	return cmd
}

func runRolesShow(args []string) error {
	cmd := newRolesShowCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}
	id, err := int64Flag(cmd.Flags, "id")
	if err != nil {
		return err
	}

	s, err := open(cmd.Flags, guard.Route{Name: "roles", Permission: rbac.PermRolesView})
	if err != nil {
		return err
	}

	role, err := s.client.GetRole(s.ctx, id)
	if err != nil {
		return err
	}
	printRole(role)
	return nil
}

func newRolesCreateCommand() *Command {
	cmd := &Command{
		Name:        "create",
		Description: "Create a custom role",
		Flags:       flag.NewFlagSet("roles create", flag.ExitOnError),
		Run:         runRolesCreate,
	}
	addConnectionFlags(cmd.Flags)
	cmd.Flags.String("name", "", "Role name")
	cmd.Flags.String("slug", "", "Role slug (derived from the name when empty)")
	cmd.Flags.String("description", "", "Role description")
	cmd.Flags.String("permissions", "", "Comma-separated permission keys")
	return cmd
}

func runRolesCreate(args []string) error {
	cmd := newRolesCreateCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(stringFlag(cmd.Flags, "name")) == "" {
		return fmt.Errorf("-name is required")
	}

	s, err := open(cmd.Flags, guard.Route{Name: "roles/new", Permission: rbac.PermRolesCreate})
	if err != nil {
		return err
	}

	role, err := s.client.CreateRole(s.ctx, rbac.CreateRoleRequest{
		Name:        stringFlag(cmd.Flags, "name"),
		Slug:        stringFlag(cmd.Flags, "slug"),
		Description: stringFlag(cmd.Flags, "description"),
		Permissions: listFlag(cmd.Flags, "permissions"),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(output, "Created role %s (id %d)\n", role.Slug, role.ID)
	printRole(role)
	return nil
}

func newRolesUpdateCommand() *Command {
	cmd := &Command{
		Name:        "update",
		Description: "Update a custom role; omitted flags are left unchanged",
		Flags:       flag.NewFlagSet("roles update", flag.ExitOnError),
		Run:         runRolesUpdate,
	}
	addConnectionFlags(cmd.Flags)
	cmd.Flags.String("id", "", "Role ID")
	cmd.Flags.String("name", "", "New role name")
	cmd.Flags.String("description", "", "New role description")
	cmd.Flags.String("permissions", "", "Comma-separated permission keys replacing the current set")
	return cmd
}

func runRolesUpdate(args []string) error {
	cmd := newRolesUpdateCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}
	id, err := int64Flag(cmd.Flags, "id")
	if err != nil {
		return err
	}

	var req rbac.UpdateRoleRequest
	if flagSet(cmd.Flags, "name") {
		name := stringFlag(cmd.Flags, "name")
		req.Name = &name
	}
	if flagSet(cmd.Flags, "description") {
		description := stringFlag(cmd.Flags, "description")
		req.Description = &description
	}
	if flagSet(cmd.Flags, "permissions") {
		keys := listFlag(cmd.Flags, "permissions")
		if keys == nil {
			keys = []string{}
		}
		req.Permissions = &keys
	}
	if req.Name == nil && req.Description == nil && req.Permissions == nil {
		return fmt.Errorf("nothing to update: pass -name, -description or -permissions")
	}

	s, err := open(cmd.Flags, guard.Route{Name: "roles/edit", Permission: rbac.PermRolesEdit})
	if err != nil {
		return err
	}

	role, err := s.client.UpdateRole(s.ctx, id, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(output, "Updated role %s\n", role.Slug)
	printRole(role)
	return nil
}

func newRolesDeleteCommand() *Command {
	cmd := &Command{
		Name:        "delete",
		Description: "Delete a custom role that no user holds",
		Flags:       flag.NewFlagSet("roles delete", flag.ExitOnError),
		Run:         runRolesDelete,
	}
	addConnectionFlags(cmd.Flags)
	cmd.Flags.String("id", "", "Role ID")
	return cmd
}

func runRolesDelete(args []string) error {
	cmd := newRolesDeleteCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}
	id, err := int64Flag(cmd.Flags, "id")
	if err != nil {
		return err
	}

	s, err := open(cmd.Flags, guard.Route{Name: "roles/delete", Permission: rbac.PermRolesDelete})
	if err != nil {
		return err
	}

	if err := s.client.DeleteRole(s.ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(output, "Deleted role %d\n", id)
	return nil
}

func printRole(role *rbac.Role) {
	kind := "custom"
	if role.IsSystem {
		kind = "system"
	}
	fmt.Fprintf(output, "%s (%s, %s)\n", role.Name, role.Slug, kind)
	if role.Description != "" {
		fmt.Fprintf(output, "  %s\n", role.Description)
	}

	keys := role.Permissions.Strings()
	fmt.Fprintf(output, "Permissions (%d):\n", len(keys))
	for _, k := range keys {
		fmt.Fprintf(output, "  %s\n", k)
	}
}
