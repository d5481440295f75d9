package cli

import (
	"flag"
	"fmt"

	"github.com/platinummonkey/warden/pkg/guard"
	"github.com/platinummonkey/warden/pkg/rbac"
)

func newUsersCommand() *Command {
	cmd := &Command{
		Name:        "users",
		Description: "List the members of your organization",
		Flags:       flag.NewFlagSet("users", flag.ExitOnError),
		Run:         runUsers,
	}
	addConnectionFlags(cmd.Flags)
	return cmd
}

func runUsers(args []string) error {
	cmd := newUsersCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	s, err := open(cmd.Flags, guard.Route{Name: "team", Permission: rbac.PermTeamView})
	if err != nil {
		return err
	}

	users, err := s.client.ListUsers(s.ctx)
	if err != nil {
		return err
	}

	w := newTable()
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE\tCUSTOMIZED\tACTIVE")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%t\n", u.ID, u.Name, u.Email, u.Role, u.Permissions.IsCustomized(), u.IsActive)
	}
	return w.Flush()
}

func newPermissionsCommand() *Command {
	cmd := &Command{
		Name:        "permissions",
		Description: "Show a user's role defaults, overrides and effective permissions",
		Flags:       flag.NewFlagSet("permissions", flag.ExitOnError),
		Run:         runPermissions,
	}
	addConnectionFlags(cmd.Flags)
	cmd.Flags.String("user", "", "User ID")
	return cmd
}

func runPermissions(args []string) error {
	cmd := newPermissionsCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}
	userID, err := int64Flag(cmd.Flags, "user")
	if err != nil {
		return err
	}

	s, err := open(cmd.Flags, guard.Route{Name: "team/permissions", Permission: rbac.PermTeamView})
	if err != nil {
		return err
	}

	view, err := s.client.UserPermissions(s.ctx, userID)
	if err != nil {
		return err
	}
	printUserPermissions(view)
	if !s.can(rbac.PermTeamManage) {
		fmt.Fprintf(output, "(read-only: you cannot change permissions)\n")
	}
	return nil
}

func newAssignCommand() *Command {
	cmd := &Command{
		Name:        "assign",
		Description: "Move a user to another role",
		Flags:       flag.NewFlagSet("assign", flag.ExitOnError),
		Run:         runAssign,
	}
	addConnectionFlags(cmd.Flags)
	cmd.Flags.String("user", "", "User ID")
	cmd.Flags.String("role-id", "", "Role ID")
	return cmd
}

func runAssign(args []string) error {
	cmd := newAssignCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}
	userID, err := int64Flag(cmd.Flags, "user")
	if err != nil {
		return err
	}
	roleID, err := int64Flag(cmd.Flags, "role-id")
	if err != nil {
		return err
	}

	s, err := open(cmd.Flags, guard.Route{Name: "team/role", Permission: rbac.PermTeamManage})
	if err != nil {
		return err
	}

	view, err := s.client.AssignRole(s.ctx, userID, roleID)
	if err != nil {
		return err
	}
	fmt.Fprintf(output, "User %d is now %s\n", view.UserID, view.Role)
	printUserPermissions(view)
	return nil
}

func printUserPermissions(view *rbac.UserPermissions) {
	fmt.Fprintf(output, "User: %d\n", view.UserID)
	fmt.Fprintf(output, "Role: %s\n", view.Role)
	fmt.Fprintf(output, "Role defaults: %s\n", keysOrDash(view.RolePermissions))
	fmt.Fprintf(output, "Granted: %s\n", keysOrDash(view.Permissions.Grant))
	fmt.Fprintf(output, "Revoked: %s\n", keysOrDash(view.Permissions.Revoke))
	fmt.Fprintf(output, "Effective: %s\n", keysOrDash(view.Effective))
	fmt.Fprintf(output, "Version: %d\n", view.Version)
}
