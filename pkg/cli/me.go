package cli

import (
	"flag"
	"fmt"
	"sort"

	"github.com/platinummonkey/warden/pkg/guard"
	"github.com/platinummonkey/warden/pkg/permissions"
	"github.com/platinummonkey/warden/pkg/rbac"
)

func newMeCommand() *Command {
	cmd := &Command{
		Name:        "me",
		Description: "Show the current user and their effective permissions",
		Flags:       flag.NewFlagSet("me", flag.ExitOnError),
		Run:         runMe,
	}
	addConnectionFlags(cmd.Flags)
	return cmd
}

func runMe(args []string) error {
	cmd := newMeCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	s, err := open(cmd.Flags, guard.Route{Name: "me"})
	if err != nil {
		return err
	}

	user := s.me.User
	fmt.Fprintf(output, "%s <%s>\n", user.Name, user.Email)
	fmt.Fprintf(output, "Role: %s\n", user.Role)
	if permissions.IsAdmin(user.Role) {
		fmt.Fprintf(output, "Administrator: every permission is granted\n")
	}
	fmt.Fprintf(output, "Granted: %s\n", keysOrDash(user.Permissions.Grant))
	fmt.Fprintf(output, "Revoked: %s\n", keysOrDash(user.Permissions.Revoke))
	fmt.Fprintf(output, "Effective (%d):\n", s.me.Effective.Len())
	for _, k := range s.me.Effective.Strings() {
		fmt.Fprintf(output, "  %s\n", k)
	}
	return nil
}

func newCatalogCommand() *Command {
	cmd := &Command{
		Name:        "catalog",
		Description: "List the permissions that can be granted, grouped by module",
		Flags:       flag.NewFlagSet("catalog", flag.ExitOnError),
		Run:         runCatalog,
	}
	addConnectionFlags(cmd.Flags)
	cmd.Flags.String("lang", "en", "Label language (en or ar)")
	return cmd
}

func runCatalog(args []string) error {
	cmd := newCatalogCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}
	lang := stringFlag(cmd.Flags, "lang")
	if lang != "en" && lang != "ar" {
		return fmt.Errorf("-lang must be en or ar")
	}

	s, err := open(cmd.Flags, guard.Route{Name: "catalog", Permission: rbac.PermRolesView})
	if err != nil {
		return err
	}

	groups, err := s.client.AvailablePermissions(s.ctx)
	if err != nil {
		return err
	}

	modules := make([]string, 0, len(groups))
	for key := range groups {
		modules = append(modules, key)
	}
	sort.Strings(modules)

	w := newTable()
	for _, module := range modules {
		group := groups[module]
		fmt.Fprintf(w, "%s\t%s\n", module, pick(group.Label, lang))
		for _, d := range group.Permissions {
			label := d.LabelEN
			if lang == "ar" {
				label = d.LabelAR
			}
			fmt.Fprintf(w, "  %s\t%s\n", d.Key, label)
		}
	}
	return w.Flush()
}

func pick(l permissions.Label, lang string) string {
	if lang == "ar" {
		return l.AR
	}
	return l.EN
}
