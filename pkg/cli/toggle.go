package cli

import (
	"flag"
	"fmt"
	"strings"

	"github.com/platinummonkey/warden/pkg/guard"
	"github.com/platinummonkey/warden/pkg/matrix"
	"github.com/platinummonkey/warden/pkg/permissions"
	"github.com/platinummonkey/warden/pkg/rbac"
)

func newToggleCommand() *Command {
	cmd := &Command{
		Name:        "toggle",
		Description: "Flip permission checkboxes for a user and save both override lists",
		Flags:       flag.NewFlagSet("toggle", flag.ExitOnError),
		Run:         runToggle,
	}
	addConnectionFlags(cmd.Flags)
	cmd.Flags.String("user", "", "User ID")
	cmd.Flags.String("keys", "", "Comma-separated permission keys to flip")
	cmd.Flags.Bool("dry-run", false, "Show the resulting states without saving")
	return cmd
}

func runToggle(args []string) error {
	cmd := newToggleCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}
	userID, err := int64Flag(cmd.Flags, "user")
	if err != nil {
		return err
	}
	keys := listFlag(cmd.Flags, "keys")
	if len(keys) == 0 {
		return fmt.Errorf("-keys is required")
	}

	s, err := open(cmd.Flags, guard.Route{Name: "team/permissions/edit", Permission: rbac.PermTeamManage})
	if err != nil {
		return err
	}

	view, err := s.client.UserPermissions(s.ctx, userID)
	if err != nil {
		return err
	}

	editor := matrix.NewEditor(s.calc, matrix.Session{
		UserID:   view.UserID,
		Role:     view.Role,
		Defaults: view.RolePermissions,
		Override: view.Permissions,
		Version:  view.Version,
		CanEdit:  true,
	})

	for _, k := range keys {
		state, err := editor.Toggle(permissions.Key(k))
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		fmt.Fprintf(output, "%s: %s\n", k, state)
	}

	if boolFlag(cmd.Flags, "dry-run") {
		working := editor.Working()
		fmt.Fprintf(output, "Dry run, nothing saved. Grant: %s Revoke: %s\n", keysOrDash(working.Grant), keysOrDash(working.Revoke))
		return nil
	}

	result, err := editor.Save(s.ctx, s.client)
	if err != nil {
		return err
	}
	fmt.Fprintf(output, "Saved (version %d)\n", result.Version)
	fmt.Fprintf(output, "Granted: %s\n", keysOrDash(result.Override.Grant))
	fmt.Fprintf(output, "Revoked: %s\n", keysOrDash(result.Override.Revoke))
	fmt.Fprintf(output, "Effective: %s\n", keysOrDash(result.Effective))
	return nil
}

func newMatrixCommand() *Command {
	cmd := &Command{
		Name:        "matrix",
		Description: "Show a user's permission grid for one module",
		Flags:       flag.NewFlagSet("matrix", flag.ExitOnError),
		Run:         runMatrix,
	}
	addConnectionFlags(cmd.Flags)
	cmd.Flags.String("user", "", "User ID")
	cmd.Flags.String("module", "crm", "Catalog module")
	cmd.Flags.String("lang", "en", "Label language (en or ar)")
	return cmd
}

func runMatrix(args []string) error {
	cmd := newMatrixCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}
	userID, err := int64Flag(cmd.Flags, "user")
	if err != nil {
		return err
	}

	s, err := open(cmd.Flags, guard.Route{Name: "team/matrix", Permission: rbac.PermTeamView})
	if err != nil {
		return err
	}

	m, err := s.client.UserMatrix(s.ctx, userID, stringFlag(cmd.Flags, "module"))
	if err != nil {
		return err
	}
	printMatrix(m, stringFlag(cmd.Flags, "lang"))
	return nil
}

// cellMarks renders each checkbox state
var cellMarks = map[string]string{
	permissions.StateDefault.String(): "[x]",
	permissions.StateGranted.String(): "[+]",
	permissions.StateRevoked.String(): "[-]",
	permissions.StateOff.String():     "[ ]",
}

func printMatrix(m *matrix.Matrix, lang string) {
	fmt.Fprintf(output, "%s\n", pick(m.Label, lang))

	w := newTable()
	fmt.Fprintf(w, "\t%s\n", strings.ToUpper(strings.Join(m.Columns, "\t")))
	for _, row := range m.Rows {
		marks := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			if !c.Supported {
				marks[i] = " · "
				continue
			}
			marks[i] = cellMarks[c.State]
		}
		fmt.Fprintf(w, "%s\t%s\n", pick(row.Label, lang), strings.Join(marks, "\t"))
	}
	w.Flush()

	fmt.Fprintf(output, "[x] role default  [+] granted  [-] revoked  [ ] off\n")
	switch {
	case m.Disabled:
		fmt.Fprintf(output, "Read-only\n")
	case m.Customized:
		fmt.Fprintf(output, "Customized for this user\n")
	}
}
