package cli

import (
	"flag"
	"fmt"
	"time"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/guard"
	"github.com/platinummonkey/warden/pkg/rbac"
)

func newAuditCommand() *Command {
	cmd := &Command{
		Name:        "audit",
		Description: "Show recent role and permission changes",
		Flags:       flag.NewFlagSet("audit", flag.ExitOnError),
		Run:         runAudit,
	}
	addConnectionFlags(cmd.Flags)
	cmd.Flags.Int("limit", 50, "Maximum number of events")
	cmd.Flags.String("type", "", "Comma-separated event types, e.g. permissions.update,role.delete")
	return cmd
}

func runAudit(args []string) error {
	cmd := newAuditCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	var types []audit.EventType
	for _, t := range listFlag(cmd.Flags, "type") {
		types = append(types, audit.EventType(t))
	}

	s, err := open(cmd.Flags, guard.Route{Name: "settings/audit", Permission: rbac.PermAuditView})
	if err != nil {
		return err
	}

	limit := cmd.Flags.Lookup("limit").Value.(flag.Getter).Get().(int)
	events, err := s.client.AuditEvents(s.ctx, limit, types...)
	if err != nil {
		return err
	}

	w := newTable()
	fmt.Fprintln(w, "TIME\tEVENT\tSTATUS\tACTOR\tRESOURCE\tMESSAGE")
	for _, e := range events {
		actor := "-"
		if e.ActorID != nil {
			actor = fmt.Sprint(*e.ActorID)
		}
		resource := string(e.ResourceType)
		if e.ResourceID != "" {
			resource += "/" + e.ResourceID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Format(time.RFC3339), e.EventType, e.Status, actor, resource, e.Message)
	}
	return w.Flush()
}
