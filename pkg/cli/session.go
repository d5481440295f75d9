package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/platinummonkey/warden/pkg/client"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/guard"
	"github.com/platinummonkey/warden/pkg/permissions"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// output receives everything commands print
var output io.Writer = os.Stdout

// addConnectionFlags registers the server flags every remote command takes
func addConnectionFlags(fs *flag.FlagSet) {
	cfg := config.LoadClientConfig()
	fs.String("api", cfg.APIURL, "Warden API URL (WARDEN_API_URL)")
	fs.String("token", cfg.Token, "API token (WARDEN_TOKEN)")
}

// session is an authenticated connection whose user snapshot has passed
// the navigation guard for one route
type session struct {
	ctx    context.Context
	client *client.Client
	calc   *permissions.Calculator
	me     *rbac.MeResponse
}

// open connects with the flags of fs, refreshes the user snapshot and
// enters route. Nothing is fetched for a route the snapshot cannot see.
func open(fs *flag.FlagSet, route guard.Route) (*session, error) {
	cfg := config.LoadClientConfig()
	s := &session{
		ctx:    context.Background(),
		client: client.New(stringFlag(fs, "api"), stringFlag(fs, "token"), client.WithTimeout(cfg.Timeout)),
		calc:   permissions.NewCalculator(permissions.DefaultCatalog()),
	}

	var subject permissions.Subject
	me, err := s.client.Me(s.ctx)
	switch {
	case errors.Is(err, client.ErrUnauthorized):
	case err != nil:
		return nil, err
	default:
		s.me = me
		if me.User != nil {
			subject = me.User
		}
	}

	nav := guard.New(s.calc, nil).Navigate(route, subject)
	if err := nav.Err(); err != nil {
		if errors.Is(err, guard.ErrLoginRequired) {
			return nil, fmt.Errorf("%w: set WARDEN_TOKEN or pass -token", err)
		}
		return nil, err
	}
	return s, nil
}

// can reports whether the snapshot holds key, for hiding actions the user
// cannot take
func (s *session) can(key string) bool {
	if s.me == nil || s.me.User == nil {
		return false
	}
	return s.calc.HasPermission(s.me.User, key)
}

func stringFlag(fs *flag.FlagSet, name string) string {
	return fs.Lookup(name).Value.String()
}

func boolFlag(fs *flag.FlagSet, name string) bool {
	return fs.Lookup(name).Value.String() == "true"
}

// int64Flag reads a required positive ID flag
func int64Flag(fs *flag.FlagSet, name string) (int64, error) {
	raw := stringFlag(fs, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("-%s must be a positive integer", name)
	}
	return id, nil
}

// listFlag splits a comma separated flag, dropping blanks
func listFlag(fs *flag.FlagSet, name string) []string {
	var out []string
	for _, v := range strings.Split(stringFlag(fs, name), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// flagSet reports whether name was passed explicitly
func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(output, 0, 0, 2, ' ', 0)
}

func keysOrDash(set permissions.Set) string {
	if set.Len() == 0 {
		return "-"
	}
	return strings.Join(set.Strings(), ", ")
}
