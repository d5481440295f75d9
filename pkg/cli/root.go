package cli

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// NewRootCommand creates the root command
func NewRootCommand() *Command {
	root := &Command{
		Name:        "warden",
		Description: "Warden - role and permission administration CLI",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("warden", flag.ExitOnError),
	}

	// Add subcommands
	root.Subcommands["me"] = newMeCommand()
	root.Subcommands["catalog"] = newCatalogCommand()
	root.Subcommands["roles"] = newRolesCommand()
	root.Subcommands["users"] = newUsersCommand()
	root.Subcommands["permissions"] = newPermissionsCommand()
	root.Subcommands["toggle"] = newToggleCommand()
	root.Subcommands["matrix"] = newMatrixCommand()
	root.Subcommands["assign"] = newAssignCommand()
	root.Subcommands["audit"] = newAuditCommand()

	return root
}

// Execute runs the command with the process arguments
func (c *Command) Execute() error {
	return c.ExecuteArgs(os.Args[1:])
}

// ExecuteArgs runs the command with args
func (c *Command) ExecuteArgs(args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	// Check for help flag
	switch strings.ToLower(args[0]) {
	case "-h", "--help", "help":
		return c.usage()
	}

	// Check for subcommand
	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	fmt.Fprintf(output, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(output, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(output, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}
