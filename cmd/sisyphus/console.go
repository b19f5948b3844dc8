package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newConsoleCmd is a documented stub: spec.md §1 marks the interactive
// console out of scope beyond the toolkit API component F/G already
// expose (graph queries, job state, housekeeping), so this subcommand
// only reports that it isn't implemented rather than pretending to offer
// a REPL.
func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "console",
		Aliases: []string{"c"},
		Short:   "interactive session (not implemented by this build)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("console: interactive session is out of scope for this build; use the graph/housekeeping packages programmatically")
		},
	}
}
