// Command sisyphus is the single executable described in spec.md §6:
// `manager` runs the control loop, `worker` executes one task, and
// `console` is an interactive-session stub out of scope for this spec.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes from spec.md §6.
const (
	exitOK          = 0
	exitFatal       = 1
	exitBadUsage    = 2
	exitWorkerBusy  = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:           "sisyphus",
		Short:         "Content-addressed, filesystem-coordinated DAG scheduler for batch pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newManagerCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newConsoleCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "sisyphus: %v\n", err)
		if _, ok := err.(*usageError); ok {
			return exitBadUsage
		}
		if code, ok := exitCodeFor(err); ok {
			return code
		}
		return exitFatal
	}
	return exitOK
}

// usageError marks an error as spec.md §6 exit code 2 ("bad usage")
// rather than the default unrecoverable-error code 1.
type usageError struct{ error }

func badUsage(format string, args ...interface{}) error {
	return &usageError{fmt.Errorf(format, args...)}
}
