package main

import (
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rwth-i6/sisyphus-go/role"
	"github.com/rwth-i6/sisyphus-go/worker"
	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker <job_dir> <task> [shard]",
		Short: "execute one task on the current machine (used by engines)",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			shard := 0
			if len(args) == 3 {
				n, err := strconv.Atoi(args[2])
				if err != nil {
					return badUsage("worker: invalid shard index %q: %v", args[2], err)
				}
				shard = n
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, os.Interrupt)
			defer stop()
			return worker.Run(role.With(ctx, role.Worker), args[0], args[1], shard)
		},
	}
}

// exitCodeFor maps an error from a subcommand to one of spec.md §6's
// non-default exit codes; ok is false for errors that should exit 1.
func exitCodeFor(err error) (int, bool) {
	if errors.Is(err, worker.ErrBusy) {
		return exitWorkerBusy, true
	}
	return 0, false
}
