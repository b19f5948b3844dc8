package worker

import (
	"context"
	"errors"

	"github.com/rwth-i6/sisyphus-go/job"
)

// isOOM reports whether err (or a context deadline standing in for the
// engine's own resource enforcement) indicates a memory kill. A true
// kernel OOM kill never lets the worker process run this code — it is
// the recipe task function itself that is expected to detect and report
// an approaching limit by returning job.ErrOOM, the same role played by
// a cluster engine's wrapper script inspecting cgroup/qacct afterward.
func isOOM(err error) bool {
	return errors.Is(err, job.ErrOOM)
}

// isTimeout reports whether err indicates a time kill: the task function
// reported job.ErrTimeout, or its error wraps context.DeadlineExceeded
// from a deadline of its own. Run sets no deadline from the task's
// declared TimeHrs.
func isTimeout(err error) bool {
	return errors.Is(err, job.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
