package job

import "errors"

// ErrOOM and ErrTimeout are sentinel errors a RunTask implementation
// returns (via fmt.Errorf("...: %w", job.ErrOOM) or directly) to tell the
// worker its failure was a resource kill rather than a logic error, so
// the manager's retry-escalation path (spec.md §4.C) scales the right
// requirement dimension instead of treating it as non-retryable.
var (
	ErrOOM     = errors.New("task exceeded its memory requirement")
	ErrTimeout = errors.New("task exceeded its time requirement")
)
