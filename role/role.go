// Package role carries the process-wide "who am I" fact — manager, worker,
// or console — as an explicit context value rather than a global variable,
// per the process-role design in SPEC_FULL.md §9. Operations that are only
// meaningful from one role (e.g. Variable.Get from a worker) check it here.
package role

import "context"

// Role identifies which of the three Sisyphus process kinds is running.
type Role int

const (
	// Unknown is the zero value: no role has been attached to the context.
	Unknown Role = iota
	// Manager is the control-loop process (component F).
	Manager
	// Worker is a dispatched task executor (component G).
	Worker
	// Console is the interactive session (out of scope; see spec.md §1).
	Console
)

func (r Role) String() string {
	switch r {
	case Manager:
		return "manager"
	case Worker:
		return "worker"
	case Console:
		return "console"
	default:
		return "unknown"
	}
}

type contextKey struct{}

// With attaches r to ctx.
func With(ctx context.Context, r Role) context.Context {
	return context.WithValue(ctx, contextKey{}, r)
}

// From reads the role attached to ctx, or Unknown if none was attached.
func From(ctx context.Context) Role {
	r, _ := ctx.Value(contextKey{}).(Role)
	return r
}
