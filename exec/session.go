// Package exec implements the manager's control loop (spec.md §4.F): the
// graph-update phase, the dispatch phase, retry escalation, and the
// process-role/Settings context threading every phase runs under. It
// generalizes psampaz-bigslice/exec/eval.go's one-shot "evaluate a task
// graph to completion" evaluator into a repeating, restartable tick over
// a graph whose ground truth lives on disk, never in this process's
// memory (spec.md §3).
package exec

import (
	"context"

	"github.com/grailbio/base/status"
	sisyphus "github.com/rwth-i6/sisyphus-go"
	"github.com/rwth-i6/sisyphus-go/engine"
	"github.com/rwth-i6/sisyphus-go/graph"
	"github.com/rwth-i6/sisyphus-go/role"
)

// Session bundles everything a phase of the tick loop needs, threaded
// explicitly through context rather than held in package globals (spec.md
// §9's process-role design), grounded on the teacher's *Session threaded
// through Executor.Start(*Session).
type Session struct {
	Settings sisyphus.Settings
	Graph    *graph.Graph
	Engine   engine.Engine
	Status   *status.Group

	// ModulePath is embedded in every sisyphus-id this session computes.
	ModulePath string
}

type sessionKey struct{}

// WithSession attaches both sess and its role to ctx, so that downstream
// calls can recover the Session and operations can check the role (e.g.
// fsref.Variable.Get/Set reject any context whose role isn't role.Worker).
func WithSession(ctx context.Context, sess *Session, r role.Role) context.Context {
	ctx = role.With(ctx, r)
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFrom recovers the Session attached by WithSession, or nil.
func SessionFrom(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionKey{}).(*Session)
	return sess
}

// JobDir resolves a sisyphus-id to its on-disk directory under this
// session's configured work directory.
func (s *Session) JobDir(sisyphusID string) string {
	return jobDirUnder(s.Settings.WorkDir, sisyphusID)
}
