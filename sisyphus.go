// Package sisyphus is the root package of the workflow manager: Settings,
// the recipe-facing registration API (RegisterOutput, AsyncRun), and the
// shared module-path/work-directory wiring that the manager, worker, and
// console binaries all construct a Graph from the same way.
package sisyphus

import (
	"context"

	"github.com/rwth-i6/sisyphus-go/fsref"
	"github.com/rwth-i6/sisyphus-go/graph"
)

// Recipe is the handle a recipe package uses to register its outputs and
// to construct jobs against one Graph (spec.md §4.D construction rule:
// "every job constructor calls Graph.intern(self)").
type Recipe struct {
	ModulePath string
	Graph      *graph.Graph
}

// NewRecipe constructs a Recipe rooted at modulePath (the recipe's import
// path, embedded in every sisyphus-id it produces) sharing g.
func NewRecipe(modulePath string, g *graph.Graph) *Recipe {
	return &Recipe{ModulePath: modulePath, Graph: g}
}

// RegisterOutput pins p as a root of the reachable DAG (spec.md §4.D).
func (r *Recipe) RegisterOutput(p fsref.Path) {
	r.Graph.RegisterOutput(p)
}

// AsyncRun suspends until every path in guards is available, then invokes
// resume. This is the only mechanism by which graph structure may depend
// on intermediate results (spec.md §4.D "async recipe support"); the
// manager drives resumption from its graph-update phase, not this call.
func (r *Recipe) AsyncRun(guards []fsref.Path, resume func(ctx context.Context) error) {
	r.Graph.AsyncRun(guards, resume)
}
