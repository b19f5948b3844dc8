package exec

import (
	"github.com/rwth-i6/sisyphus-go/fsref"
	"github.com/rwth-i6/sisyphus-go/graph"
	"github.com/rwth-i6/sisyphus-go/job"
)

// InputPather is an optional capability a recipe job can implement so
// DefaultDependencyResolver can derive Edges/InputsAvailable without a
// recipe-specific resolver: it need only list the Paths it declared as
// inputs, the same reduction graph.InputJobs already performs.
type InputPather interface {
	InputPaths() []fsref.Path
}

// DefaultDependencyResolver implements DependencyResolver for jobs that
// implement InputPather, resolving availability against g's live job
// directories. Jobs that don't implement InputPather are treated as
// having no predecessors and always-available inputs — a recipe with
// more specific needs should supply its own DependencyResolver instead.
type DefaultDependencyResolver struct {
	Graph   *graph.Graph
	WorkDir string
}

func (r *DefaultDependencyResolver) Edges(jobID string, j job.Job) []string {
	ip, ok := j.(InputPather)
	if !ok {
		return nil
	}
	return graph.InputJobs(j, ip.InputPaths())
}

func (r *DefaultDependencyResolver) InputsAvailable(jobID string, j job.Job) bool {
	ip, ok := j.(InputPather)
	if !ok {
		return true
	}
	jobDir := func(id string) string { return jobDirUnder(r.WorkDir, id) }
	isFinished := func(id string) bool {
		pred, ok := r.Graph.ByID(id)
		if !ok {
			return false
		}
		state, _ := DeriveJobState(jobDir(id), id, pred.Tasks(), true, nil)
		return state == job.Finished
	}
	for _, p := range ip.InputPaths() {
		if !p.Available(jobDir, isFinished) {
			return false
		}
	}
	return true
}
