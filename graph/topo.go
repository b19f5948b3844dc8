package graph

import (
	"fmt"

	"github.com/rwth-i6/sisyphus-go/fsref"
	"github.com/rwth-i6/sisyphus-go/job"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// CycleError reports that the live job set is not a DAG: some job
// transitively depends on itself. Per spec.md §3, deduplication makes
// this structural — it should be unreachable from well-formed recipes —
// so encountering it is treated as a fatal construction bug, not a
// retryable condition.
type CycleError struct {
	Jobs []string // every sisyphus-id of every cyclic component
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("graph: dependency cycle detected involving %d job(s): %v", len(e.Jobs), e.Jobs)
}

// node wraps a sisyphus-id for gonum's int64-indexed graph API, grounded
// on the same node-wrapper idiom used to build a package-dependency graph
// in distri's batch builder.
type node struct {
	id     int64
	jobID  string
}

func (n *node) ID() int64 { return n.id }

// InputJobs reduces the Path values a job declared as inputs to the set
// of distinct predecessor job ids: any Path with a non-empty JobID names
// a predecessor (spec.md §3 "edges are implied by each job's input
// paths"). Callers collect paths by walking the job's own fields, since
// only the recipe-specific job type knows which of its fields are inputs.
func InputJobs(j job.Job, paths []fsref.Path) []string {
	seen := map[string]bool{}
	var ids []string
	for _, p := range paths {
		if p.JobID == "" || seen[p.JobID] {
			continue
		}
		seen[p.JobID] = true
		ids = append(ids, p.JobID)
	}
	return ids
}

// TopoOrder returns the live job ids in topological order — ancestors
// (predecessors) before descendants — as required for the manager's
// graph-update phase (spec.md §4.F step 2: "in topological order") and
// for safe cleanup traversal. edges maps a job id to the ids of jobs it
// directly depends on (its predecessors).
func TopoOrder(ids []string, edges map[string][]string) ([]string, error) {
	g := simple.NewDirectedGraph()

	nodes := make(map[string]*node, len(ids))
	for i, id := range ids {
		n := &node{id: int64(i), jobID: id}
		nodes[id] = n
		g.AddNode(n)
	}
	for id, deps := range edges {
		from, ok := nodes[id]
		if !ok {
			continue
		}
		for _, dep := range deps {
			to, ok := nodes[dep]
			if !ok {
				continue
			}
			// An edge dep -> id means dep must be ordered before id
			// (dep is a predecessor of id).
			g.SetEdge(g.NewEdge(to, from))
		}
	}

	sorted, err := topo.Sort(g)
	if err != nil {
		if uo, ok := err.(topo.Unorderable); ok {
			var cyclic []string
			for _, component := range uo {
				for _, n := range component {
					cyclic = append(cyclic, n.(*node).jobID)
				}
			}
			return nil, &CycleError{Jobs: cyclic}
		}
		return nil, err
	}

	out := make([]string, len(sorted))
	for i, n := range sorted {
		out[i] = n.(*node).jobID
	}
	return out, nil
}

// Descendants returns every job id reachable by following "depends on"
// edges backwards from root (i.e. every job that transitively depends on
// root), for housekeeping's cleanup traversal (spec.md §4.D).
func Descendants(root string, edges map[string][]string) []string {
	// reverse: id -> jobs that declare id as a dependency
	reverse := map[string][]string{}
	for id, deps := range edges {
		for _, dep := range deps {
			reverse[dep] = append(reverse[dep], id)
		}
	}

	visited := map[string]bool{}
	var out []string
	var walk func(string)
	walk = func(id string) {
		for _, child := range reverse[id] {
			if visited[child] {
				continue
			}
			visited[child] = true
			out = append(out, child)
			walk(child)
		}
	}
	walk(root)
	return out
}
