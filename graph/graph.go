// Package graph maintains the live job set, canonicalized by sisyphus-id
// (spec.md §4.D): the intern table, registered outputs, per-job aliases
// and targets, and the async-continuation queue that lets recipe code
// suspend on not-yet-available paths.
package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/sync/once"
	"github.com/rwth-i6/sisyphus-go/fsref"
	"github.com/rwth-i6/sisyphus-go/job"
)

// Graph is the canonicalization table and live job set described in
// spec.md §4.D. It is safe for concurrent use.
type Graph struct {
	mu sync.RWMutex

	byID    map[string]job.Job
	digests map[string][]byte // sisyphus-id -> raw fingerprint bytes, for prefix queries
	aliases map[string][]string // sisyphus-id -> alias names
	targets map[string][]string // sisyphus-id -> target labels
	outputs []fsref.Path         // registered roots

	// intern memoizes job construction per sisyphus-id, so recipe code
	// that calls the same constructor twice with equal arguments gets
	// back the same instance instead of building it twice. Grounded on
	// the teacher's once.Map memoization of invocation compilation
	// (bigmachineExecutor.compile's m.Compiles.Do).
	intern once.Map

	pending []*continuation
}

// NewGraph returns an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		byID:    make(map[string]job.Job),
		digests: make(map[string][]byte),
		aliases: make(map[string][]string),
		targets: make(map[string][]string),
	}
}

// Intern canonicalizes j: if a job with the same sisyphus-id is already
// live, the existing instance is returned instead of j (spec.md §4.D,
// invariant ID-uniqueness). build always runs once per Intern call, since
// the sisyphus-id can only be computed from a constructed instance; only
// the returned instance (and its place in byID/digests) is memoized per
// id. Recipe constructors must stay side-effect-free so a duplicate
// build() that loses its race against the memo table is harmless.
func (g *Graph) Intern(modulePath string, build func() (job.Job, error)) (job.Job, string, error) {
	probe, err := build()
	if err != nil {
		return nil, "", err
	}
	id, digest, err := job.Identity(modulePath, probe)
	if err != nil {
		return nil, "", err
	}

	err = g.intern.Do(id, func() error {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.byID[id] = probe
		g.digests[id] = digest.Bytes()
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	g.mu.RLock()
	canonical := g.byID[id]
	g.mu.RUnlock()
	return canonical, id, nil
}

// RegisterOutput pins p as a root of the reachable DAG (spec.md §4.D).
func (g *Graph) RegisterOutput(p fsref.Path) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outputs = append(g.outputs, p)
}

// Outputs returns the registered roots.
func (g *Graph) Outputs() []fsref.Path {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]fsref.Path, len(g.outputs))
	copy(out, g.outputs)
	return out
}

// Alias attaches a human-readable symlink name to a job (spec.md §4.D).
func (g *Graph) Alias(sisyphusID, name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.aliases[sisyphusID] = append(g.aliases[sisyphusID], name)
}

// Target attaches a semantic output-grouping label to a job.
func (g *Graph) Target(sisyphusID, name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.targets[sisyphusID] = append(g.targets[sisyphusID], name)
}

// ByID returns the live job instance for id, or false if none is live.
func (g *Graph) ByID(id string) (job.Job, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	j, ok := g.byID[id]
	return j, ok
}

// Jobs returns every live job id, sorted by id; callers that need
// dependency order should use TopoOrder instead.
func (g *Graph) Jobs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.byID))
	for id := range g.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ByClass returns the live job ids whose ClassName matches class.
func (g *Graph) ByClass(class string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var ids []string
	for id, j := range g.byID {
		if j.ClassName() == class {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ByAliasPrefix returns the live job ids with at least one alias having
// prefix, supporting the console's prefix-search queries (spec.md §4.D).
func (g *Graph) ByAliasPrefix(prefix string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var ids []string
	for id, names := range g.aliases {
		for _, n := range names {
			if strings.HasPrefix(n, prefix) {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// Aliases returns a copy of every live job id's alias names, for the
// housekeeping package's per-tick symlink refresh (spec.md §4.H).
func (g *Graph) Aliases() map[string][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string][]string, len(g.aliases))
	for id, names := range g.aliases {
		cp := make([]string, len(names))
		copy(cp, names)
		out[id] = cp
	}
	return out
}

// continuation is a suspended recipe resumption, keyed by the set of
// guard paths it is waiting on (spec.md §4.D "async recipe support").
type continuation struct {
	guards []fsref.Path
	resume func(ctx context.Context) error
}

// AsyncRun records a continuation that should run once every path in
// guards is available. This is the graph's only mechanism for letting
// structure depend on intermediate results (spec.md §4.D).
func (g *Graph) AsyncRun(guards []fsref.Path, resume func(ctx context.Context) error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = append(g.pending, &continuation{guards: guards, resume: resume})
}

// ResumeReady runs every pending continuation whose guard paths are all
// available, removing it from the pending set regardless of outcome (a
// continuation runs at most once). jobDir and isFinished let the caller
// resolve and check Path availability without this package depending on
// the manager's notion of job state.
func (g *Graph) ResumeReady(ctx context.Context, jobDir func(string) string, isFinished func(string) bool) error {
	g.mu.Lock()
	var ready []*continuation
	var still []*continuation
	for _, c := range g.pending {
		allAvailable := true
		for _, p := range c.guards {
			if !p.Available(jobDir, isFinished) {
				allAvailable = false
				break
			}
		}
		if allAvailable {
			ready = append(ready, c)
		} else {
			still = append(still, c)
		}
	}
	g.pending = still
	g.mu.Unlock()

	var firstErr error
	for _, c := range ready {
		if err := c.resume(ctx); err != nil && firstErr == nil {
			firstErr = errors.E(fmt.Sprintf("async continuation resume"), err)
		}
	}
	return firstErr
}

// PendingCount reports how many async continuations are still waiting,
// for status reporting.
func (g *Graph) PendingCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.pending)
}
