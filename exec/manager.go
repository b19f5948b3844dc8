package exec

import (
	"context"
	"fmt"
	"os"

	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/limiter"
	"github.com/grailbio/base/log"
	"github.com/rwth-i6/sisyphus-go/engine"
	"github.com/rwth-i6/sisyphus-go/housekeeping"
	"github.com/rwth-i6/sisyphus-go/job"
	"github.com/rwth-i6/sisyphus-go/markerfs"
	"golang.org/x/sync/errgroup"
)

// DependencyResolver lets the manager learn a job's predecessors and
// input availability without needing to know a recipe's field layout:
// only the recipe package that defines a job type knows which of its
// fields are Path/Variable inputs.
type DependencyResolver interface {
	// Edges returns the sisyphus-ids of j's direct predecessors.
	Edges(jobID string, j job.Job) []string
	// InputsAvailable reports whether every input j declared is
	// available (spec.md §4.B "available()").
	InputsAvailable(jobID string, j job.Job) bool
}

// Manager runs the control loop of spec.md §4.F: alternating a
// graph-update phase and a dispatch phase on Settings.TickInterval.
type Manager struct {
	Session *Session
	Deps    DependencyResolver

	// DryRun, when set, runs the graph-update phase as normal but logs
	// the dispatch phase's planned actions instead of submitting,
	// materializing, or retrying anything (SPEC_FULL.md §13.3 "Dry-run
	// planning").
	DryRun bool

	probeLimiter *limiter.Limiter
	waiters      *waitRegistry
	lastShards   map[string][]ShardStatus
	lastInfo     map[string]job.Info
}

// NewManager constructs a Manager over sess, resolving job dependencies
// via deps.
func NewManager(sess *Session, deps DependencyResolver) *Manager {
	l := limiter.New()
	n := sess.Settings.MaxConcurrentProbes
	if n <= 0 {
		n = 16
	}
	l.Release(n)
	return &Manager{
		Session:      sess,
		Deps:         deps,
		probeLimiter: l,
		waiters:      newWaitRegistry(),
		lastShards:   map[string][]ShardStatus{},
		lastInfo:     map[string]job.Info{},
	}
}

// Run repeats Tick on Settings.TickInterval until ctx is canceled (the
// manager's SIGINT/shutdown path, spec.md §4.F "Termination"). It stops
// submitting new work as soon as ctx is done, but Tick itself is left to
// return normally so the current tick's bookkeeping is not left partial.
func (m *Manager) Run(ctx context.Context) error {
	ticker := newTicker(m.Session.Settings.TickInterval)
	defer ticker.Stop()
	for {
		if err := m.Tick(ctx); err != nil {
			log.Printf("manager: tick error: %v", err)
		}
		select {
		case <-ctx.Done():
			log.Printf("manager: shutting down: %v", ctx.Err())
			return nil
		case <-ticker.C():
		}
	}
}

// Tick performs one graph-update phase followed by one dispatch phase
// (spec.md §4.F). It never panics on a single job's bad state.
// Contradictory marker sets are not detected: DeriveJobState resolves
// them by precedence (a finished marker outranks an error marker, which
// outranks a submit log), and no job is reported as job.Unknown.
func (m *Manager) Tick(ctx context.Context) error {
	m.Session.Engine.ResetCache()
	queueState, err := m.Session.Engine.QueueState(ctx)
	if err != nil {
		return fmt.Errorf("manager: querying engine queue state: %w", err)
	}

	ids := m.Session.Graph.Jobs()
	m.Session.Status.Printf("tick: %d live jobs", len(ids))

	jobDir := func(id string) string { return m.Session.JobDir(id) }
	isFinished := func(id string) bool {
		j, ok := m.Session.Graph.ByID(id)
		if !ok {
			return false
		}
		state, _ := DeriveJobState(jobDir(id), id, j.Tasks(), true, queueState)
		return state == job.Finished
	}
	if err := m.Session.Graph.ResumeReady(ctx, jobDir, isFinished); err != nil {
		log.Printf("manager: async continuation error: %v", err)
	}
	ids = m.Session.Graph.Jobs()

	states, shardsByID, err := m.probeStates(ctx, ids, queueState)
	if err != nil {
		return err
	}

	// Track which jobs just became unblocked this tick, mirroring
	// eval.go's state.done()/state.Return() unlocking dependents of a
	// task that turned TaskOk — generalized here to log observability
	// for jobs, since (unlike the teacher) correctness itself comes from
	// recomputing DeriveJobState fresh from disk every tick rather than
	// from this counter.
	ts := newTickState()
	for _, id := range ids {
		j, ok := m.Session.Graph.ByID(id)
		if !ok {
			continue
		}
		for _, pred := range m.Deps.Edges(id, j) {
			ts.addEdge(pred, id)
		}
	}
	for id, s := range states {
		if s != job.Finished {
			continue
		}
		m.waiters.broadcast(id)
		if freed := ts.markFinished(id); len(freed) > 0 {
			m.Session.Status.Printf("%s finished: unblocks %v", id, freed)
		}
	}

	if m.Session.Settings.ShowJobTargets {
		for _, id := range ids {
			m.Session.Status.Printf("%s: %s", id, states[id])
		}
	}

	if m.DryRun {
		m.planDispatch(ids, states, shardsByID)
	} else if err := m.dispatch(ctx, ids, states, shardsByID); err != nil {
		return err
	}

	// Output/alias symlinks are recreated every tick regardless of
	// dispatch outcome, so a console browsing the output tree never sees
	// it lag more than one tick behind the graph (spec.md §4.H).
	if err := housekeeping.RefreshAliases(m.Session.Settings.WorkDir, m.Session.Settings.OutputDir, m.Session.Graph); err != nil {
		log.Printf("manager: refreshing alias symlinks: %v", err)
	}

	if m.Session.Settings.JobAutoCleanup && !m.DryRun {
		cleaner := &housekeeping.Cleaner{
			Graph:       m.Session.Graph,
			WorkDir:     m.Session.Settings.WorkDir,
			GracePeriod: m.Session.Settings.WaitPeriodJobFSSync,
			Edges:       m.edgesFor,
		}
		removed, skipped, err := cleaner.RemoveOrphans()
		if err != nil {
			log.Printf("manager: removing orphans: %v", err)
		} else if len(removed) > 0 {
			m.Session.Status.Printf("housekeeping: removed %d orphan job dir(s), skipped %d not yet past grace period", len(removed), len(skipped))
		}
	}
	return nil
}

// edgesFor adapts DependencyResolver.Edges to housekeeping.Cleaner's
// Edges signature, which only knows a job id and must look the job up
// itself.
func (m *Manager) edgesFor(id string) []string {
	j, ok := m.Session.Graph.ByID(id)
	if !ok {
		return nil
	}
	return m.Deps.Edges(id, j)
}

// planDispatch logs the dispatch phase's decisions without submitting,
// materializing, or retrying anything — the read-only counterpart of
// dispatch used by `sisyphus manager --dry-run`.
func (m *Manager) planDispatch(ids []string, states map[string]job.State, shardsByID map[string][]ShardStatus) {
	for _, id := range ids {
		state := states[id]
		switch state {
		case job.Runnable, job.Queued, job.Running:
			var runnable []string
			for _, s := range shardsByID[id] {
				if s.State == job.Runnable {
					runnable = append(runnable, fmt.Sprintf("%s.%d", s.Task, s.Shard))
				}
			}
			if len(runnable) > 0 {
				m.Session.Status.Printf("dry-run: %s would submit %v", id, runnable)
			}
		case job.Finished:
			m.Session.Status.Printf("dry-run: %s would link outputs", id)
		case job.Error, job.Interrupted:
			m.Session.Status.Printf("dry-run: %s would retry/escalate %d shard(s)", id, len(shardsByID[id]))
		}
	}
}

// probeStates computes every live job's derived state concurrently,
// bounded by probeLimiter, grounded on the teacher's commitLimiter
// bounding concurrent worker commits and on errgroup-based fan-out
// (exec/bigmachine.go's worker.Init/Run).
func (m *Manager) probeStates(ctx context.Context, ids []string, queueState map[engine.Key]engine.QueueState) (map[string]job.State, map[string][]ShardStatus, error) {
	states := make(map[string]job.State, len(ids))
	shardsByID := make(map[string][]ShardStatus, len(ids))

	type result struct {
		id     string
		state  job.State
		shards []ShardStatus
	}
	results := make([]result, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := m.probeLimiter.Acquire(gctx, 1); err != nil {
				return err
			}
			defer m.probeLimiter.Release(1)

			j, ok := m.Session.Graph.ByID(id)
			if !ok {
				return nil
			}
			available := m.Deps.InputsAvailable(id, j)
			state, shards := DeriveJobState(m.Session.JobDir(id), id, j.Tasks(), available, queueState)
			results[i] = result{id: id, state: state, shards: shards}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	for _, r := range results {
		if r.id == "" {
			continue
		}
		states[r.id] = r.state
		shardsByID[r.id] = r.shards
	}
	m.lastShards = shardsByID
	return states, shardsByID, nil
}

// dispatch implements spec.md §4.F's four dispatch-phase steps.
func (m *Manager) dispatch(ctx context.Context, ids []string, states map[string]job.State, shardsByID map[string][]ShardStatus) error {
	for _, id := range ids {
		j, ok := m.Session.Graph.ByID(id)
		if !ok {
			continue
		}
		state := states[id]
		jobDir := m.Session.JobDir(id)

		switch state {
		case job.Runnable:
			if err := m.materialize(ctx, id, j, jobDir); err != nil {
				log.Printf("manager: materializing %s: %v", id, err)
				continue
			}
			if err := m.submitNext(ctx, id, j, jobDir, shardsByID[id]); err != nil {
				log.Printf("manager: submitting %s: %v", id, err)
			}
		case job.Queued, job.Running:
			if err := m.submitNext(ctx, id, j, jobDir, shardsByID[id]); err != nil {
				log.Printf("manager: resubmitting %s: %v", id, err)
			}
		case job.Finished:
			if err := m.linkOutputs(id, jobDir); err != nil {
				log.Printf("manager: linking outputs for %s: %v", id, err)
			}
		case job.Error, job.Interrupted:
			if err := m.retryEscalate(ctx, id, j, jobDir, shardsByID[id], state); err != nil {
				log.Printf("manager: %s: %v", id, err)
			}
		}
	}
	return nil
}

// materialize creates a job's work directory layout — the directory
// itself, input/, output/ — and serializes j to job.save (spec.md §4.F
// step 1), which the worker later deserializes to run the requested task
// function. input/ is left empty: no predecessor symlinks are created
// there. Alias symlinks in the output tree are made separately, by
// housekeeping.RefreshAliases at the end of each tick.
func (m *Manager) materialize(ctx context.Context, id string, j job.Job, jobDir string) error {
	if err := os.MkdirAll(markerfs.InputDir(jobDir), 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(markerfs.OutputDir(jobDir), 0o755); err != nil {
		return err
	}
	if markerfs.Exists(markerfs.JobSavePath(jobDir)) {
		return nil
	}
	return job.Save(jobDir, j)
}

// submitNext submits every shard whose derived state is Runnable,
// preserving ancestor-before-descendant ordering because this is only
// reached once DeriveJobState has reported the job Runnable/Queued
// (predecessors already finished).
func (m *Manager) submitNext(ctx context.Context, id string, j job.Job, jobDir string, shards []ShardStatus) error {
	for _, s := range shards {
		if s.State != job.Runnable {
			continue
		}
		var rqmt job.ResourceRequirements
		var miniTask bool
		for _, t := range j.Tasks() {
			if t.FunctionName == s.Task {
				rqmt = t.Requirements
				miniTask = t.MiniTask
				break
			}
		}
		req := engine.SubmitRequest{
			JobDir:   jobDir,
			JobID:    id,
			Task:     s.Task,
			Shard:    s.Shard,
			Rqmt:     rqmt,
			Command:  []string{jobDir, s.Task, fmt.Sprintf("%d", s.Shard)},
			MiniTask: miniTask,
		}
		if _, err := m.Session.Engine.Submit(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// linkOutputs is called once per tick for a finished job and touches its
// finished.run marker; the output-tree symlinks themselves are kept by
// the housekeeping package (spec.md §4.F step 3, §4.H).
func (m *Manager) linkOutputs(id, jobDir string) error {
	return markerfs.Touch(markerfs.FinishedRunPath(jobDir))
}

// backgroundLoop returns backgroundcontext.Get(), a context for goroutines
// that outlive a single Run call, grounded on exec/bigmachine.go's
// `go b.managers[i].Do(backgroundcontext.Get())`. Nothing in this
// package calls it; the manager starts no such goroutines.
func backgroundLoop() context.Context {
	return backgroundcontext.Get()
}
