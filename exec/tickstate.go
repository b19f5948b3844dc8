package exec

// tickState tracks, for one graph-update phase, which jobs are blocked on
// unfinished predecessors and which have become ready to dispatch. It
// generalizes psampaz-bigslice/exec/eval.go's state type (deps/counts/
// todo/done) from "a task graph evaluated once to completion" to "the
// live job set's dependency counts, recomputed fresh every tick from
// states derived off disk" — the per-round wait memoization that let the
// teacher's evaluator see one consistent graph view per call is exactly
// what spec.md §5 requires of a single tick's engine-queue snapshot.
type tickState struct {
	// deps[dst] is the set of predecessor ids dst is still waiting on.
	deps map[string]map[string]bool
	// counts[dst] is len(deps[dst]), maintained incrementally.
	counts map[string]int
	ready  []string
}

func newTickState() *tickState {
	return &tickState{
		deps:   make(map[string]map[string]bool),
		counts: make(map[string]int),
	}
}

// addEdge records that dst depends on src (src must finish before dst can
// be dispatched), mirroring state.add in the teacher.
func (s *tickState) addEdge(src, dst string) {
	if s.deps[dst] == nil {
		s.deps[dst] = make(map[string]bool)
	}
	if s.deps[dst][src] {
		return
	}
	s.deps[dst][src] = true
	s.counts[dst]++
}

// markFinished records that src finished, returning the set of
// dependents whose predecessor count just reached zero — mirroring
// state.done in the teacher.
func (s *tickState) markFinished(src string) []string {
	var freed []string
	for dst, preds := range s.deps {
		if preds[src] {
			delete(preds, src)
			s.counts[dst]--
			if s.counts[dst] == 0 {
				freed = append(freed, dst)
			}
		}
	}
	delete(s.deps, src)
	return freed
}

// readyNow reports whether id has no remaining unfinished predecessors.
func (s *tickState) readyNow(id string) bool {
	return s.counts[id] == 0
}
