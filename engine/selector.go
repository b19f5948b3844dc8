package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Selector is the EngineSelector composite of spec.md §4.E: it routes
// submissions to a named sub-engine, with mini_task shards always routed
// to a designated short engine regardless of requested engine name.
type Selector struct {
	engines    map[string]Engine
	shortName  string
	defaultName string
}

// NewSelector constructs a Selector over engines keyed by name. shortName
// selects which engine mini_task shards always route to; defaultName
// selects the engine used when a caller does not request one by name.
func NewSelector(engines map[string]Engine, shortName, defaultName string) *Selector {
	return &Selector{engines: engines, shortName: shortName, defaultName: defaultName}
}

func (s *Selector) Name() string { return "selector" }

// Route resolves the engine a shard should be submitted to: mini_task
// always goes to the short engine; otherwise the caller's requested name,
// falling back to the selector's default (spec.md §4.E).
func (s *Selector) Route(requestedName string, miniTask bool) (Engine, error) {
	name := requestedName
	if miniTask {
		name = s.shortName
	}
	if name == "" {
		name = s.defaultName
	}
	e, ok := s.engines[name]
	if !ok {
		return nil, fmt.Errorf("engine selector: unknown engine %q", name)
	}
	return e, nil
}

// Submit routes req by its MiniTask flag, then submits to the resolved
// engine: mini_task shards always go to the short engine, everything
// else goes to the selector's default (spec.md §4.E). A caller that
// already knows which named engine it wants can call Route directly
// instead.
func (s *Selector) Submit(ctx context.Context, req SubmitRequest) (Handle, error) {
	e, err := s.Route("", req.MiniTask)
	if err != nil {
		return "", err
	}
	return e.Submit(ctx, req)
}

// QueueState fans out QueueState to every distinct sub-engine
// concurrently and merges the results, grounded on the teacher's
// errgroup-based concurrent combiner commits in
// bigmachineExecutor.Run — there, independent per-machine commits run
// under one errgroup; here, independent per-backend queue queries do.
func (s *Selector) QueueState(ctx context.Context) (map[Key]QueueState, error) {
	type result struct {
		states map[Key]QueueState
	}
	results := make([]result, 0, len(s.engines))
	seen := map[Engine]bool{}
	var unique []Engine
	for _, e := range s.engines {
		if seen[e] {
			continue
		}
		seen[e] = true
		unique = append(unique, e)
	}
	results = make([]result, len(unique))

	g, gctx := errgroup.WithContext(ctx)
	for i, e := range unique {
		i, e := i, e
		g.Go(func() error {
			states, err := e.QueueState(gctx)
			if err != nil {
				return err
			}
			results[i] = result{states: states}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := map[Key]QueueState{}
	for _, r := range results {
		for k, v := range r.states {
			merged[k] = v
		}
	}
	return merged, nil
}

func (s *Selector) TaskState(ctx context.Context, key Key) (QueueState, error) {
	states, err := s.QueueState(ctx)
	if err != nil {
		return StateUnknown, err
	}
	return states[key], nil
}

func (s *Selector) Kill(ctx context.Context, handle Handle) error {
	for _, e := range s.engines {
		if err := e.Kill(ctx, handle); err != nil {
			return err
		}
	}
	return nil
}

// ResetCache resets every distinct sub-engine's cache.
func (s *Selector) ResetCache() {
	seen := map[Engine]bool{}
	for _, e := range s.engines {
		if seen[e] {
			continue
		}
		seen[e] = true
		e.ResetCache()
	}
}
