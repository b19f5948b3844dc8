package exec

import (
	"context"
	"sync"

	"github.com/grailbio/base/sync/ctxsync"
)

// waitRegistry lets WaitFinished block a caller until a specific job
// reaches job.Finished, signaled once per tick by Tick after the
// graph-update phase and before the dispatch phase, instead of having the caller re-poll the filesystem itself. Grounded on
// exec/bigmachine.go's worker.cond (a ctxsync.Cond guarding a combiner
// state change) — here the guarded state is "has this job finished" and
// the broadcaster is the manager's own tick loop rather than an RPC
// handler.
type waitRegistry struct {
	mu       sync.Mutex
	cond     *ctxsync.Cond
	finished map[string]bool
}

func newWaitRegistry() *waitRegistry {
	w := &waitRegistry{finished: make(map[string]bool)}
	w.cond = ctxsync.NewCond(&w.mu)
	return w
}

// broadcast marks id finished and wakes every waiter.
func (w *waitRegistry) broadcast(id string) {
	w.mu.Lock()
	w.finished[id] = true
	w.mu.Unlock()
	w.cond.Broadcast()
}

// wait blocks until id is marked finished or ctx is done.
func (w *waitRegistry) wait(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for !w.finished[id] {
		if err := w.cond.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// WaitFinished blocks until jobID reaches job.Finished, or ctx is done.
// It serves an embedding caller that runs the manager's loop and waits
// for one target instead of re-deriving job state itself; the CLI does
// not call it.
func (m *Manager) WaitFinished(ctx context.Context, jobID string) error {
	return m.waiters.wait(ctx, jobID)
}
