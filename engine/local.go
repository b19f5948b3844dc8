package engine

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/google/uuid"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/rwth-i6/sisyphus-go/job"
	"github.com/rwth-i6/sisyphus-go/markerfs"
)

// Capacity is the fixed (cpu, gpu, mem) resource pool a Local engine
// admits shards against (spec.md §4.E "Local engine").
type Capacity struct {
	CPU   float64
	GPU   int
	MemGB float64
}

// Local is an in-process worker pool: admission is first-fit by declared
// requirement against a fixed capacity, and each admitted shard starts
// the worker binary as a subprocess of the manager (spec.md §4.E).
type Local struct {
	WorkerBinary string
	Capacity     Capacity

	mu       sync.Mutex
	inUse    Capacity
	handles  map[Handle]*runningShard
	states   map[Key]QueueState
}

type runningShard struct {
	key  Key
	rqmt job.ResourceRequirements
	cmd  *exec.Cmd
	done chan struct{}
}

// NewLocal constructs a Local engine that dispatches workerBinary with
// capacity as its admission budget.
func NewLocal(workerBinary string, capacity Capacity) *Local {
	return &Local{
		WorkerBinary: workerBinary,
		Capacity:     capacity,
		handles:      make(map[Handle]*runningShard),
		states:       make(map[Key]QueueState),
	}
}

func (l *Local) Name() string { return "local" }

// fits reports whether rqmt can be admitted given capacity already in use.
// Grounded on the first-fit admission loop of the teacher's
// machineManager.Offer, generalized from "offer a whole machine" to
// "admit one shard against a shared (cpu, gpu, mem) budget."
func (l *Local) fits(rqmt job.ResourceRequirements) bool {
	return l.inUse.CPU+rqmt.CPU <= l.Capacity.CPU &&
		l.inUse.GPU+rqmt.GPU <= l.Capacity.GPU &&
		l.inUse.MemGB+rqmt.MemGB <= l.Capacity.MemGB
}

func (l *Local) Submit(ctx context.Context, req SubmitRequest) (Handle, error) {
	l.mu.Lock()
	if !l.fits(req.Rqmt) {
		l.mu.Unlock()
		return "", errors.E(errors.ResourcesExhausted, fmt.Sprintf("local engine: insufficient capacity for %s.%d", req.Task, req.Shard))
	}
	l.inUse.CPU += req.Rqmt.CPU
	l.inUse.GPU += req.Rqmt.GPU
	l.inUse.MemGB += req.Rqmt.MemGB
	l.mu.Unlock()

	handle := Handle(uuid.NewString())
	key := Key{JobID: req.JobID, Task: req.Task, Shard: req.Shard}

	if err := markerfs.WriteAtomic(markerfs.EngineCmdPath(req.JobDir, req.Task, req.Shard), []byte(fmt.Sprintf("%v\n", req.Command))); err != nil {
		return "", err
	}
	if err := markerfs.Touch(markerfs.SubmitLogPath(req.JobDir, req.Task, req.Shard)); err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, l.WorkerBinary, append([]string{"worker"}, req.Command...)...)
	shard := &runningShard{key: key, rqmt: req.Rqmt, cmd: cmd, done: make(chan struct{})}

	l.mu.Lock()
	l.handles[handle] = shard
	l.states[key] = StateQueued
	l.mu.Unlock()

	if err := cmd.Start(); err != nil {
		l.release(handle)
		return "", errors.E(errors.Unavailable, "local engine: start worker subprocess", err)
	}

	l.mu.Lock()
	l.states[key] = StateRunning
	l.mu.Unlock()

	go func() {
		if err := cmd.Wait(); err != nil {
			log.Printf("local engine: worker %s exited: %v", key, err)
		}
		close(shard.done)
		l.release(handle)
	}()

	return handle, nil
}

func (l *Local) release(handle Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	shard, ok := l.handles[handle]
	if !ok {
		return
	}
	l.inUse.CPU -= shard.rqmt.CPU
	l.inUse.GPU -= shard.rqmt.GPU
	l.inUse.MemGB -= shard.rqmt.MemGB
	delete(l.handles, handle)
	delete(l.states, shard.key)
}

func (l *Local) QueueState(ctx context.Context) (map[Key]QueueState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[Key]QueueState, len(l.states))
	for k, v := range l.states {
		out[k] = v
	}
	return out, nil
}

func (l *Local) TaskState(ctx context.Context, key Key) (QueueState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.states[key]; ok {
		return s, nil
	}
	return StateUnknown, nil
}

func (l *Local) Kill(ctx context.Context, handle Handle) error {
	l.mu.Lock()
	shard, ok := l.handles[handle]
	l.mu.Unlock()
	if !ok {
		return nil
	}
	if shard.cmd.Process == nil {
		return nil
	}
	return shard.cmd.Process.Kill()
}

// ResetCache is a no-op: Local's queue state is the live process table,
// not a query result worth caching across ticks.
func (l *Local) ResetCache() {}
