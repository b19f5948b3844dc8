package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rwth-i6/sisyphus-go/job"
)

// Slurm dispatches shards via sbatch and polls state via squeue, per
// spec.md §4.E.
type Slurm struct {
	clusterEngineBase
	runner binaryRunner

	mu      sync.Mutex
	handles map[Handle]Key
}

// NewSlurm constructs a Slurm engine, optionally tunneling sbatch/squeue
// through gateway (empty for none).
func NewSlurm(gateway string) *Slurm {
	return &Slurm{runner: binaryRunner{gateway: gateway}, handles: make(map[Handle]Key)}
}

func (e *Slurm) Name() string { return "slurm" }

func (e *Slurm) Submit(ctx context.Context, req SubmitRequest) (Handle, error) {
	args := []string{"--parsable", "-J", fmt.Sprintf("%s.%s.%d", req.JobID, req.Task, req.Shard)}
	args = append(args, slurmRqmtArgs(req.Rqmt)...)
	args = append(args, "--wrap", strings.Join(req.Command, " "))

	out, err := e.runner.run(ctx, "sbatch", args...)
	if err != nil {
		return "", err
	}
	if err := writeSubmitMarkers(req, "sbatch "+strings.Join(args, " ")); err != nil {
		return "", err
	}
	handle := Handle(strings.TrimSpace(strings.SplitN(out, ";", 2)[0]))

	e.mu.Lock()
	e.handles[handle] = Key{JobID: req.JobID, Task: req.Task, Shard: req.Shard}
	e.mu.Unlock()
	return handle, nil
}

// slurmRqmtArgs translates the recognized resource-requirement keys into
// sbatch flags (spec.md §4.C/§4.E).
func slurmRqmtArgs(rqmt job.ResourceRequirements) []string {
	var args []string
	if rqmt.CPU > 0 {
		args = append(args, fmt.Sprintf("--cpus-per-task=%d", int(rqmt.CPU)))
	}
	if rqmt.MemGB > 0 {
		args = append(args, fmt.Sprintf("--mem=%dG", int(rqmt.MemGB)))
	}
	if rqmt.TimeHrs > 0 {
		args = append(args, fmt.Sprintf("--time=%d:00:00", int(rqmt.TimeHrs)))
	}
	if rqmt.GPU > 0 {
		args = append(args, fmt.Sprintf("--gres=gpu:%d", rqmt.GPU))
	}
	for _, v := range rqmtArgs(rqmt) {
		args = append(args, strings.Fields(v)...)
	}
	return args
}

func (e *Slurm) QueueState(ctx context.Context) (map[Key]QueueState, error) {
	return e.cachedQueueState(ctx, e.querySqueue)
}

func (e *Slurm) querySqueue(ctx context.Context) (map[Key]QueueState, error) {
	out, err := e.runner.run(ctx, "squeue", "--noheader", "--format=%i %T")
	if err != nil {
		return nil, err
	}
	rawStates := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		rawStates[fields[0]] = fields[1]
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	states := make(map[Key]QueueState, len(e.handles))
	for handle, key := range e.handles {
		switch rawStates[string(handle)] {
		case "RUNNING":
			states[key] = StateRunning
		case "PENDING", "CONFIGURING":
			states[key] = StateQueued
		default:
			states[key] = StateUnknown
		}
	}
	return states, nil
}

func (e *Slurm) TaskState(ctx context.Context, key Key) (QueueState, error) {
	states, err := e.QueueState(ctx)
	if err != nil {
		return StateUnknown, err
	}
	return states[key], nil
}

func (e *Slurm) Kill(ctx context.Context, handle Handle) error {
	_, err := e.runner.run(ctx, "scancel", string(handle))
	return err
}
