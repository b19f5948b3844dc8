package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rwth-i6/sisyphus-go/job"
)

// SGE dispatches shards to Sun/Oracle Grid Engine via qsub and polls
// state via qstat, per spec.md §4.E.
type SGE struct {
	clusterEngineBase
	runner binaryRunner

	mu      sync.Mutex
	handles map[Handle]Key
}

// NewSGE constructs an SGE engine, optionally tunneling qsub/qstat
// through gateway (empty for none).
func NewSGE(gateway string) *SGE {
	return &SGE{runner: binaryRunner{gateway: gateway}, handles: make(map[Handle]Key)}
}

func (e *SGE) Name() string { return "sge" }

func (e *SGE) Submit(ctx context.Context, req SubmitRequest) (Handle, error) {
	args := []string{"-N", fmt.Sprintf("%s.%s.%d", req.JobID, req.Task, req.Shard), "-b", "y"}
	args = append(args, sgeRqmtArgs(req.Rqmt)...)
	args = append(args, req.Command...)

	out, err := e.runner.run(ctx, "qsub", args...)
	if err != nil {
		return "", err
	}
	if err := writeSubmitMarkers(req, "qsub "+strings.Join(args, " ")); err != nil {
		return "", err
	}
	handle := Handle(parseSGEJobID(out))

	e.mu.Lock()
	e.handles[handle] = Key{JobID: req.JobID, Task: req.Task, Shard: req.Shard}
	e.mu.Unlock()
	return handle, nil
}

// sgeRqmtArgs translates the recognized resource-requirement keys into
// qsub flags (spec.md §4.C/§4.E).
func sgeRqmtArgs(rqmt job.ResourceRequirements) []string {
	var args []string
	if rqmt.CPU > 0 {
		args = append(args, "-pe", "smp", strconv.Itoa(int(rqmt.CPU)))
	}
	if rqmt.MemGB > 0 {
		args = append(args, "-l", fmt.Sprintf("h_vmem=%gG", rqmt.MemGB))
	}
	if rqmt.TimeHrs > 0 {
		args = append(args, "-l", fmt.Sprintf("h_rt=%d:00:00", int(rqmt.TimeHrs)))
	}
	if rqmt.GPU > 0 {
		args = append(args, "-l", fmt.Sprintf("gpu=%d", rqmt.GPU))
	}
	for _, v := range rqmtArgs(rqmt) {
		args = append(args, strings.Fields(v)...)
	}
	return args
}

// parseSGEJobID extracts the id from qsub's
// "Your job 12345 (...) has been submitted" output, or the array id from
// "Your job-array 12345.1-10:1 (...) has been submitted".
func parseSGEJobID(out string) string {
	fields := strings.Fields(out)
	for i, f := range fields {
		if (f == "job" || f == "job-array") && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return strings.TrimSpace(out)
}

func (e *SGE) QueueState(ctx context.Context) (map[Key]QueueState, error) {
	return e.cachedQueueState(ctx, e.queryQstat)
}

func (e *SGE) queryQstat(ctx context.Context) (map[Key]QueueState, error) {
	out, err := e.runner.run(ctx, "qstat")
	if err != nil {
		return nil, err
	}
	running := map[string]bool{}
	queued := map[string]bool{}
	for _, line := range strings.Split(out, "\n")[2:] {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		id, state := fields[0], fields[4]
		switch {
		case strings.Contains(state, "r"):
			running[id] = true
		case strings.Contains(state, "qw"):
			queued[id] = true
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	states := make(map[Key]QueueState, len(e.handles))
	for handle, key := range e.handles {
		switch {
		case running[string(handle)]:
			states[key] = StateRunning
		case queued[string(handle)]:
			states[key] = StateQueued
		default:
			states[key] = StateUnknown
		}
	}
	return states, nil
}

func (e *SGE) TaskState(ctx context.Context, key Key) (QueueState, error) {
	states, err := e.QueueState(ctx)
	if err != nil {
		return StateUnknown, err
	}
	return states[key], nil
}

func (e *SGE) Kill(ctx context.Context, handle Handle) error {
	_, err := e.runner.run(ctx, "qdel", string(handle))
	return err
}
