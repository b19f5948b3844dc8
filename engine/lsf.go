package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/rwth-i6/sisyphus-go/job"
)

// LSF dispatches shards via bsub and polls state via bjobs, per
// spec.md §4.E.
type LSF struct {
	clusterEngineBase
	runner binaryRunner

	mu      sync.Mutex
	handles map[Handle]Key
}

// NewLSF constructs an LSF engine, optionally tunneling bsub/bjobs
// through gateway (empty for none).
func NewLSF(gateway string) *LSF {
	return &LSF{runner: binaryRunner{gateway: gateway}, handles: make(map[Handle]Key)}
}

func (e *LSF) Name() string { return "lsf" }

var bsubJobIDPattern = regexp.MustCompile(`Job <(\d+)>`)

func (e *LSF) Submit(ctx context.Context, req SubmitRequest) (Handle, error) {
	args := []string{"-J", fmt.Sprintf("%s.%s.%d", req.JobID, req.Task, req.Shard)}
	args = append(args, lsfRqmtArgs(req.Rqmt)...)
	args = append(args, req.Command...)

	out, err := e.runner.run(ctx, "bsub", args...)
	if err != nil {
		return "", err
	}
	if err := writeSubmitMarkers(req, "bsub "+strings.Join(args, " ")); err != nil {
		return "", err
	}
	m := bsubJobIDPattern.FindStringSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("lsf: could not parse job id from bsub output: %q", out)
	}
	handle := Handle(m[1])

	e.mu.Lock()
	e.handles[handle] = Key{JobID: req.JobID, Task: req.Task, Shard: req.Shard}
	e.mu.Unlock()
	return handle, nil
}

// lsfRqmtArgs translates the recognized resource-requirement keys into
// bsub flags (spec.md §4.C/§4.E).
func lsfRqmtArgs(rqmt job.ResourceRequirements) []string {
	var args []string
	if rqmt.CPU > 0 {
		args = append(args, "-n", fmt.Sprintf("%d", int(rqmt.CPU)))
	}
	if rqmt.MemGB > 0 {
		args = append(args, "-R", fmt.Sprintf("rusage[mem=%d]", int(rqmt.MemGB*1024)))
	}
	if rqmt.TimeHrs > 0 {
		totalMinutes := int(rqmt.TimeHrs * 60)
		args = append(args, "-W", fmt.Sprintf("%d:%02d", totalMinutes/60, totalMinutes%60))
	}
	if rqmt.GPU > 0 {
		args = append(args, "-gpu", fmt.Sprintf("num=%d", rqmt.GPU))
	}
	for _, v := range rqmtArgs(rqmt) {
		args = append(args, strings.Fields(v)...)
	}
	return args
}

func (e *LSF) QueueState(ctx context.Context) (map[Key]QueueState, error) {
	return e.cachedQueueState(ctx, e.queryBjobs)
}

func (e *LSF) queryBjobs(ctx context.Context) (map[Key]QueueState, error) {
	out, err := e.runner.run(ctx, "bjobs", "-noheader", "-o", "id stat")
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
		case "RUN":
			states[key] = StateRunning
		case "PEND":
			states[key] = StateQueued
		default:
			states[key] = StateUnknown
		}
	}
	return states, nil
}

func (e *LSF) TaskState(ctx context.Context, key Key) (QueueState, error) {
	states, err := e.QueueState(ctx)
	if err != nil {
		return StateUnknown, err
	}
	return states[key], nil
}

func (e *LSF) Kill(ctx context.Context, handle Handle) error {
	_, err := e.runner.run(ctx, "bkill", string(handle))
	return err
}
