package engine

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/retry"
	"github.com/rwth-i6/sisyphus-go/job"
	"github.com/rwth-i6/sisyphus-go/markerfs"
)

// clusterRetryPolicy backs off cluster-binary invocations the same way
// the teacher backs off task dispatch: retryPolicy =
// retry.Backoff(time.Second, 5*time.Second, 1.5) in
// psampaz-bigslice/exec/bigmachine.go.
var clusterRetryPolicy = retry.Backoff(time.Second, 5*time.Second, 1.5)

// binaryRunner shells out to a backend's CLI with retry/backoff, shared by
// sge.go/slurm.go/lsf.go (spec.md §4.E: cluster engines "call out to
// submission binaries" and "parse queue state via backend query
// commands" — never a REST API).
type binaryRunner struct {
	gateway string // optional SSH gateway host to tunnel through
}

func (r *binaryRunner) command(ctx context.Context, name string, args ...string) *exec.Cmd {
	if r.gateway == "" {
		return exec.CommandContext(ctx, name, args...)
	}
	sshArgs := append([]string{r.gateway, name}, args...)
	return exec.CommandContext(ctx, "ssh", sshArgs...)
}

// run executes name(args), retrying a nonzero exit with backoff for at
// most maxAttempts runs in all, and returns stdout. A binary that cannot
// be started is reported as errors.Unavailable at once; a nonzero exit on
// the last attempt, or ctx ending during backoff, is errors.Fatal.
func (r *binaryRunner) run(ctx context.Context, name string, args ...string) (string, error) {
	const maxAttempts = 5
	var (
		out     bytes.Buffer
		stderr  bytes.Buffer
		lastErr error
	)
	for retries := 0; ; retries++ {
		out.Reset()
		stderr.Reset()
		cmd := r.command(ctx, name, args...)
		cmd.Stdout = &out
		cmd.Stderr = &stderr
		lastErr = cmd.Run()
		if lastErr == nil {
			return out.String(), nil
		}
		if _, ok := lastErr.(*exec.ExitError); !ok {
			// Binary missing, context canceled, etc: not retryable.
			return "", errors.E(errors.Unavailable, fmt.Sprintf("exec %s", name), lastErr)
		}
		if retries+1 >= maxAttempts {
			break
		}
		if werr := retry.Wait(ctx, clusterRetryPolicy, retries); werr != nil {
			break
		}
	}
	return "", errors.E(errors.Fatal, fmt.Sprintf("exec %s: %s", name, stderr.String()), lastErr)
}

// clusterEngineBase shares the queue-state cache (spec.md §4.E: "Queue
// state is cached per manager tick") across all three cluster engines.
type clusterEngineBase struct {
	mu      sync.Mutex
	cached  map[Key]QueueState
	haveCache bool
}

func (b *clusterEngineBase) cachedQueueState(ctx context.Context, refresh func(ctx context.Context) (map[Key]QueueState, error)) (map[Key]QueueState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.haveCache {
		return b.cached, nil
	}
	states, err := refresh(ctx)
	if err != nil {
		return nil, err
	}
	b.cached = states
	b.haveCache = true
	return states, nil
}

func (b *clusterEngineBase) ResetCache() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.haveCache = false
	b.cached = nil
}

// writeSubmitMarkers persists engine_cmd.* and submit_log.* for req,
// shared by every cluster engine's Submit implementation.
func writeSubmitMarkers(req SubmitRequest, renderedCmd string) error {
	if err := markerfs.WriteAtomic(markerfs.EngineCmdPath(req.JobDir, req.Task, req.Shard), []byte(renderedCmd+"\n")); err != nil {
		return err
	}
	return markerfs.Touch(markerfs.SubmitLogPath(req.JobDir, req.Task, req.Shard))
}

// rqmtArgs returns a copy of rqmt.EngineArgs, the opaque engine-specific
// flag strings; each backend appends their whitespace-split values to its
// submission command.
func rqmtArgs(rqmt job.ResourceRequirements) map[string]string {
	args := map[string]string{}
	for k, v := range rqmt.EngineArgs {
		args[k] = v
	}
	return args
}
