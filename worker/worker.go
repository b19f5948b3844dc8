// Package worker implements the `worker <job_dir> <task> [shard]`
// protocol (spec.md §4.G): the per-task executor invoked on the target
// machine by an engine. It loads the serialized job, runs the named
// task function, and reports outcome entirely through markerfs files —
// the worker and manager never share memory or talk RPC.
package worker

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/gofrs/flock"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/rwth-i6/sisyphus-go/job"
	"github.com/rwth-i6/sisyphus-go/markerfs"
)

// ErrBusy is returned when the exclusive (task, shard) lock is already
// held, mapped by the caller to exit code 3 (spec.md §6 exit codes).
var ErrBusy = fmt.Errorf("worker: lock already held")

// HeartbeatInterval is how often Run samples resource usage into info
// while the task function is executing (spec.md §4.G step 5).
var HeartbeatInterval = 30 * time.Second

// Run executes one (task, shard) of the job serialized at jobDir/job.save
// and reports outcome via markerfs markers, implementing spec.md §4.G's
// eight-step contract.
func Run(ctx context.Context, jobDir, task string, shard int) error {
	lock := flock.New(markerfs.LockPath(jobDir, task, shard))
	locked, err := lock.TryLock()
	if err != nil {
		return errors.E(errors.Unavailable, "worker: acquiring lock", err)
	}
	if !locked {
		return ErrBusy
	}
	defer lock.Unlock()

	if err := writeStartLog(jobDir, task, shard); err != nil {
		return errors.E(errors.Fatal, "worker: writing log marker", err)
	}

	j, err := job.Load(jobDir)
	if err != nil {
		return errors.E(errors.Fatal, "worker: loading job.save", err)
	}

	fn := resolveFunction(j, jobDir, task, shard)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopHeartbeat := startHeartbeat(ctx, jobDir, task, shard)

	runErr := runTask(ctx, j, fn, shard)
	stopHeartbeat()

	if runErr == nil {
		finalizeAttempt(jobDir, task, shard, "finished")
		return markerfs.Touch(markerfs.FinishedPath(jobDir, task, shard))
	}

	if ctx.Err() != nil {
		finalizeAttempt(jobDir, task, shard, "interrupted")
		if err := writeErrorMarker(jobDir, task, shard, "INTERRUPTED: "+runErr.Error()); err != nil {
			return err
		}
		return runErr
	}
	finalizeAttempt(jobDir, task, shard, "error")
	if err := writeErrorMarker(jobDir, task, shard, classify(runErr)); err != nil {
		return err
	}
	return runErr
}

// resolveFunction picks FunctionName on a task's first attempt, or, when
// the task is marked Continuable and a prior attempt already recorded
// progress via info, ResumeFunctionName instead (spec.md §4.G step 4:
// the resume function runs "instead of its primary function on a retry
// after partial progress was recorded via info" — never on a first run).
func resolveFunction(j job.Job, jobDir, task string, shard int) string {
	for _, t := range j.Tasks() {
		if t.FunctionName != task && t.ResumeFunctionName != task {
			continue
		}
		if t.Continuable && t.ResumeFunctionName != "" {
			info, err := job.ReadInfo(markerfs.InfoPath(jobDir))
			if err == nil && info.AttemptCount(t.FunctionName, shard) > 0 {
				return t.ResumeFunctionName
			}
		}
		return t.FunctionName
	}
	return task
}

// runTask invokes the job's task function, converting a panic into an
// error the same way bigmachine.go's worker.Run recovers a panicking
// task instead of crashing the process.
func runTask(ctx context.Context, j job.Job, fn string, shard int) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("panic in task %s: %v\n%s", fn, e, debug.Stack())
		}
	}()
	return j.RunTask(ctx, fn, shard)
}

func writeStartLog(jobDir, task string, shard int) error {
	host, _ := os.Hostname()
	body := fmt.Sprintf("start=%s host=%s pid=%d\n", time.Now().UTC().Format(time.RFC3339), host, os.Getpid())
	return markerfs.WriteAtomic(markerfs.LogPath(jobDir, task, shard), []byte(body))
}

// writeErrorMarker serializes body into error.<task>.<shard> (spec.md
// §4.G step 7/8). body already carries any OOM/TIMEOUT/INTERRUPTED tag
// the caller wants exec/derive.go's classifyCause to recognize.
func writeErrorMarker(jobDir, task string, shard int, body string) error {
	log.Printf("worker: %s.%d failed: %s", task, shard, body)
	return markerfs.WriteAtomic(markerfs.ErrorPath(jobDir, task, shard), []byte(body+"\n"))
}

// classify appends an OOM/TIMEOUT tag when the underlying error looks
// like a resource kill, following the same exit-code/signal convention
// documented in spec.md §4.G step 7; otherwise the raw error text is
// recorded untagged, which exec/derive.go's classifyCause maps to
// job.KillNone (not auto-retried).
func classify(err error) string {
	msg := err.Error()
	switch {
	case isOOM(err):
		return "OOM: " + msg
	case isTimeout(err):
		return "TIMEOUT: " + msg
	default:
		return msg
	}
}
