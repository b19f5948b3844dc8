package exec

import (
	"os"
	"strings"

	"github.com/rwth-i6/sisyphus-go/engine"
	"github.com/rwth-i6/sisyphus-go/job"
	"github.com/rwth-i6/sisyphus-go/markerfs"
)

// ShardStatus is one (task, shard)'s derived state, computed fresh from
// markers and the engine's cached queue snapshot (spec.md §3, §4.C).
type ShardStatus struct {
	Task  string
	Shard int
	State job.State
	Cause job.KillCause // only meaningful when State == job.Error or job.Interrupted
}

// interruptedTag is written into an error.* marker's body by the worker
// when it was killed by something other than its own logic (spec.md §4.G
// step 8), so the manager can tell an interrupted shard apart from one
// that genuinely failed.
const interruptedTag = "INTERRUPTED"

// deriveShardState computes one shard's state by reading its markers,
// consulting queueState only once finished/error markers are absent
// (spec.md §4.C state diagram).
func deriveShardState(jobDir, task string, shard int, key engine.Key, queueState map[engine.Key]engine.QueueState) ShardStatus {
	if markerfs.Exists(markerfs.FinishedPath(jobDir, task, shard)) {
		return ShardStatus{Task: task, Shard: shard, State: job.Finished}
	}
	if body, err := os.ReadFile(markerfs.ErrorPath(jobDir, task, shard)); err == nil {
		cause := classifyCause(string(body))
		if strings.Contains(string(body), interruptedTag) {
			return ShardStatus{Task: task, Shard: shard, State: job.Interrupted, Cause: job.KillInterrupted}
		}
		return ShardStatus{Task: task, Shard: shard, State: job.Error, Cause: cause}
	}
	if !markerfs.Exists(markerfs.SubmitLogPath(jobDir, task, shard)) {
		return ShardStatus{Task: task, Shard: shard, State: job.Runnable}
	}
	switch queueState[key] {
	case engine.StateQueued:
		return ShardStatus{Task: task, Shard: shard, State: job.Queued}
	case engine.StateRunning:
		return ShardStatus{Task: task, Shard: shard, State: job.Running}
	default:
		// The engine has no record of a shard that was submitted and never
		// finished: it was lost (manager restart against engine.Local's
		// empty in-process table, a crashed cluster daemon, ...). Treat it
		// as interrupted so retryEscalate resubmits it (spec.md §13.1
		// "Lost-task revival") instead of leaving it stuck as Queued
		// forever.
		return ShardStatus{Task: task, Shard: shard, State: job.Interrupted, Cause: job.KillNone}
	}
}

// classifyCause maps an error marker's body to a KillCause using the
// engine's exit-code/signal convention (spec.md §4.G step 7): the worker
// writes one of these literal tags into the marker body when it can
// attribute the kill to a specific resource.
func classifyCause(body string) job.KillCause {
	switch {
	case strings.Contains(body, "OOM"):
		return job.KillOOM
	case strings.Contains(body, "TIMEOUT"):
		return job.KillTimeout
	default:
		return job.KillNone
	}
}

// DeriveJobState reduces every shard's state to one overall job state
// (spec.md §4.C), and returns the full per-shard breakdown for the
// dispatch phase to act on (resubmission, retry escalation).
func DeriveJobState(jobDir string, jobID string, tasks []*job.TaskDef, inputsAvailable bool, queueState map[engine.Key]engine.QueueState) (job.State, []ShardStatus) {
	if markerfs.HasHold(jobDir) {
		return job.Hold, nil
	}
	if !inputsAvailable {
		return job.Waiting, nil
	}

	var shards []ShardStatus
	allFinished := true
	anyError := false
	anyInterrupted := false
	anyRunning := false
	anyQueued := false
	anyRunnable := false

	// prereqsFinished gates a task's shards behind every earlier task in
	// Tasks() order (job.go: Tasks "in execution order") — a task only
	// becomes eligible to run once its predecessor has fully finished
	// (spec.md §4.F step 3), so a Runnable shard whose predecessor isn't
	// done yet is reported Waiting instead.
	prereqsFinished := true
	for _, t := range tasks {
		n := t.ShardCount
		if n <= 0 {
			n = 1
		}
		taskFinished := true
		for shard := 0; shard < n; shard++ {
			key := engine.Key{JobID: jobID, Task: t.FunctionName, Shard: shard}
			status := deriveShardState(jobDir, t.FunctionName, shard, key, queueState)
			if !prereqsFinished && status.State == job.Runnable {
				status.State = job.Waiting
			}
			if status.State != job.Finished {
				taskFinished = false
			}
			shards = append(shards, status)
			switch status.State {
			case job.Finished:
			case job.Error:
				anyError = true
				allFinished = false
			case job.Interrupted:
				anyInterrupted = true
				allFinished = false
			case job.Running:
				anyRunning = true
				allFinished = false
			case job.Queued:
				anyQueued = true
				allFinished = false
			case job.Runnable:
				anyRunnable = true
				allFinished = false
			default:
				allFinished = false
			}
		}
		prereqsFinished = prereqsFinished && taskFinished
	}

	switch {
	case allFinished:
		return job.Finished, shards
	case anyError:
		return job.Error, shards
	case anyInterrupted:
		return job.Interrupted, shards
	case anyRunning:
		return job.Running, shards
	case anyQueued:
		return job.Queued, shards
	case anyRunnable:
		return job.Runnable, shards
	default:
		return job.Waiting, shards
	}
}
