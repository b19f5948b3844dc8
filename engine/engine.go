// Package engine implements the pluggable dispatch backends of spec.md
// §4.E: the abstract Engine contract, a local in-process worker pool, the
// SGE/Slurm/LSF cluster engines (each shelling out to its submission and
// query binaries), and the EngineSelector composite that routes by name.
package engine

import (
	"context"
	"fmt"

	"github.com/rwth-i6/sisyphus-go/job"
)

// QueueState is the coarse engine-reported state for one (job, task,
// shard), per spec.md §4.E's queue_state/task_state contract.
type QueueState int

const (
	// StateUnknown means the engine has no record of this shard — it has
	// either not been submitted, or has already left the queue (finished
	// or errored, observed instead via markers).
	StateUnknown QueueState = iota
	// StateQueued means the engine has accepted the submission but has
	// not started running it.
	StateQueued
	// StateRunning means the engine reports the shard executing.
	StateRunning
)

func (s QueueState) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Handle identifies a submitted (job, task, shard) to its engine, e.g. a
// Slurm job id or an SGE task id; opaque outside the engine that issued it.
type Handle string

// SubmitRequest carries everything an engine needs to submit one shard
// (spec.md §4.E submit_task).
type SubmitRequest struct {
	JobDir  string // the job's on-disk directory
	JobID   string // sisyphus-id, for logging
	Task    string
	Shard   int
	Rqmt    job.ResourceRequirements
	Command []string // the worker invocation to run

	// MiniTask routes this submission to a Selector's designated short
	// engine regardless of the caller's requested engine name (spec.md
	// §4.E), carried on the request itself so any Engine — not just a
	// Selector the caller has a concrete reference to — can see it.
	MiniTask bool
}

// Key identifies a (job, task, shard) triple for queue-state maps.
type Key struct {
	JobID string
	Task  string
	Shard int
}

func (k Key) String() string { return fmt.Sprintf("%s/%s.%d", k.JobID, k.Task, k.Shard) }

// Engine is the abstract dispatch backend contract of spec.md §4.E. All
// methods must be safe for concurrent use; implementations that shell out
// to a submission binary serialize as needed internally.
type Engine interface {
	// Name identifies this engine for EngineSelector routing and logging.
	Name() string

	// Submit persists engine_cmd.* and submit_log.* markers for the
	// requested shard and returns an engine-handle. Engine-unreachable
	// failures are fatal (spec.md §4.E).
	Submit(ctx context.Context, req SubmitRequest) (Handle, error)

	// QueueState returns a snapshot of every shard this engine currently
	// tracks. The manager calls this at most once per tick and reuses
	// the result for every query within that tick (spec.md §4.E "Queue
	// state is cached per manager tick").
	QueueState(ctx context.Context) (map[Key]QueueState, error)

	// TaskState returns the state of one shard, typically served from
	// the same cached snapshot QueueState would produce.
	TaskState(ctx context.Context, key Key) (QueueState, error)

	// Kill best-effort cancels a running or queued shard; it may race
	// with the shard's own completion (spec.md §4.E).
	Kill(ctx context.Context, handle Handle) error

	// ResetCache invalidates any cached QueueState result, forcing the
	// next call to re-query the backend.
	ResetCache()
}
