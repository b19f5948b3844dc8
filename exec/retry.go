package exec

import (
	"context"
	"fmt"

	"github.com/rwth-i6/sisyphus-go/engine"
	"github.com/rwth-i6/sisyphus-go/job"
	"github.com/rwth-i6/sisyphus-go/markerfs"
)

// retryEscalate implements spec.md §4.C's retry-escalation rule: an OOM
// or time-kill resubmits with mem/time scaled by the job's escalation
// factor, up to Settings.MaxEscalationAttempts; other errors surface
// through the status line without auto-retry.
func (m *Manager) retryEscalate(ctx context.Context, id string, j job.Job, jobDir string, shards []ShardStatus, state job.State) error {
	info, err := job.ReadInfo(markerfs.InfoPath(jobDir))
	if err != nil {
		return err
	}

	factor := m.Session.Settings.DefaultEscalationFactor
	maxAttempts := m.Session.Settings.MaxEscalationAttempts
	if esc, ok := j.(job.Escalator); ok {
		factor = esc.EscalationFactor()
		maxAttempts = esc.MaxEscalationAttempts()
	}

	for _, s := range shards {
		if s.State != job.Error && s.State != job.Interrupted {
			continue
		}
		attempts := info.AttemptCount(s.Task, s.Shard)
		if s.State == job.Error && s.Cause == job.KillNone {
			m.Session.Status.Printf("%s: %s.%d failed (not auto-retried)", id, s.Task, s.Shard)
			continue
		}
		if attempts >= maxAttempts {
			m.Session.Status.Printf("%s: %s.%d exhausted retry budget (%d attempts)", id, s.Task, s.Shard, attempts)
			continue
		}

		var rqmt job.ResourceRequirements
		for _, t := range j.Tasks() {
			if t.FunctionName == s.Task {
				rqmt = t.Requirements
				break
			}
		}
		escalated := rqmt
		if s.State == job.Error {
			escalated = job.Escalate(rqmt, s.Cause, factor)
		}

		if err := markerfs.ClearRetryMarkers(jobDir, s.Task, s.Shard); err != nil {
			return err
		}

		req := engine.SubmitRequest{
			JobDir:  jobDir,
			JobID:   id,
			Task:    s.Task,
			Shard:   s.Shard,
			Rqmt:    escalated,
			Command: []string{jobDir, s.Task, fmt.Sprintf("%d", s.Shard)},
		}
		if _, err := m.Session.Engine.Submit(ctx, req); err != nil {
			return err
		}
		info.Attempts = append(info.Attempts, job.AttemptRecord{
			Task: s.Task, Shard: s.Shard, Attempt: attempts + 1,
			Rqmt: escalated, Outcome: "retry", Cause: s.Cause.String(),
		})
	}
	return job.WriteInfo(markerfs.InfoPath(jobDir), info)
}
