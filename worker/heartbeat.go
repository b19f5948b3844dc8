package worker

import (
	"context"
	"syscall"
	"time"

	"github.com/grailbio/base/log"
	"github.com/rwth-i6/sisyphus-go/job"
	"github.com/rwth-i6/sisyphus-go/markerfs"
)

// startHeartbeat samples this process's resource usage on
// HeartbeatInterval and writes it into the job's info marker (spec.md
// §4.G step 5). It returns a stop function that halts sampling and
// records one final snapshot before returning.
func startHeartbeat(ctx context.Context, jobDir, task string, shard int) func() {
	started := time.Now()
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(HeartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-t.C:
				sample(jobDir, task, shard, started)
			}
		}
	}()
	return func() {
		close(stop)
		<-done
		sample(jobDir, task, shard, started)
	}
}

// sample records one usage snapshot into the attempt record for
// (task, shard), creating it if this is the first sample of a fresh
// attempt.
func sample(jobDir, task string, shard int, started time.Time) {
	path := markerfs.InfoPath(jobDir)
	info, err := job.ReadInfo(path)
	if err != nil {
		log.Printf("worker: reading info for heartbeat: %v", err)
		return
	}

	var usage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &usage); err != nil {
		log.Printf("worker: getrusage: %v", err)
	}
	maxRSSGB := float64(usage.Maxrss) / (1024 * 1024)
	cpuSeconds := float64(usage.Utime.Sec+usage.Stime.Sec) + float64(usage.Utime.Usec+usage.Stime.Usec)/1e6
	wallSeconds := time.Since(started).Seconds()

	idx := -1
	for i, a := range info.Attempts {
		if a.Task == task && a.Shard == shard && a.Outcome == "" {
			idx = i
			break
		}
	}
	rec := job.AttemptRecord{
		Task: task, Shard: shard,
		Attempt:     info.AttemptCount(task, shard) + 1,
		MaxRSSGB:    maxRSSGB,
		CPUSeconds:  cpuSeconds,
		WallSeconds: wallSeconds,
	}
	if idx >= 0 {
		rec.Attempt = info.Attempts[idx].Attempt
		info.Attempts[idx] = rec
	} else {
		info.Attempts = append(info.Attempts, rec)
	}
	if err := job.WriteInfo(path, info); err != nil {
		log.Printf("worker: writing info for heartbeat: %v", err)
	}
}

// finalizeAttempt stamps the still-open attempt record for (task, shard)
// with outcome once Run has decided how the task ended, so the next
// sample() on a later resubmission starts a fresh record instead of
// overwriting this attempt's final metrics in place.
func finalizeAttempt(jobDir, task string, shard int, outcome string) {
	path := markerfs.InfoPath(jobDir)
	info, err := job.ReadInfo(path)
	if err != nil {
		log.Printf("worker: reading info to finalize attempt: %v", err)
		return
	}
	for i, a := range info.Attempts {
		if a.Task == task && a.Shard == shard && a.Outcome == "" {
			info.Attempts[i].Outcome = outcome
		}
	}
	if err := job.WriteInfo(path, info); err != nil {
		log.Printf("worker: writing info to finalize attempt: %v", err)
	}
}
