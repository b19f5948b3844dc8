// Package markerfs implements the on-disk marker-file primitives shared by
// the manager, worker, and housekeeping processes (spec.md §3): atomic
// marker creation, existence checks, and the job-directory layout. It is
// the single place that knows the marker-file naming scheme, so the three
// processes that touch it can never disagree about a path.
package markerfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/errors"
)

// JobDir returns the on-disk directory for a job's sisyphus-id rooted at
// work, e.g. "<work>/<module>/<ClassName>.<hash>".
func JobDir(work, sisyphusID string) string {
	return filepath.Join(work, sisyphusID)
}

// shardSuffix renders the ".<task>.<idx>" suffix shared by most markers.
// shard < 0 means an unsharded task, rendered as ".<task>.0" per spec.md's
// single-shard convention.
func shardSuffix(task string, shard int) string {
	if shard < 0 {
		shard = 0
	}
	return fmt.Sprintf(".%s.%d", task, shard)
}

// FinishedPath is the `finished.<task>.<idx>` marker (spec.md §3).
func FinishedPath(jobDir, task string, shard int) string {
	return filepath.Join(jobDir, "finished"+shardSuffix(task, shard))
}

// FinishedRunPath is the whole-job `finished.run` marker.
func FinishedRunPath(jobDir string) string {
	return filepath.Join(jobDir, "finished.run")
}

// SubmitLogPath is the `submit_log.<task>.<idx>` marker.
func SubmitLogPath(jobDir, task string, shard int) string {
	return filepath.Join(jobDir, "submit_log"+shardSuffix(task, shard))
}

// LogPath is the `log.<task>.<idx>` marker (heartbeat target).
func LogPath(jobDir, task string, shard int) string {
	return filepath.Join(jobDir, "log"+shardSuffix(task, shard))
}

// ErrorPath is the `error.<task>.<idx>` marker.
func ErrorPath(jobDir, task string, shard int) string {
	return filepath.Join(jobDir, "error"+shardSuffix(task, shard))
}

// EngineCmdPath is the `engine_cmd.<task>.<idx>` marker recording the
// exact command the engine ran.
func EngineCmdPath(jobDir, task string, shard int) string {
	return filepath.Join(jobDir, "engine_cmd"+shardSuffix(task, shard))
}

// JobSavePath is the serialized job object consumed by the worker.
func JobSavePath(jobDir string) string { return filepath.Join(jobDir, "job.save") }

// InfoPath is the resource-usage/retry-history marker.
func InfoPath(jobDir string) string { return filepath.Join(jobDir, "info") }

// HoldPath is the manual-hold marker.
func HoldPath(jobDir string) string { return filepath.Join(jobDir, "hold") }

// LockPath is the exclusive file lock scoped to (task, shard), acquired by
// the worker via gofrs/flock (spec.md §4.G step 1).
func LockPath(jobDir, task string, shard int) string {
	return filepath.Join(jobDir, ".lock"+shardSuffix(task, shard))
}

// InputDir is the input/ subdirectory created during dispatch-phase
// materialization (spec.md §4.F step 1); nothing places predecessor
// symlinks in it.
func InputDir(jobDir string) string { return filepath.Join(jobDir, "input") }

// OutputDir is where a job's own outputs live.
func OutputDir(jobDir string) string { return filepath.Join(jobDir, "output") }

// Exists reports whether path is present on disk.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteAtomic writes data to path via tempfile-in-same-directory then
// rename, so no reader ever observes a partially-written marker. This is
// the single implementation of the "tempfile + rename" rule spec.md
// repeats for finished/error/info markers and Variable.Set.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.E(errors.Fatal, fmt.Sprintf("create directory for marker %s", path), err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-marker-*")
	if err != nil {
		return errors.E(errors.Fatal, fmt.Sprintf("create temp file for marker %s", path), err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.E(errors.Fatal, fmt.Sprintf("write marker temp file for %s", path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.E(errors.Fatal, fmt.Sprintf("close marker temp file for %s", path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.E(errors.Fatal, fmt.Sprintf("commit marker %s", path), err)
	}
	return nil
}

// Touch atomically creates an empty marker file, for markers whose mere
// presence is the signal (e.g. finished.*, hold).
func Touch(path string) error { return WriteAtomic(path, nil) }

// ClearRetryMarkers removes a shard's error.* and log.* markers before it
// is resubmitted, so a later tick's marker scan doesn't keep reporting the
// previous attempt's failure once the new attempt is in flight (spec.md
// §8 scenario 3: "next tick resubmits... info records both attempts").
// Absence of either marker is not an error.
func ClearRetryMarkers(jobDir, task string, shard int) error {
	if err := os.Remove(ErrorPath(jobDir, task, shard)); err != nil && !os.IsNotExist(err) {
		return errors.E(errors.Fatal, fmt.Sprintf("clear error marker for %s.%d", task, shard), err)
	}
	if err := os.Remove(LogPath(jobDir, task, shard)); err != nil && !os.IsNotExist(err) {
		return errors.E(errors.Fatal, fmt.Sprintf("clear log marker for %s.%d", task, shard), err)
	}
	return nil
}

// FinishedShards scans jobDir for `finished.<task>.*` markers and returns
// the set of completed shard indices for task.
func FinishedShards(jobDir, task string) (map[int]bool, error) {
	entries, err := os.ReadDir(jobDir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[int]bool{}, nil
		}
		return nil, errors.E(errors.NotExist, fmt.Sprintf("list job directory %s", jobDir), err)
	}
	prefix := "finished." + task + "."
	shards := map[int]bool{}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		idx := strings.TrimPrefix(name, prefix)
		var shard int
		if _, err := fmt.Sscanf(idx, "%d", &shard); err == nil {
			shards[shard] = true
		}
	}
	return shards, nil
}

// HasHold reports whether jobDir carries a manual hold marker.
func HasHold(jobDir string) bool { return Exists(HoldPath(jobDir)) }
