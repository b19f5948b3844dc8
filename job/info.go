package job

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/grailbio/base/errors"
)

// AttemptRecord is one row of a task's resource-usage history, kept in the
// job's `info` marker (spec.md §3, supplemented per SPEC_FULL.md §13.4
// against ClusterCockpit's job/attempt accounting shape).
type AttemptRecord struct {
	Task        string              `json:"task"`
	Shard       int                 `json:"shard"`
	Attempt     int                 `json:"attempt"`
	Rqmt        ResourceRequirements `json:"rqmt"`
	MaxRSSGB    float64             `json:"max_rss_gb"`
	CPUSeconds  float64             `json:"cpu_seconds"`
	WallSeconds float64             `json:"wall_seconds"`
	Outcome     string              `json:"outcome"` // "finished", "error", "interrupted" (worker); "retry" (manager resubmission); "" while the attempt runs
	Cause       string              `json:"cause,omitempty"`
}

// Info is the full decoded content of a job's `info` marker: the complete
// attempt history plus the last-seen heartbeat timestamp, used by the
// manager's retry-escalation bookkeeping (spec.md §4.C) and by the
// console's job inspection.
type Info struct {
	Attempts       []AttemptRecord `json:"attempts"`
	LastSeenUnix   int64           `json:"last_seen_unix"`
}

// ReadInfo loads the `info` marker at path, returning a zero-value Info
// if the marker does not yet exist.
func ReadInfo(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Info{}, nil
	}
	if err != nil {
		return Info{}, errors.E(errors.NotExist, "read info marker", err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, errors.E(errors.Invalid, "decode info marker", err)
	}
	return info, nil
}

// WriteInfo atomically rewrites the `info` marker at path via
// tempfile+rename, matching the marker-write idiom used throughout
// spec.md §4.G.
func WriteInfo(path string, info Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return errors.E(errors.Invalid, "encode info marker", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-info-*")
	if err != nil {
		return errors.E(errors.Fatal, "create info temp file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.E(errors.Fatal, "write info temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.E(errors.Fatal, "close info temp file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.E(errors.Fatal, "commit info marker", err)
	}
	return nil
}

// AttemptCount returns how many attempts have been recorded for the given
// task/shard, used to cap escalation at Settings.MaxEscalationAttempts.
func (info Info) AttemptCount(task string, shard int) int {
	n := 0
	for _, a := range info.Attempts {
		if a.Task == task && a.Shard == shard {
			n++
		}
	}
	return n
}
