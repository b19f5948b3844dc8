// Package fsref implements the two filesystem-reference handle types from
// spec.md §4.B: Path, a reference to a location under a job's
// directory, and Variable, a reference to an atomically-written scalar
// file. Both hash via their fingerprint rather than their contents, so that
// two jobs depending on "the same output location" collapse to the same
// sisyphus-id even if the bytes at that location later change.
package fsref

import (
	"fmt"
	"os"
	"path/filepath"
)

// Path is a reference to a path rooted at a job's directory, or to
// an absolute filesystem location (an "input" path with no owning job).
// It implements hash.Fingerprinter so that two Paths naming the same
// location always hash equal, independent of whatever bytes currently sit
// there (spec.md §4.A, §4.B).
type Path struct {
	// JobID is the owning job's sisyphus-id, or "" for a path with no
	// owning job (an external input file).
	JobID string
	// Rel is the path relative to the owning job's directory, or
	// an absolute path when JobID == "".
	Rel string
}

// NewInputPath wraps an absolute filesystem path that is not the output of
// any job — the leaves of the dependency graph (spec.md §3).
func NewInputPath(abs string) Path {
	return Path{Rel: abs}
}

// NewOutputPath references a path relative to the owning job's
// directory.
func NewOutputPath(jobID, rel string) Path {
	return Path{JobID: jobID, Rel: rel}
}

// Resolve returns the absolute filesystem location this Path names, given
// the function that maps a job id to its job directory.
func (p Path) Resolve(jobDir func(jobID string) string) string {
	if p.JobID == "" {
		return p.Rel
	}
	return filepath.Join(jobDir(p.JobID), p.Rel)
}

// Exists reports whether the resolved location is present on disk,
// following symlinks (spec.md §4.B "exists").
func (p Path) Exists(jobDir func(string) string) bool {
	_, err := os.Stat(p.Resolve(jobDir))
	return err == nil
}

// Available reports whether the path is usable as a job input: it exists,
// and — when it names another job's output — that job has finished
// (spec.md §3's guard-path semantics). isFinished is nil for input paths.
func (p Path) Available(jobDir func(string) string, isFinished func(jobID string) bool) bool {
	if p.JobID != "" && isFinished != nil && !isFinished(p.JobID) {
		return false
	}
	return p.Exists(jobDir)
}

// Fingerprint implements hash.Fingerprinter: the tuple (JobID, Rel),
// never the bytes at the resolved location (spec.md §4.A).
func (p Path) Fingerprint() []byte {
	return []byte(fmt.Sprintf("path\x00%s\x00%s", p.JobID, p.Rel))
}

func (p Path) String() string {
	if p.JobID == "" {
		return p.Rel
	}
	return fmt.Sprintf("%s/%s", p.JobID, p.Rel)
}
