// Package housekeeping implements the cleaner/housekeeping duties of
// spec.md §4.H: orphan detection against the live graph, grace-period-
// gated removal, and the symlink refresh that keeps the output tree
// consistent with the current graph every manager tick.
package housekeeping

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/grailbio/base/log"
	"github.com/rwth-i6/sisyphus-go/graph"
	"github.com/rwth-i6/sisyphus-go/markerfs"
)

// Cleaner computes the live job set reachable from a graph's registered
// outputs and removes directories that fall outside it (spec.md §4.H:
// "the set of live job directories is the set reachable from the current
// graph's outputs").
type Cleaner struct {
	Graph    *graph.Graph
	WorkDir  string
	GracePeriod time.Duration // default Settings.WaitPeriodJobFSSync
	Edges    func(jobID string) []string
}

// LiveSet returns the sisyphus-ids reachable from the graph's registered
// outputs, walking predecessor edges via c.Edges.
func (c *Cleaner) LiveSet() map[string]bool {
	live := make(map[string]bool)
	var walk func(id string)
	walk = func(id string) {
		if live[id] {
			return
		}
		live[id] = true
		for _, pred := range c.Edges(id) {
			walk(pred)
		}
	}
	for _, out := range c.Graph.Outputs() {
		walk(out.JobID)
	}
	return live
}

// Orphans lists job directories under WorkDir that are not in LiveSet().
// Every directory two levels below WorkDir ("<module>/<name>") counts as
// a job directory, whatever its name; plain files are skipped.
func (c *Cleaner) Orphans() ([]string, error) {
	live := c.LiveSet()
	entries, err := listJobDirs(c.WorkDir)
	if err != nil {
		return nil, err
	}
	var orphans []string
	for _, id := range entries {
		if !live[id] {
			orphans = append(orphans, id)
		}
	}
	return orphans, nil
}

// RemoveOrphans removes every orphan whose finished.run marker is older
// than GracePeriod, the safety check spec.md §4.H requires before
// deleting anything. Orphans not yet finished, or finished too recently,
// are left alone and reported via the skipped return value.
func (c *Cleaner) RemoveOrphans() (removed []string, skipped []string, err error) {
	orphans, err := c.Orphans()
	if err != nil {
		return nil, nil, err
	}
	grace := c.GracePeriod
	if grace <= 0 {
		grace = 30 * time.Second
	}
	for _, id := range orphans {
		dir := markerfs.JobDir(c.WorkDir, id)
		info, statErr := os.Stat(markerfs.FinishedRunPath(dir))
		if statErr != nil || time.Since(info.ModTime()) < grace {
			skipped = append(skipped, id)
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return removed, skipped, fmt.Errorf("housekeeping: removing orphan %s: %w", id, err)
		}
		removed = append(removed, id)
		log.Printf("housekeeping: removed orphan %s", id)
	}
	return removed, skipped, nil
}

// RemoveSubtree deletes a named job and every descendant reachable from
// it through the *forward* dependency direction (the console's "rerun
// this subtree" primitive, spec.md §4.H). allEdges maps every live job
// id to its direct predecessor ids, the same shape exec.Manager builds
// per tick; RemoveSubtree inverts it locally to find descendants.
func RemoveSubtree(workDir, root string, allEdges map[string][]string) ([]string, error) {
	descendants := graph.Descendants(root, allEdges)
	descendants = append(descendants, root)
	var removed []string
	for _, id := range descendants {
		if err := os.RemoveAll(markerfs.JobDir(workDir, id)); err != nil {
			return removed, fmt.Errorf("housekeeping: removing %s: %w", id, err)
		}
		removed = append(removed, id)
	}
	return removed, nil
}

// RefreshAliases recreates every live job's alias symlinks under
// aliasRoot so they stay consistent with the current graph (spec.md
// §4.H: "output/alias symlinks are recreated every manager tick"). A
// job's own work directory is the symlink target; stale symlinks left
// by a job that lost an alias this tick are not otherwise cleaned up
// here — RemoveOrphans reclaims them once the job itself becomes an
// orphan.
func RefreshAliases(workDir, aliasRoot string, g *graph.Graph) error {
	if err := os.MkdirAll(aliasRoot, 0o755); err != nil {
		return fmt.Errorf("housekeeping: creating alias root: %w", err)
	}
	for id, names := range g.Aliases() {
		target := markerfs.JobDir(workDir, id)
		for _, name := range names {
			link := filepath.Join(aliasRoot, name)
			if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
				return fmt.Errorf("housekeeping: creating alias dir for %s: %w", name, err)
			}
			_ = os.Remove(link)
			if err := os.Symlink(target, link); err != nil {
				return fmt.Errorf("housekeeping: linking alias %s: %w", name, err)
			}
		}
	}
	return nil
}

// listJobDirs walks workDir one module-path level deep and returns the
// sisyphus-ids it finds, mirroring markerfs.JobDir's "<work>/<module>/
// <ClassName>.<hash>" layout.
func listJobDirs(workDir string) ([]string, error) {
	var ids []string
	moduleDirs, err := os.ReadDir(workDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for _, m := range moduleDirs {
		if !m.IsDir() {
			continue
		}
		jobDirs, err := os.ReadDir(filepath.Join(workDir, m.Name()))
		if err != nil {
			continue
		}
		for _, j := range jobDirs {
			if !j.IsDir() {
				continue
			}
			ids = append(ids, filepath.Join(m.Name(), j.Name()))
		}
	}
	return ids, nil
}
