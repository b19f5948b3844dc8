package housekeeping

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rwth-i6/sisyphus-go/fsref"
	"github.com/rwth-i6/sisyphus-go/graph"
	"github.com/rwth-i6/sisyphus-go/job"
	"github.com/rwth-i6/sisyphus-go/markerfs"
)

type stubJob struct{ class string }

func (s *stubJob) ClassName() string { return s.class }
func (s *stubJob) Tasks() []*job.TaskDef { return nil }
func (s *stubJob) RunTask(ctx context.Context, name string, shard int) error { return nil }

func newGraphWithOutput(t *testing.T, liveID string) *graph.Graph {
	t.Helper()
	g := graph.NewGraph()
	_, id, err := g.Intern("recipe", func() (job.Job, error) { return &stubJob{class: "Train"}, nil })
	if err != nil {
		t.Fatal(err)
	}
	_ = liveID
	g.RegisterOutput(fsref.NewOutputPath(id, "out"))
	return g
}

func TestOrphansExcludesLiveJob(t *testing.T) {
	work := t.TempDir()
	g := newGraphWithOutput(t, "")
	liveID := g.Jobs()[0]

	if err := os.MkdirAll(markerfs.JobDir(work, liveID), 0o755); err != nil {
		t.Fatal(err)
	}
	orphanID := filepath.Join("recipe", "Other.zzz")
	if err := os.MkdirAll(markerfs.JobDir(work, orphanID), 0o755); err != nil {
		t.Fatal(err)
	}

	c := &Cleaner{Graph: g, WorkDir: work, Edges: func(string) []string { return nil }}
	orphans, err := c.Orphans()
	if err != nil {
		t.Fatal(err)
	}
	if len(orphans) != 1 || orphans[0] != orphanID {
		t.Fatalf("got %v, want [%s]", orphans, orphanID)
	}
}

func TestRemoveOrphansRespectsGracePeriod(t *testing.T) {
	work := t.TempDir()
	g := graph.NewGraph()
	orphanID := filepath.Join("recipe", "Other.zzz")
	dir := markerfs.JobDir(work, orphanID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := markerfs.Touch(markerfs.FinishedRunPath(dir)); err != nil {
		t.Fatal(err)
	}

	c := &Cleaner{Graph: g, WorkDir: work, GracePeriod: time.Hour, Edges: func(string) []string { return nil }}
	removed, skipped, err := c.RemoveOrphans()
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 0 || len(skipped) != 1 {
		t.Fatalf("expected the fresh orphan to be skipped, got removed=%v skipped=%v", removed, skipped)
	}

	c.GracePeriod = 0
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(markerfs.FinishedRunPath(dir), old, old); err != nil {
		t.Fatal(err)
	}
	c.GracePeriod = time.Millisecond
	removed, skipped, err = c.RemoveOrphans()
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 1 || len(skipped) != 0 {
		t.Fatalf("expected the aged orphan to be removed, got removed=%v skipped=%v", removed, skipped)
	}
	if _, statErr := os.Stat(dir); !os.IsNotExist(statErr) {
		t.Fatal("expected orphan directory to be deleted")
	}
}

func TestRefreshAliasesCreatesSymlink(t *testing.T) {
	work := t.TempDir()
	aliasRoot := filepath.Join(t.TempDir(), "output")
	g := graph.NewGraph()
	_, id, err := g.Intern("recipe", func() (job.Job, error) { return &stubJob{class: "Train"}, nil })
	if err != nil {
		t.Fatal(err)
	}
	g.Alias(id, "train/best")

	if err := os.MkdirAll(markerfs.JobDir(work, id), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := RefreshAliases(work, aliasRoot, g); err != nil {
		t.Fatal(err)
	}

	link := filepath.Join(aliasRoot, "train/best")
	target, err := os.Readlink(link)
	if err != nil {
		t.Fatalf("expected symlink at %s: %v", link, err)
	}
	if target != markerfs.JobDir(work, id) {
		t.Fatalf("got target %s, want %s", target, markerfs.JobDir(work, id))
	}
}
