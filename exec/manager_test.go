package exec

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

func TestMaterializeCreatesLayoutAndSavesJobOnce(t *testing.T) {
	eng := &recordingEngine{}
	m := newTestManager(eng)
	jobDir := t.TempDir()

	j := &retryStubJob{TaskDefs: []*job.TaskDef{{FunctionName: "train"}}}
	job.Register(j)

	if err := m.materialize(context.Background(), "job1", j, jobDir); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if !markerfs.Exists(markerfs.InputDir(jobDir)) {
		t.Error("materialize should create input/")
	}
	if !markerfs.Exists(markerfs.OutputDir(jobDir)) {
		t.Error("materialize should create output/")
	}
	if !markerfs.Exists(markerfs.JobSavePath(jobDir)) {
		t.Error("materialize should write job.save")
	}

	saved, err := job.Load(jobDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved.ClassName() != "Retry" {
		t.Fatalf("loaded job ClassName = %q, want Retry", saved.ClassName())
	}
}

func TestMaterializeDoesNotOverwriteExistingJobSave(t *testing.T) {
	eng := &recordingEngine{}
	m := newTestManager(eng)
	jobDir := t.TempDir()

	j1 := &retryStubJob{TaskDefs: []*job.TaskDef{{FunctionName: "a"}}}
	j2 := &retryStubJob{TaskDefs: []*job.TaskDef{{FunctionName: "b"}}}
	job.Register(j1)
	job.Register(j2)

	if err := m.materialize(context.Background(), "job1", j1, jobDir); err != nil {
		t.Fatal(err)
	}
	if err := m.materialize(context.Background(), "job1", j2, jobDir); err != nil {
		t.Fatal(err)
	}

	saved, err := job.Load(jobDir)
	if err != nil {
		t.Fatal(err)
	}
	sj, ok := saved.(*retryStubJob)
	if !ok || len(sj.TaskDefs) != 1 || sj.TaskDefs[0].FunctionName != "a" {
		t.Fatalf("second materialize call overwrote job.save: %+v", saved)
	}
}

func TestSubmitNextSubmitsOnlyRunnableShards(t *testing.T) {
	eng := &recordingEngine{}
	m := newTestManager(eng)
	jobDir := t.TempDir()

	j := &retryStubJob{TaskDefs: []*job.TaskDef{
		{FunctionName: "a", Requirements: job.ResourceRequirements{CPU: 1}},
		{FunctionName: "b", MiniTask: true},
	}}
	shards := []ShardStatus{
		{Task: "a", Shard: 0, State: job.Finished},
		{Task: "b", Shard: 0, State: job.Runnable},
	}

	if err := m.submitNext(context.Background(), "job1", j, jobDir, shards); err != nil {
		t.Fatalf("submitNext: %v", err)
	}
	if len(eng.submitted) != 1 {
		t.Fatalf("expected exactly 1 submission, got %d", len(eng.submitted))
	}
	req := eng.submitted[0]
	if req.Task != "b" {
		t.Fatalf("submitted task = %q, want b", req.Task)
	}
	if !req.MiniTask {
		t.Error("task b is declared MiniTask=true; the submitted request should carry that through")
	}
}

func TestTickRemovesOrphansWhenJobAutoCleanupEnabled(t *testing.T) {
	work := t.TempDir()
	eng := &recordingEngine{}
	m := newTestManager(eng)
	m.Session.Settings.WorkDir = work
	m.Session.Settings.JobAutoCleanup = true
	m.Session.Settings.ShowJobTargets = false

	g := graph.NewGraph()
	job.Register(&retryStubJob{})
	liveJob, liveID, err := g.Intern("recipe", func() (job.Job, error) {
		return &retryStubJob{TaskDefs: []*job.TaskDef{{FunctionName: "train"}}}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	g.RegisterOutput(fsref.NewOutputPath(liveID, "out"))
	m.Session.Graph = g
	deps := m.Deps.(*DefaultDependencyResolver)
	deps.Graph = g

	if err := os.MkdirAll(markerfs.JobDir(work, liveID), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := job.Save(markerfs.JobDir(work, liveID), liveJob); err != nil {
		t.Fatal(err)
	}

	orphanID := filepath.Join("recipe", "Other.zzz")
	orphanDir := markerfs.JobDir(work, orphanID)
	if err := os.MkdirAll(orphanDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := markerfs.Touch(markerfs.FinishedRunPath(orphanDir)); err != nil {
		t.Fatal(err)
	}
	old := fakeOldTime(t, markerfs.FinishedRunPath(orphanDir))
	defer old()

	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if _, err := os.Stat(orphanDir); !os.IsNotExist(err) {
		t.Fatalf("orphan directory should have been removed by Tick, stat err = %v", err)
	}
	if _, err := os.Stat(markerfs.JobDir(work, liveID)); err != nil {
		t.Fatalf("live job directory should survive: %v", err)
	}
}

func TestTickDryRunDoesNotSubmitOrRemoveOrphans(t *testing.T) {
	work := t.TempDir()
	eng := &recordingEngine{}
	m := newTestManager(eng)
	m.Session.Settings.WorkDir = work
	m.Session.Settings.JobAutoCleanup = true
	m.DryRun = true

	g := graph.NewGraph()
	job.Register(&retryStubJob{})
	_, liveID, err := g.Intern("recipe", func() (job.Job, error) {
		return &retryStubJob{TaskDefs: []*job.TaskDef{{FunctionName: "train"}}}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	g.RegisterOutput(fsref.NewOutputPath(liveID, "out"))
	m.Session.Graph = g
	deps := m.Deps.(*DefaultDependencyResolver)
	deps.Graph = g

	orphanID := filepath.Join("recipe", "Other.zzz")
	orphanDir := markerfs.JobDir(work, orphanID)
	if err := os.MkdirAll(orphanDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := markerfs.Touch(markerfs.FinishedRunPath(orphanDir)); err != nil {
		t.Fatal(err)
	}
	old := fakeOldTime(t, markerfs.FinishedRunPath(orphanDir))
	defer old()

	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(eng.submitted) != 0 {
		t.Fatalf("dry-run tick should not submit anything, got %d", len(eng.submitted))
	}
	if _, err := os.Stat(orphanDir); err != nil {
		t.Fatal("dry-run tick should not remove orphan directories")
	}
}

// fakeOldTime backdates path's mtime far enough to clear any reasonable
// GracePeriod default.
func fakeOldTime(t *testing.T, path string) func() {
	t.Helper()
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatal(err)
	}
	return func() {}
}

func TestLinkOutputsTouchesFinishedRunMarker(t *testing.T) {
	eng := &recordingEngine{}
	m := newTestManager(eng)
	jobDir := t.TempDir()

	if err := m.linkOutputs("job1", jobDir); err != nil {
		t.Fatalf("linkOutputs: %v", err)
	}
	if !markerfs.Exists(markerfs.FinishedRunPath(jobDir)) {
		t.Error("linkOutputs should touch finished.run")
	}
}
