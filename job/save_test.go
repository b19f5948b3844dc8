package job

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rwth-i6/sisyphus-go/markerfs"
)

type savedJob struct {
	Name  string
	Shard int
}

func (j *savedJob) ClassName() string                                        { return "Saved" }
func (j *savedJob) Tasks() []*TaskDef                                        { return []*TaskDef{{FunctionName: "run"}} }
func (j *savedJob) RunTask(ctx context.Context, name string, shard int) error { return nil }

func init() {
	Register(&savedJob{})
}

func TestSaveLoadRoundTrip(t *testing.T) {
	jobDir := t.TempDir()
	want := &savedJob{Name: "alpha", Shard: 3}

	if err := Save(jobDir, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !markerfs.Exists(markerfs.JobSavePath(jobDir)) {
		t.Fatal("Save did not create job.save")
	}

	got, err := Load(jobDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	sj, ok := got.(*savedJob)
	if !ok {
		t.Fatalf("Load returned %T, want *savedJob", got)
	}
	if *sj != *want {
		t.Fatalf("Load round-trip mismatch: got %+v, want %+v", sj, want)
	}
}

func TestLoadMissingMarkerFails(t *testing.T) {
	jobDir := t.TempDir()
	if _, err := Load(jobDir); err == nil {
		t.Fatal("Load on a job dir with no job.save should fail")
	}
}

func TestSaveWritesUnderJobSavePath(t *testing.T) {
	jobDir := t.TempDir()
	if err := Save(jobDir, &savedJob{Name: "beta"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	want := filepath.Join(jobDir, "job.save")
	if markerfs.JobSavePath(jobDir) != want {
		t.Fatalf("JobSavePath = %q, want %q", markerfs.JobSavePath(jobDir), want)
	}
}
