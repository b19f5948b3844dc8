package exec

import (
	"context"
	"os"
	"testing"

	"github.com/rwth-i6/sisyphus-go/fsref"
	"github.com/rwth-i6/sisyphus-go/graph"
	"github.com/rwth-i6/sisyphus-go/job"
	"github.com/rwth-i6/sisyphus-go/markerfs"
)

type depsStubJob struct {
	class  string
	inputs []fsref.Path
}

func (s *depsStubJob) ClassName() string   { return s.class }
func (s *depsStubJob) Tasks() []*job.TaskDef { return []*job.TaskDef{{FunctionName: "run"}} }
func (s *depsStubJob) RunTask(ctx context.Context, name string, shard int) error { return nil }
func (s *depsStubJob) InputPaths() []fsref.Path { return s.inputs }

type depsStubJobNoInputs struct {
	class string
	tasks []*job.TaskDef
}

func (s *depsStubJobNoInputs) ClassName() string     { return s.class }
func (s *depsStubJobNoInputs) Tasks() []*job.TaskDef { return s.tasks }
func (s *depsStubJobNoInputs) RunTask(ctx context.Context, name string, shard int) error {
	return nil
}

func TestDefaultDependencyResolverEdgesWithoutInputPather(t *testing.T) {
	g := graph.NewGraph()
	r := &DefaultDependencyResolver{Graph: g, WorkDir: t.TempDir()}
	j := &depsStubJobNoInputs{class: "Leaf"}
	if edges := r.Edges("job1", j); edges != nil {
		t.Fatalf("Edges for non-InputPather job = %v, want nil", edges)
	}
	if !r.InputsAvailable("job1", j) {
		t.Fatal("InputsAvailable for non-InputPather job should default to true")
	}
}

func TestDefaultDependencyResolverEdgesFromInputPaths(t *testing.T) {
	g := graph.NewGraph()
	r := &DefaultDependencyResolver{Graph: g, WorkDir: t.TempDir()}
	pred := fsref.NewOutputPath("recipe/Pred.abc", "out.txt")
	j := &depsStubJob{class: "Child", inputs: []fsref.Path{pred}}
	edges := r.Edges("job1", j)
	if len(edges) != 1 || edges[0] != "recipe/Pred.abc" {
		t.Fatalf("Edges = %v, want [recipe/Pred.abc]", edges)
	}
}

func TestDefaultDependencyResolverInputsAvailableRequiresPredecessorFinished(t *testing.T) {
	work := t.TempDir()
	g := graph.NewGraph()

	predTasks := []*job.TaskDef{{FunctionName: "run"}}
	_, predID, err := g.Intern("recipe", func() (job.Job, error) {
		return &depsStubJobNoInputs{class: "Pred", tasks: predTasks}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	predDir := jobDirUnder(work, predID)
	if err := os.MkdirAll(predDir, 0o755); err != nil {
		t.Fatal(err)
	}
	outPath := fsref.NewOutputPath(predID, "out.txt")
	absOut := outPath.Resolve(func(id string) string { return jobDirUnder(work, id) })
	if err := os.WriteFile(absOut, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	child := &depsStubJob{class: "Child", inputs: []fsref.Path{outPath}}
	r := &DefaultDependencyResolver{Graph: g, WorkDir: work}

	if r.InputsAvailable("child", child) {
		t.Fatal("InputsAvailable should be false before the predecessor's finished marker exists")
	}

	if err := markerfs.Touch(markerfs.FinishedPath(predDir, "run", 0)); err != nil {
		t.Fatal(err)
	}
	if !r.InputsAvailable("child", child) {
		t.Fatal("InputsAvailable should be true once the predecessor job's run task is finished")
	}
}
