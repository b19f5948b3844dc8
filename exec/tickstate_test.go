package exec

import "testing"

func TestTickStateMarkFinishedFreesOnlyFullySatisfiedDependents(t *testing.T) {
	ts := newTickState()
	ts.addEdge("a", "c")
	ts.addEdge("b", "c")
	ts.addEdge("a", "d")

	if freed := ts.markFinished("a"); len(freed) != 1 || freed[0] != "d" {
		t.Fatalf("markFinished(a) = %v, want [d] (d waited only on a; c still waits on b)", freed)
	}
	// d depended only on a, so it should now be free; c still waits on b.
	if !ts.readyNow("d") {
		t.Fatal("d should be ready once its only predecessor a finished")
	}
	if ts.readyNow("c") {
		t.Fatal("c should not be ready until b also finishes")
	}

	freed := ts.markFinished("b")
	if len(freed) != 1 || freed[0] != "c" {
		t.Fatalf("markFinished(b) = %v, want [c]", freed)
	}
}

func TestTickStateAddEdgeIsIdempotent(t *testing.T) {
	ts := newTickState()
	ts.addEdge("a", "b")
	ts.addEdge("a", "b")
	if ts.counts["b"] != 1 {
		t.Fatalf("counts[b] = %d, want 1 after adding the same edge twice", ts.counts["b"])
	}
}

func TestTickStateReadyNowWithNoEdges(t *testing.T) {
	ts := newTickState()
	if !ts.readyNow("isolated") {
		t.Fatal("a job with no recorded predecessors should be ready")
	}
}
