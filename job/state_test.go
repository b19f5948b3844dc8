package job

import "testing"

func TestStateStringRoundTrip(t *testing.T) {
	cases := map[State]string{
		Unknown:     "unknown",
		Waiting:     "waiting",
		Runnable:    "runnable",
		Queued:      "queued",
		Running:     "running",
		Finished:    "finished",
		Error:       "error",
		Interrupted: "interrupted",
		Hold:        "hold",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestTerminal(t *testing.T) {
	terminal := []State{Finished, Error, Hold}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	nonTerminal := []State{Unknown, Waiting, Runnable, Queued, Running, Interrupted}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
