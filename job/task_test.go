package job

import "testing"

func TestEscalateScalesOnlyKilledDimension(t *testing.T) {
	base := ResourceRequirements{CPU: 2, MemGB: 4, TimeHrs: 1}

	oom := Escalate(base, KillOOM, DefaultEscalationFactor)
	if oom.MemGB != 8 {
		t.Errorf("OOM escalation: MemGB = %v, want 8", oom.MemGB)
	}
	if oom.TimeHrs != base.TimeHrs || oom.CPU != base.CPU {
		t.Errorf("OOM escalation touched unrelated dimensions: %+v", oom)
	}

	timeout := Escalate(base, KillTimeout, DefaultEscalationFactor)
	if timeout.TimeHrs != 2 {
		t.Errorf("timeout escalation: TimeHrs = %v, want 2", timeout.TimeHrs)
	}
	if timeout.MemGB != base.MemGB {
		t.Errorf("timeout escalation touched MemGB: %+v", timeout)
	}
}

func TestEscalateNoneLeavesRequirementsUnchanged(t *testing.T) {
	base := ResourceRequirements{CPU: 2, MemGB: 4, TimeHrs: 1}
	got := Escalate(base, KillNone, DefaultEscalationFactor)
	if got != base {
		t.Errorf("KillNone escalation changed requirements: %+v != %+v", got, base)
	}
}

func TestKillCauseString(t *testing.T) {
	cases := map[KillCause]string{
		KillNone:        "none",
		KillOOM:         "oom",
		KillTimeout:     "timeout",
		KillInterrupted: "interrupted",
	}
	for c, want := range cases {
		if got := c.String(); got != want {
			t.Errorf("KillCause(%d).String() = %q, want %q", c, got, want)
		}
	}
}

func TestTaskDefName(t *testing.T) {
	td := &TaskDef{FunctionName: "train"}
	if td.Name() != "train" {
		t.Errorf("Name() = %q, want %q", td.Name(), "train")
	}
}
