package sisyphus

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if s.TickInterval != 30*time.Second {
		t.Fatalf("expected default tick interval 30s, got %v", s.TickInterval)
	}
	if s.MaxEscalationAttempts != 4 {
		t.Fatalf("expected default max escalation attempts 4, got %d", s.MaxEscalationAttempts)
	}
}

func TestLoadSettingsMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	s, err := LoadSettings(filepath.Join(dir, "does-not-exist.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if s.WorkDir != "work" {
		t.Fatalf("expected default work_dir, got %q", s.WorkDir)
	}
}

func TestLoadSettingsYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(path, []byte("work_dir: /scratch/work\ntick_interval: 10s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSettings(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.WorkDir != "/scratch/work" {
		t.Fatalf("expected overridden work_dir, got %q", s.WorkDir)
	}
	if s.TickInterval != 10*time.Second {
		t.Fatalf("expected overridden tick interval, got %v", s.TickInterval)
	}
}

func TestLoadSettingsEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(path, []byte("work_dir: /scratch/work\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SISYPHUS_WORK_DIR", "/override/work")
	s, err := LoadSettings(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.WorkDir != "/override/work" {
		t.Fatalf("expected env override to win, got %q", s.WorkDir)
	}
}

func TestDefaultSettingsEngineIsLocal(t *testing.T) {
	s := DefaultSettings()
	if s.Engine != "local" {
		t.Fatalf("expected default engine %q, got %q", "local", s.Engine)
	}
	if s.JobAutoCleanup {
		t.Fatal("JobAutoCleanup should default to false")
	}
}

func TestLoadSettingsJobAutoCleanupEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("JOB_AUTO_CLEANUP", "true")
	s, err := LoadSettings(filepath.Join(dir, "does-not-exist.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !s.JobAutoCleanup {
		t.Fatal("expected JOB_AUTO_CLEANUP=true to enable JobAutoCleanup")
	}
}

func TestBuildEngineDefaultsToLocal(t *testing.T) {
	s := DefaultSettings()
	eng, err := s.BuildEngine("/usr/local/bin/sisyphus")
	if err != nil {
		t.Fatal(err)
	}
	if eng.Name() != "local" {
		t.Fatalf("expected local engine, got %q", eng.Name())
	}
}

func TestBuildEngineRejectsUnknownName(t *testing.T) {
	s := DefaultSettings()
	s.Engine = "bogus"
	if _, err := s.BuildEngine("worker"); err == nil {
		t.Fatal("expected an error for an unknown engine name")
	}
}

func TestBuildEngineWithMiniTaskWrapsSelector(t *testing.T) {
	s := DefaultSettings()
	s.Engine = "local"
	s.EngineMiniTask = "sge"
	eng, err := s.BuildEngine("worker")
	if err != nil {
		t.Fatal(err)
	}
	if eng.Name() != "selector" {
		t.Fatalf("expected a selector engine when EngineMiniTask differs from Engine, got %q", eng.Name())
	}
}
