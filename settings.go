package sisyphus

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rwth-i6/sisyphus-go/engine"
)

// Settings is the process-wide configuration described in spec.md §6.
// Defaults are hardcoded; an optional YAML override file
// ($SISYPHUS_SETTINGS_FILE or ./settings.yaml) may override any field, and a handful of
// environment variables override the override, matching the teacher's
// own minimal flag/env footprint rather than a reflection-based config
// framework (see DESIGN.md's stdlib justification for this package).
type Settings struct {
	// WorkDir is the root under which every job directory lives.
	WorkDir string `yaml:"work_dir"`
	// OutputDir is the user-visible tree of finished-output symlinks.
	OutputDir string `yaml:"output_dir"`
	// TickInterval is the manager's graph-update/dispatch cadence
	// (spec.md §4.F, default 30s).
	TickInterval time.Duration `yaml:"tick_interval"`
	// MaxEscalationAttempts caps retry escalation per shard: the manager
	// stops resubmitting once the shard's info history holds this many
	// attempt records, counting worker runs and resubmissions alike
	// (spec.md §4.C, §14 Open Question decision).
	MaxEscalationAttempts int `yaml:"max_escalation_attempts"`
	// DefaultEscalationFactor is used for jobs that don't implement
	// job.Escalator.
	DefaultEscalationFactor float64 `yaml:"default_escalation_factor"`
	// WaitPeriodJobFSSync is the grace period housekeeping waits before
	// treating an on-disk job directory as truly orphaned, covering NFS
	// attribute-cache staleness (spec.md §5).
	WaitPeriodJobFSSync time.Duration `yaml:"wait_period_job_fs_sync"`
	// EngineGateway is the optional SSH host cluster engines tunnel
	// submission/query binaries through (spec.md §4.E).
	EngineGateway string `yaml:"engine_gateway"`
	// MaxConcurrentProbes bounds how many job directories the manager
	// inspects concurrently during a graph-update phase.
	MaxConcurrentProbes int `yaml:"max_concurrent_probes"`

	// Engine names the dispatch backend BuildEngine constructs: "local"
	// (default), "sge", "slurm", or "lsf" (spec.md §6 "engine()").
	Engine string `yaml:"engine"`
	// EngineMiniTask, when set and different from Engine, routes
	// mini_task shards to that named engine via an engine.Selector
	// wrapping both (spec.md §4.E).
	EngineMiniTask string `yaml:"engine_mini_task"`
	// LocalCPU/LocalGPU/LocalMemGB size the Local engine's admission
	// budget (spec.md §4.E "Local engine").
	LocalCPU   float64 `yaml:"engine_local_cpu"`
	LocalGPU   int     `yaml:"engine_local_gpu"`
	LocalMemGB float64 `yaml:"engine_local_mem_gb"`

	// JobAutoCleanup enables housekeeping.RemoveOrphans from the tick
	// loop (spec.md §6 `JOB_AUTO_CLEANUP`, §8 scenario 6).
	JobAutoCleanup bool `yaml:"job_auto_cleanup"`
	// ShowJobTargets toggles the extra per-tick status line listing each
	// live job's current state (spec.md §6 `SHOW_JOB_TARGETS`).
	ShowJobTargets bool `yaml:"show_job_targets"`
	// HashCompatShort is loaded from the settings file but read by no
	// code: the hasher and job identity always use the full digest
	// encoding, whatever its value.
	HashCompatShort bool `yaml:"hash_compat_short"`
}

// BuildEngine constructs the dispatch backend named by Settings.Engine
// (spec.md §6 "engine()"), the constructor-for-the-engine-instance
// setting. workerBinary is the `sisyphus worker` invocation the Local
// engine re-execs as a subprocess. Unlike the other settings this is
// expressed as a method rather than a struct field: Settings lives below
// package engine's job-requirements dependency, but not below engine
// itself, so the construction logic can live here without creating an
// import cycle back from engine into this package.
func (s Settings) BuildEngine(workerBinary string) (engine.Engine, error) {
	build := func(name string) (engine.Engine, error) {
		switch name {
		case "", "local":
			return engine.NewLocal(workerBinary, engine.Capacity{CPU: s.LocalCPU, GPU: s.LocalGPU, MemGB: s.LocalMemGB}), nil
		case "sge":
			return engine.NewSGE(s.EngineGateway), nil
		case "slurm":
			return engine.NewSlurm(s.EngineGateway), nil
		case "lsf":
			return engine.NewLSF(s.EngineGateway), nil
		default:
			return nil, fmt.Errorf("sisyphus: unknown engine %q", name)
		}
	}

	if s.EngineMiniTask == "" || s.EngineMiniTask == s.Engine {
		return build(s.Engine)
	}

	primary, err := build(s.Engine)
	if err != nil {
		return nil, err
	}
	mini, err := build(s.EngineMiniTask)
	if err != nil {
		return nil, err
	}
	defaultName := s.Engine
	if defaultName == "" {
		defaultName = "local"
	}
	return engine.NewSelector(map[string]engine.Engine{
		defaultName:      primary,
		s.EngineMiniTask: mini,
	}, s.EngineMiniTask, defaultName), nil
}

// DefaultSettings returns the documented defaults (spec.md §6).
func DefaultSettings() Settings {
	return Settings{
		WorkDir:                 "work",
		OutputDir:               "output",
		TickInterval:            30 * time.Second,
		MaxEscalationAttempts:   4,
		DefaultEscalationFactor: 2.0,
		WaitPeriodJobFSSync:     30 * time.Second,
		MaxConcurrentProbes:     16,
		Engine:                  "local",
		LocalCPU:                4,
		LocalMemGB:              16,
	}
}

// LoadSettings builds Settings by layering, in order: hardcoded defaults,
// an optional YAML file (path, or $SISYPHUS_SETTINGS_FILE, or ./settings.yaml if
// present), then a small set of environment variable overrides. A
// missing YAML file is not an error; a malformed one is.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()

	if path == "" {
		path = os.Getenv("SISYPHUS_SETTINGS_FILE")
	}
	if path == "" {
		path = "settings.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, fmt.Errorf("sisyphus: parsing %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Settings{}, fmt.Errorf("sisyphus: reading %s: %w", path, err)
	}

	applyEnvOverrides(&s)
	return s, nil
}

func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("SISYPHUS_WORK_DIR"); v != "" {
		s.WorkDir = v
	}
	if v := os.Getenv("SISYPHUS_OUTPUT_DIR"); v != "" {
		s.OutputDir = v
	}
	if v := os.Getenv("SISYPHUS_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.TickInterval = d
		}
	}
	if v := os.Getenv("SISYPHUS_ENGINE_GATEWAY"); v != "" {
		s.EngineGateway = v
	}
	if v := os.Getenv("SISYPHUS_MAX_ESCALATION_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.MaxEscalationAttempts = n
		}
	}
	if v := os.Getenv("SISYPHUS_ENGINE"); v != "" {
		s.Engine = v
	}
	if v := os.Getenv("JOB_AUTO_CLEANUP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.JobAutoCleanup = b
		}
	}
	if v := os.Getenv("SHOW_JOB_TARGETS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.ShowJobTargets = b
		}
	}
}
