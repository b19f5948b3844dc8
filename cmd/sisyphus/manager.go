package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/grailbio/base/status"
	"github.com/spf13/cobra"

	sisyphus "github.com/rwth-i6/sisyphus-go"
	"github.com/rwth-i6/sisyphus-go/exec"
	"github.com/rwth-i6/sisyphus-go/graph"
	"github.com/rwth-i6/sisyphus-go/role"
)

func newManagerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "manager",
		Aliases: []string{"m"},
		Short:   "run the control loop",
		RunE:    runManager,
	}
	cmd.Flags().BoolP("run", "r", false, "run without interactive confirmation prompt")
	cmd.Flags().String("config", "", "dotted entry-point name registered via sisyphus.RegisterEntryPoint")
	cmd.Flags().Int("http", 0, "serve observability status on this port (0 disables)")
	cmd.Flags().Bool("dry-run", false, "log the dispatch phase's planned actions without submitting, materializing, or retrying anything")
	return cmd
}

func runManager(cmd *cobra.Command, args []string) error {
	configName, _ := cmd.Flags().GetString("config")
	if configName == "" {
		return badUsage("manager: --config is required")
	}
	httpPort, _ := cmd.Flags().GetInt("http")
	runWithoutPrompt, _ := cmd.Flags().GetBool("run")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	entryPoint, err := sisyphus.LookupEntryPoint(configName)
	if err != nil {
		return badUsage("%v", err)
	}

	settings, err := sisyphus.LoadSettings("")
	if err != nil {
		return fmt.Errorf("manager: loading settings: %w", err)
	}

	g := graph.NewGraph()
	recipe := sisyphus.NewRecipe(configName, g)
	if err := entryPoint(recipe); err != nil {
		return fmt.Errorf("manager: building job graph: %w", err)
	}

	if !runWithoutPrompt {
		fmt.Fprintf(os.Stderr, "about to dispatch %d live job(s) under %s; pass -r to skip this prompt\n", len(g.Jobs()), settings.WorkDir)
		fmt.Fprint(os.Stderr, "continue? [y/N] ")
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			return nil
		}
	}

	statusGroup := new(status.Group)
	if httpPort > 0 {
		// --http is documented as an external observability concern
		// (spec.md §6); this binary only accepts the flag so scripts
		// invoking it don't need a conditional, and surfaces the status
		// group to whatever out-of-scope exporter wants it.
		fmt.Fprintf(os.Stderr, "manager: --http is not implemented by this build; ignoring port %d\n", httpPort)
	}

	eng, err := settings.BuildEngine(selfPath())
	if err != nil {
		return fmt.Errorf("manager: constructing engine: %w", err)
	}

	sess := &exec.Session{
		Settings:   settings,
		Graph:      g,
		Engine:     eng,
		Status:     statusGroup,
		ModulePath: configName,
	}
	deps := &exec.DefaultDependencyResolver{Graph: g, WorkDir: settings.WorkDir}
	mgr := exec.NewManager(sess, deps)
	mgr.DryRun = dryRun

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return mgr.Run(exec.WithSession(ctx, sess, role.Manager))
}

// selfPath returns the path to this executable, so the Local engine can
// re-invoke `sisyphus worker ...` as a subprocess.
func selfPath() string {
	p, err := os.Executable()
	if err != nil {
		return "sisyphus"
	}
	return p
}
