package cli

import (
	"fmt"

	"github.com/ariel-frischer/simforge/internal/blender"
	"github.com/ariel-frischer/simforge/internal/codegen"
	"github.com/ariel-frischer/simforge/internal/config"
	simerrors "github.com/ariel-frischer/simforge/internal/errors"
	"github.com/ariel-frischer/simforge/internal/health"
	"github.com/ariel-frischer/simforge/internal/history"
	"github.com/ariel-frischer/simforge/internal/llm"
	"github.com/ariel-frischer/simforge/internal/logging"
	"github.com/ariel-frischer/simforge/internal/materials"
	"github.com/ariel-frischer/simforge/internal/notify"
	"github.com/ariel-frischer/simforge/internal/pipeline"
	"github.com/ariel-frischer/simforge/internal/syntax"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds the wired components for one command invocation.
type app struct {
	cfg     *config.Configuration
	logger  *zap.Logger
	cleanup func()

	client *llm.Client
	engine *blender.Engine
}

// loadConfig reads the layered configuration using the --config flag.
func loadConfig(cmd *cobra.Command) (*config.Configuration, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadWithOptions(config.LoadOptions{
		ProjectConfigPath: path,
		WarningWriter:     cmd.ErrOrStderr(),
	})
	if err != nil {
		e := simerrors.NewConfigurationError(err.Error(), "")
		e.Err = err
		return nil, e
	}
	return cfg, nil
}

// newApp loads configuration, builds the logger and constructs the external
// collaborators shared by generate and doctor.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	debug, _ := cmd.Flags().GetBool("debug")
	logger, cleanup, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
		Debug:  debug,
	})
	if err != nil {
		return nil, simerrors.NewConfigurationError(fmt.Sprintf("setting up logging: %v", err), "logging")
	}

	a := &app{cfg: cfg, logger: logger, cleanup: cleanup}
	a.client, err = llm.NewClient(llm.Config{
		Command:        cfg.LLM.Command,
		Args:           cfg.LLM.Args,
		Timeout:        cfg.LLM.Timeout,
		MaxAttempts:    cfg.LLM.MaxAttempts,
		InitialBackoff: cfg.LLM.InitialBackoff,
	}, logger.Named("llm"))
	if err != nil {
		cleanup()
		return nil, err
	}
	a.engine = blender.NewEngine(cfg.Blender.Executable, logger.Named("blender"))
	return a, nil
}

func (a *app) close() {
	if a.cleanup != nil {
		a.cleanup()
	}
}

// materialsSource names where the material table comes from.
func materialsSource(cfg *config.Configuration) string {
	if cfg.MaterialsFile != "" {
		return cfg.MaterialsFile
	}
	return "built-in table"
}

// loadTable returns the configured material table, or the built-in one.
func loadTable(cfg *config.Configuration) (*materials.Table, error) {
	if cfg.MaterialsFile == "" {
		return materials.DefaultTable(), nil
	}
	t, err := materials.LoadTable(cfg.MaterialsFile)
	if err != nil {
		return nil, simerrors.NewConfigurationError(fmt.Sprintf("loading materials: %v", err), "materials_file")
	}
	return t, nil
}

// probes are the readiness checks behind doctor and generate's preflight.
func (a *app) probes() []health.Probe {
	return []health.Probe{
		health.AgentProbe(a.client),
		health.EngineProbe(a.engine),
		health.OutputDirProbe(a.cfg.Paths.OutputDir),
		health.MaterialsProbe(materialsSource(a.cfg), func() (health.MaterialTable, error) {
			t, err := loadTable(a.cfg)
			if err != nil {
				return nil, err
			}
			return t, nil
		}),
	}
}

// orchestrator wires every pipeline stage from the loaded configuration.
func (a *app) orchestrator() (*pipeline.Orchestrator, error) {
	table, err := loadTable(a.cfg)
	if err != nil {
		return nil, err
	}

	generator, err := codegen.NewGenerator(a.logger.Named("codegen"))
	if err != nil {
		return nil, err
	}

	collab := pipeline.Collaborators{
		Planner:   llm.NewPlanner(a.client, a.logger.Named("planner")),
		Enricher:  materials.NewEnricher(table, a.logger.Named("materials")),
		Generator: generator,
		Validator: syntax.NewValidator(a.logger.Named("syntax")),
		Executor:  blender.NewExecutor(a.engine, "", a.logger.Named("executor")),
		Inspector: blender.NewInspector(a.cfg.Blender.Executable, "", a.logger.Named("inspector"),
			blender.WithTimeout(a.cfg.Blender.InspectTimeout)),
		Advisor: llm.NewAdvisor(a.client, a.logger.Named("advisor")),
		History: history.NewWriter(a.cfg.Paths.StateDir, a.cfg.History.MaxEntries, a.logger.Named("history")),
	}

	opts := pipeline.OptionsFromConfig(a.cfg)
	opts.Probes = a.probes()
	return pipeline.New(collab, opts, a.logger.Named("orchestrator")), nil
}

// notifier maps the notifications section onto a desktop notification handler.
func (a *app) notifier() *notify.Handler {
	n := a.cfg.Notifications
	typ := notify.OutputBoth
	if notify.ValidOutputType(n.Type) {
		typ = notify.OutputType(n.Type)
	}
	return notify.NewHandler(notify.Config{
		Enabled:     n.Enabled,
		Type:        typ,
		SoundFile:   n.SoundFile,
		OnSuccess:   n.OnSuccess,
		OnFailure:   n.OnFailure,
		MinDuration: n.MinDuration,
	}, a.logger.Named("notify"))
}
