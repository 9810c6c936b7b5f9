package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/auditrunner/internal/artifacts"
	"github.com/GriffinCanCode/auditrunner/internal/exclusions"
	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/config"
	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/logging"
	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/auditrunner/internal/runner"
	"github.com/GriffinCanCode/auditrunner/internal/worker"
)

// CLI holds state shared by the subcommands.
type CLI struct {
	cfg    *config.Config
	logger *logging.Logger
	dev    bool
}

// NewRootCommand creates the root cobra command
func NewRootCommand() *cobra.Command {
	cli := &CLI{}

	root := &cobra.Command{
		Use:           "auditrunner",
		Short:         "Run page audits in isolated worker processes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// The worker builds its own loggers on its diagnostic streams.
			if cmd.Name() == "worker" {
				return nil
			}
			return cli.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cli.logger != nil {
				cli.logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVar(&cli.dev, "dev", false, "Development logging (console, debug level)")

	root.AddCommand(
		newRunCommand(cli),
		newServeCommand(cli),
		newExclusionsCommand(cli),
		newWorkerCommand(),
	)
	return root
}

func (c *CLI) init() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	if c.dev || cfg.Logging.Development {
		cfg.Logging.Development = true
		logCfg = logging.DevelopmentConfig()
	}

	logger, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	c.cfg = cfg
	c.logger = logger
	return nil
}

// exclusionTable loads the configured table, or the built-in one.
func (c *CLI) exclusionTable() (exclusions.Table, error) {
	return exclusions.Load(c.cfg.Audit.Exclusions)
}

// newRunner wires a runner for the current configuration.
func (c *CLI) newRunner(metrics *monitoring.Metrics) *runner.Runner {
	audit := c.cfg.Audit

	var spawner runner.Spawner = &runner.ProcessSpawner{}
	if audit.InProcess {
		spawner = &runner.GoroutineSpawner{Func: worker.Func(worker.DefaultBuilder(audit))}
	}

	return runner.New(spawner, artifacts.NewDiskStore(),
		runner.WithLogger(c.logger),
		runner.WithMetrics(metrics),
		runner.WithTimeout(audit.Timeout),
		runner.WithDrainTimeout(audit.DrainTimeout),
		runner.WithEntryPoint(audit.EntryPoint),
		runner.WithTempDir(audit.TempDir),
	)
}
