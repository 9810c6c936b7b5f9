package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/config"
	"github.com/GriffinCanCode/auditrunner/internal/runner"
	"github.com/GriffinCanCode/auditrunner/internal/worker"
)

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Run one audit as a worker process (internal)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !worker.IsWorkerProcess() {
				fmt.Fprintln(os.Stderr, worker.ErrContext)
				os.Exit(worker.ExitNotWorker)
			}
			msgOut, err := messageFile(runner.MessageFD)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(worker.ExitNoProtocol)
			}

			cfg := config.LoadOrDefault()
			code := worker.Main(cmd.Context(), os.Stdin, os.Stdout, os.Stderr, msgOut, worker.DefaultBuilder(cfg.Audit))
			msgOut.Close()
			if code != worker.ExitOK {
				os.Exit(code)
			}
			return nil
		},
	}
}
