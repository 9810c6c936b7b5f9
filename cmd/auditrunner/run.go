package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/config"
	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/logging"
	"github.com/GriffinCanCode/auditrunner/internal/runner"
)

type runFlags struct {
	configFile string
	headless   bool
	verbose    bool
	timeout    time.Duration
	inProcess  bool
	jsonOut    bool
}

// runReport is printed with --json.
type runReport struct {
	RunID        string          `json:"runId"`
	StartedAt    time.Time       `json:"startedAt"`
	RequestedURL string          `json:"requestedUrl,omitempty"`
	FinalURL     string          `json:"finalUrl,omitempty"`
	LHR          json.RawMessage `json:"lhr"`
	Blobs        map[string]int  `json:"blobs,omitempty"`
}

func newRunCommand(cli *CLI) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run <url>",
		Short: "Audit one page in a fresh worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("headless") {
				cli.cfg.Audit.Headless = f.headless
			}
			if cmd.Flags().Changed("in-process") {
				cli.cfg.Audit.InProcess = f.inProcess
			}

			var cfg json.RawMessage
			if f.configFile != "" {
				loaded, err := config.LoadAuditConfig(f.configFile)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			var lines runner.Logger = logging.NewConsole(nil)
			if f.verbose {
				lines = lineWriter{cmd.ErrOrStderr()}
			}

			r := cli.newRunner(nil)
			out, err := r.Run(cmd.Context(), args[0], cfg, lines, runner.Options{
				Headless: cli.cfg.Audit.Headless,
				Verbose:  f.verbose,
				Timeout:  f.timeout,
			})
			if err != nil {
				return runError(err, f.verbose)
			}
			return printOutcome(cmd.OutOrStdout(), out, f.jsonOut)
		},
	}

	cmd.Flags().StringVarP(&f.configFile, "config", "c", "", "Audit config file (JSON, YAML or TOML)")
	cmd.Flags().BoolVar(&f.headless, "headless", true, "Run the browser headless")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Verbose worker logging")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Deadline for the worker's result (0 uses AUDIT_TIMEOUT, negative disables)")
	cmd.Flags().BoolVar(&f.inProcess, "in-process", false, "Run the worker in a goroutine instead of a child process")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "Print a JSON report with artifact sizes")
	return cmd
}

// lineWriter streams worker lines to the terminal as they arrive.
type lineWriter struct {
	w io.Writer
}

func (l lineWriter) Log(line string) {
	fmt.Fprintln(l.w, line)
}

// runError shapes a failed run for the terminal. A worker failure keeps its
// captured log unless the lines were already streamed.
func runError(err error, streamed bool) error {
	var failure *runner.WorkerFailure
	if streamed && errors.As(err, &failure) {
		return fmt.Errorf("worker returned an error: %s", failure.Detail)
	}
	return err
}

func printOutcome(w io.Writer, out *runner.Outcome, asReport bool) error {
	if !asReport {
		_, err := fmt.Fprintln(w, string(out.LHR))
		return err
	}

	report := runReport{RunID: string(out.RunID), StartedAt: out.StartedAt(), LHR: out.LHR}
	if a := out.Artifacts; a != nil {
		report.RequestedURL = a.RequestedURL
		report.FinalURL = a.FinalURL
		report.Blobs = make(map[string]int, len(a.Blobs))
		for name, data := range a.Blobs {
			report.Blobs[name] = len(data)
		}
	}
	data, err := sonic.ConfigStd.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
