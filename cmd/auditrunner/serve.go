package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/server"
)

func newServeCommand(cli *CLI) *cobra.Command {
	var (
		host string
		port string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve audits over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if host != "" {
				cli.cfg.Server.Host = host
			}
			if port != "" {
				cli.cfg.Server.Port = port
			}

			table, err := cli.exclusionTable()
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			metrics := monitoring.NewMetrics(reg)

			srv := server.NewServer(cli.cfg, server.Deps{
				Runner:     cli.newRunner(metrics),
				Exclusions: table,
				Metrics:    metrics,
				Gatherer:   reg,
				Logger:     cli.logger,
			})
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides HOST)")
	cmd.Flags().StringVarP(&port, "port", "p", "", "Listen port (overrides PORT)")
	return cmd
}
